package router

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	Enabled   bool
	PerMinute int
	PerHour   int
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.PerMinute <= 0 {
		c.PerMinute = 60
	}
	if c.PerHour <= 0 {
		c.PerHour = 1000
	}
	return c
}

type userBucket struct {
	minute *rate.Limiter
	hour   *rate.Limiter
	seen   time.Time
}

// userLimiter keeps two token buckets per user. Idle users are evicted so the
// map stays bounded by active users.
type userLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	buckets map[int64]*userBucket
	sweep   time.Time
}

func newUserLimiter(cfg RateLimitConfig) *userLimiter {
	return &userLimiter{cfg: cfg.withDefaults(), buckets: map[int64]*userBucket{}}
}

func (l *userLimiter) SetConfig(cfg RateLimitConfig) {
	l.mu.Lock()
	l.cfg = cfg.withDefaults()
	l.buckets = map[int64]*userBucket{}
	l.mu.Unlock()
}

// Allow consumes one token from both buckets. When denied it returns the
// delay until the next request would be accepted.
func (l *userLimiter) Allow(userID int64, now time.Time) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.cfg.Enabled {
		return 0, true
	}
	if now.Sub(l.sweep) > 10*time.Minute {
		for id, b := range l.buckets {
			if now.Sub(b.seen) > time.Hour {
				delete(l.buckets, id)
			}
		}
		l.sweep = now
	}
	b := l.buckets[userID]
	if b == nil {
		b = &userBucket{
			minute: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.cfg.PerMinute)), l.cfg.PerMinute),
			hour:   rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.cfg.PerHour)), l.cfg.PerHour),
		}
		l.buckets[userID] = b
	}
	b.seen = now

	rm := b.minute.ReserveN(now, 1)
	rh := b.hour.ReserveN(now, 1)
	wait := rm.DelayFrom(now)
	if d := rh.DelayFrom(now); d > wait {
		wait = d
	}
	if wait > 0 {
		rm.CancelAt(now)
		rh.CancelAt(now)
		return wait, false
	}
	return 0, true
}
