package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "planbot/pkg/logx"
)

// RetentionConfig controls periodic pruning. Keep <= 0 disables it.
type RetentionConfig struct {
	Keep     time.Duration
	Schedule string // cron spec, seconds optional; default "@every 1h"
	Timezone string
}

// Retention prunes records older than Keep on a cron schedule.
type Retention struct {
	store Store
	log   logx.Logger
	now   func() time.Time

	mu  sync.Mutex
	cfg RetentionConfig
	c   *cron.Cron
}

var retentionParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func NewRetention(store Store, cfg RetentionConfig, log logx.Logger) *Retention {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Retention{store: store, cfg: cfg, log: log.With(logx.String("comp", "retention")), now: time.Now}
}

// ValidateSchedule reports whether spec is a cron expression Retention accepts.
func ValidateSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	_, err := retentionParser.Parse(spec)
	return err
}

// Start begins periodic pruning. It is a no-op when storage or retention is disabled.
func (r *Retention) Start(ctx context.Context) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil || r.store == nil || r.cfg.Keep <= 0 {
		return nil
	}
	spec := strings.TrimSpace(r.cfg.Schedule)
	if spec == "" {
		spec = "@every 1h"
	}
	loc := time.Local
	if tz := strings.TrimSpace(r.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return err
		}
		loc = l
	}
	c := cron.New(cron.WithParser(retentionParser), cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() {
		pctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, _ = r.RunOnce(pctx)
	}); err != nil {
		return err
	}
	c.Start()
	r.c = c
	r.log.Info("retention started", logx.String("schedule", spec), logx.Duration("keep", r.cfg.Keep))
	return nil
}

// RunOnce prunes immediately and returns the number of removed records.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, ErrDisabled
	}
	r.mu.Lock()
	keep := r.cfg.Keep
	r.mu.Unlock()
	if keep <= 0 {
		return 0, errors.New("retention disabled")
	}
	start := r.now()
	n, err := r.store.Prune(ctx, start.Add(-keep))
	if err != nil {
		r.log.Warn("prune failed", logx.Err(err))
		return n, err
	}
	if n > 0 {
		r.log.Info("pruned schedules", logx.Int("removed", n), logx.Duration("took", time.Since(start)))
	}
	return n, nil
}

// Apply swaps the retention window; a new schedule takes effect after restart.
func (r *Retention) Apply(cfg RetentionConfig) {
	r.mu.Lock()
	r.cfg.Keep = cfg.Keep
	r.mu.Unlock()
}

func (r *Retention) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
