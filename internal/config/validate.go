package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	logx "planbot/pkg/logx"
)

// Validate checks structure and ranges. It does not require secrets; callers
// that need a token check for it themselves.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: invalid %q (want DEBUG, INFO, WARNING, ERROR or CRITICAL)", cfg.Logging.Level))
	}
	if !logx.ValidLevel(cfg.Logging.Telegram.MinLevel) {
		add(fmt.Errorf("logging.telegram.min_level: invalid %q", cfg.Logging.Telegram.MinLevel))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path is required when logging.file.enabled is true"))
	}
	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)

	inf := cfg.Inference
	if ep := strings.TrimSpace(inf.Endpoint); ep != "" {
		if u, err := url.Parse(ep); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(fmt.Errorf("inference.endpoint: invalid URL %q", ep))
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"inference.timeout", inf.Timeout},
		{"inference.retry_base", inf.RetryBase},
		{"inference.retry_max_delay", inf.RetryMaxDelay},
		{"planner.request_timeout", cfg.Planner.RequestTimeout},
	} {
		_, err := ParseDurationField(f.path, f.raw)
		add(err)
	}
	if inf.MaxRetries != nil && (*inf.MaxRetries < 0 || *inf.MaxRetries > 10) {
		add(errors.New("inference.max_retries must be within 0..10"))
	}
	if inf.Temperature != nil && (*inf.Temperature < 0 || *inf.Temperature > 2) {
		add(errors.New("inference.temperature must be within 0..2"))
	}
	if inf.MaxTokens < 0 {
		add(errors.New("inference.max_tokens must be >= 0"))
	}

	if cfg.Planner.MaxTasks < 0 || cfg.Planner.MaxTasks > 20 {
		add(errors.New("planner.max_tasks must be within 0..20"))
	}

	if cfg.RateLimit.PerMinute < 0 || cfg.RateLimit.PerHour < 0 {
		add(errors.New("rate_limit values must be >= 0"))
	}

	if sc := cfg.Storage; sc != nil {
		switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
		case "", "none", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(sc.Path) == "" {
				add(errors.New("storage.path is required when storage.driver=sqlite"))
			}
		default:
			add(fmt.Errorf("storage.driver: unknown %q", sc.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
		add(err)
		_, err = ParseDurationField("storage.retention", sc.Retention)
		add(err)
		if tz := strings.TrimSpace(sc.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				add(fmt.Errorf("storage.timezone: invalid %q: %w", tz, err))
			}
		}
	}
	return errors.Join(errs...)
}
