package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"planbot/internal/config"
	"planbot/internal/eventbus"
	"planbot/internal/inference"
	"planbot/internal/observability"
	"planbot/internal/planner"
	"planbot/internal/storage"
	"planbot/internal/transport/telegram/router"
	logx "planbot/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64); err == nil {
		lc.Chat.ChatID = id
	} else {
		lc.Chat.Enabled = false
	}
	return lc
}

func mapInference(cfg *config.Config) (inference.Config, error) {
	ic := cfg.Inference
	out := inference.Config{
		Endpoint:  strings.TrimSpace(ic.Endpoint),
		APIKey:    ic.APIKey,
		Model:     ic.Model,
		MaxTokens: ic.MaxTokens,
		JSONMode:  ic.JSONMode,
		// unset retries mean the default of 3; an explicit 0 disables retrying
		MaxRetries:  3,
		Temperature: 0.7,
	}
	if ic.MaxRetries != nil {
		out.MaxRetries = *ic.MaxRetries
	}
	if ic.Temperature != nil {
		out.Temperature = *ic.Temperature
	}
	var err error
	if out.Timeout, err = config.ParseDurationField("inference.timeout", ic.Timeout); err != nil {
		return out, err
	}
	if out.RetryBase, err = config.ParseDurationField("inference.retry_base", ic.RetryBase); err != nil {
		return out, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("inference.retry_max_delay", ic.RetryMaxDelay); err != nil {
		return out, err
	}
	return out, nil
}

func mapPolicy(cfg *config.Config) (planner.Policy, error) {
	pol := planner.Policy{MaxTasks: cfg.Planner.MaxTasks, BreakMinutes: cfg.Planner.BreakMinutes}
	if len(cfg.Planner.TaskTypes) > 0 {
		pol.TaskTypes = make(map[planner.TaskType]planner.TypePolicy, len(cfg.Planner.TaskTypes))
		for name, tt := range cfg.Planner.TaskTypes {
			pol.TaskTypes[planner.TaskType(strings.ToLower(strings.TrimSpace(name)))] = planner.TypePolicy{
				MinDuration:    tt.MinDuration,
				MaxDuration:    tt.MaxDuration,
				BufferMinutes:  tt.BufferTime,
				PreferredTimes: append([]string(nil), tt.PreferredTimes...),
			}
		}
	}
	pol = pol.WithDefaults()
	if err := pol.Validate(); err != nil {
		return pol, fmt.Errorf("planner: %w", err)
	}
	return pol, nil
}

func mapStorage(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
}

func mapRetention(cfg *config.Config) (storage.RetentionConfig, error) {
	if cfg.Storage == nil {
		return storage.RetentionConfig{}, nil
	}
	keep, err := config.ParseDurationField("storage.retention", cfg.Storage.Retention)
	if err != nil {
		return storage.RetentionConfig{}, err
	}
	return storage.RetentionConfig{Keep: keep, Schedule: cfg.Storage.PruneCron, Timezone: cfg.Storage.Timezone}, nil
}

func mapRateLimit(cfg *config.Config) router.RateLimitConfig {
	return router.RateLimitConfig{
		Enabled:   cfg.RateLimit.Enabled,
		PerMinute: cfg.RateLimit.PerMinute,
		PerHour:   cfg.RateLimit.PerHour,
	}
}

func mapMetrics(cfg *config.Config) observability.Config {
	return observability.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Pprof:   cfg.Metrics.Pprof,
		Token:   cfg.Metrics.Token,
	}
}

// validateMapped catches errors that only surface when sections are
// converted to their runtime form.
func validateMapped(cfg *config.Config) error {
	if _, err := mapInference(cfg); err != nil {
		return err
	}
	if _, err := mapPolicy(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorage(cfg); err != nil {
		return err
	}
	if _, err := mapRetention(cfg); err != nil {
		return err
	}
	if cfg.Storage != nil {
		if err := storage.ValidateSchedule(cfg.Storage.PruneCron); err != nil {
			return fmt.Errorf("storage.prune_cron: %w", err)
		}
	}
	_, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	return err
}

func buildPipeline(cfg *config.Config, log logx.Logger, bus eventbus.Bus, im *inference.Metrics, pm *planner.Metrics) (*planner.Pipeline, error) {
	ic, err := mapInference(cfg)
	if err != nil {
		return nil, err
	}
	pol, err := mapPolicy(cfg)
	if err != nil {
		return nil, err
	}
	client := inference.New(ic, log.With(logx.String("comp", "inference")), inference.WithMetrics(im))
	return planner.NewPipeline(planner.Deps{
		Policy:  pol,
		Inferer: client,
		Logger:  log,
		Metrics: pm,
		Bus:     bus,
	})
}

// NewPipeline builds a standalone pipeline from cfg without metrics or
// event publishing.
func NewPipeline(cfg *config.Config, log logx.Logger) (*planner.Pipeline, error) {
	if err := validateMapped(cfg); err != nil {
		return nil, err
	}
	return buildPipeline(cfg, log, nil, nil, nil)
}

// OpenStore opens the configured store. It returns nil, nil when storage
// is disabled.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := mapStorage(cfg)
	if err != nil || !enabled {
		return nil, err
	}
	return storage.Open(sc, log.With(logx.String("comp", "storage")))
}
