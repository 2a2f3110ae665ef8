package config

import (
	"reflect"
	"strings"

	logx "planbot/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and log-safe
// attributes describing them. Secrets are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	oi, ni := oldCfg.Inference, newCfg.Inference
	oi.APIKey, ni.APIKey = "", ""
	if !reflect.DeepEqual(oi, ni) || (oldCfg.Inference.APIKey != newCfg.Inference.APIKey) {
		changed = append(changed, "inference")
		attrs = append(attrs,
			logx.String("inference.endpoint", ni.Endpoint),
			logx.String("inference.model", ni.Model),
			logx.Bool("inference.api_key_set", newCfg.Inference.APIKey != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Planner, newCfg.Planner) {
		changed = append(changed, "planner")
		attrs = append(attrs,
			logx.Int("planner.max_tasks", newCfg.Planner.MaxTasks),
			logx.Int("planner.task_types", len(newCfg.Planner.TaskTypes)),
		)
	}

	if oldCfg.RateLimit != newCfg.RateLimit {
		changed = append(changed, "rate_limit")
		attrs = append(attrs,
			logx.Bool("rate_limit.enabled", newCfg.RateLimit.Enabled),
			logx.Int("rate_limit.per_minute", newCfg.RateLimit.PerMinute),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
		)
	}
	return changed, attrs
}

// RestartRequired reports sections that only take effect after a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "telegram", "storage", "metrics":
			out = append(out, s)
		}
	}
	return out
}
