package config

import (
	"os"
	"strings"
)

// Environment variables that override secrets and the log level.
const (
	EnvTelegramToken = "PLANBOT_TELEGRAM_TOKEN"
	EnvInferenceKey  = "PLANBOT_INFERENCE_API_KEY"
	EnvNIMKey        = "NVIDIA_NIM_API_KEY"
	EnvLogLevel      = "PLANBOT_LOG_LEVEL"
)

// ApplyEnv overlays environment values onto cfg. Empty variables are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvInferenceKey)); v != "" {
		cfg.Inference.APIKey = v
	} else if v := strings.TrimSpace(getenv(EnvNIMKey)); v != "" && strings.TrimSpace(cfg.Inference.APIKey) == "" {
		cfg.Inference.APIKey = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
}
