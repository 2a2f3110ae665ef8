package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("500ms", "30s", "168h").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Inference InferenceConfig `json:"inference"`
	Planner   PlannerConfig   `json:"planner"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via PLANBOT_TELEGRAM_TOKEN.
	Token string `json:"token"`
	// GroupLog is the chat ID receiving log lines when logging.telegram is enabled.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// InferenceConfig points at an OpenAI-compatible chat-completions endpoint.
//
// Defaults: timeout 30s, max_retries 3, retry_base 1s, retry_max_delay 30s,
// temperature 0.7, max_tokens 2000.
type InferenceConfig struct {
	Endpoint string `json:"endpoint"`
	// APIKey may be supplied via PLANBOT_INFERENCE_API_KEY or NVIDIA_NIM_API_KEY.
	APIKey        string   `json:"api_key,omitempty"`
	Model         string   `json:"model"`
	Timeout       string   `json:"timeout,omitempty"`
	MaxRetries    *int     `json:"max_retries,omitempty"`
	RetryBase     string   `json:"retry_base,omitempty"`
	RetryMaxDelay string   `json:"retry_max_delay,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	JSONMode      bool     `json:"json_mode,omitempty"`
}

type PlannerConfig struct {
	MaxTasks     int                       `json:"max_tasks,omitempty"`
	BreakMinutes int                       `json:"break_minutes,omitempty"`
	TaskTypes    map[string]TaskTypeConfig `json:"task_types,omitempty"`
	// RequestTimeout bounds one whole /schedule run, retries included.
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type TaskTypeConfig struct {
	MinDuration    int      `json:"min_duration"`
	MaxDuration    int      `json:"max_duration"`
	BufferTime     int      `json:"buffer_time"`
	PreferredTimes []string `json:"preferred_times,omitempty"`
}

// RateLimitConfig limits /schedule runs per user. Zero values use 60/min and 1000/hour.
type RateLimitConfig struct {
	Enabled   bool `json:"enabled"`
	PerMinute int  `json:"per_minute,omitempty"`
	PerHour   int  `json:"per_hour,omitempty"`
}

// StorageConfig controls persistence.
//
//	"storage": { "driver": "sqlite", "path": "./data/planbot.db", "retention": "720h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// Retention <= 0 keeps records forever.
	Retention string `json:"retention,omitempty"`
	PruneCron string `json:"prune_cron,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// MetricsConfig controls the HTTP server exposing /metrics and /healthz.
// Prefer binding to localhost.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9464"
	Pprof   bool   `json:"pprof,omitempty"`
	// Token is required when Addr is not a loopback address.
	Token string `json:"token,omitempty"`
}
