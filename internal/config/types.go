package config

// Config is the whole daemon configuration.
//
// Files may be JSON or YAML; YAML is coerced to JSON and both are
// decoded strictly, so typos in keys fail fast instead of silently
// falling back to defaults.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Engine   EngineConfig   `json:"engine"`
	Dispatch DispatchConfig `json:"dispatch"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the record store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./promobeat.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// EngineConfig controls the tick trigger and the engine's time policy.
//
// All durations are Go duration strings (e.g. "10s", "1m").
type EngineConfig struct {
	Enabled bool `json:"enabled"`

	// Interval is the tick cadence. Default "60s"; shorten for fast
	// iteration (e.g. "10s"). Cadence never changes firing decisions.
	Interval string `json:"interval,omitempty"`

	// Timezone is the IANA zone for minute matching and calendar-day
	// dedup (e.g. "Asia/Shanghai"). Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`
}

// DispatchConfig controls delivery of fired reminders.
type DispatchConfig struct {
	Channel       string `json:"channel"` // log | webhook | telegram
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`

	Webhook  WebhookConfig  `json:"webhook,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type WebhookConfig struct {
	URL     string `json:"url,omitempty"`
	Timeout string `json:"timeout,omitempty"` // Go duration string
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}
