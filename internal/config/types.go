package config

// Config is nudged's on-disk configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
// Files may be JSON or YAML; YAML is coerced to JSON before strict decoding.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Engine controls admission policy and pacing.
	Engine EngineConfig `json:"engine"`

	// Storage is optional; without it, throttle stamps and settings do not
	// survive restarts.
	Storage *StorageConfig `json:"storage,omitempty"`

	Sink SinkConfig `json:"sink"`

	Permission *PermissionConfig `json:"permission,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console *bool         `json:"console,omitempty"` // default true
	File    FileLogConfig `json:"file"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// EngineConfig mirrors engine.Config with wire-friendly field types.
//
// Enabled is a pointer so we can distinguish "omitted" (default true) from
// an explicit false.
//
// Defaults (when fields are omitted/zero):
//   - queue_size: 256
//   - per_key_throttle: "5m"
//   - min_dispatch_interval: "60s"
//   - quiet_start / quiet_end: "22:00" / "08:00"
//   - quotas: built-in per-category caps
type EngineConfig struct {
	Enabled   *bool `json:"enabled,omitempty"`
	QueueSize int   `json:"queue_size,omitempty"`

	PerKeyThrottle      string `json:"per_key_throttle,omitempty"`
	MinDispatchInterval string `json:"min_dispatch_interval,omitempty"`

	// Quiet hours as HH:MM; only the hour is honored (the window is
	// hour-granular by design).
	QuietStart string `json:"quiet_start,omitempty"`
	QuietEnd   string `json:"quiet_end,omitempty"`

	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Jakarta"

	// Quotas overrides daily caps by category slug (e.g. "goal-reminder": 8).
	Quotas map[string]int `json:"quotas,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./nudged_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	Addr     string `json:"addr,omitempty"`     // redis
	Password string `json:"password,omitempty"` // redis
	DB       int    `json:"db,omitempty"`       // redis
}

// SinkConfig selects the delivery sink.
type SinkConfig struct {
	Driver string `json:"driver,omitempty"` // log (default) | webhook | amqp | telegram

	Webhook  *WebhookSinkConfig  `json:"webhook,omitempty"`
	AMQP     *AMQPSinkConfig     `json:"amqp,omitempty"`
	Telegram *TelegramSinkConfig `json:"telegram,omitempty"`
}

type WebhookSinkConfig struct {
	URL     string `json:"url"`
	Timeout string `json:"timeout,omitempty"` // Go duration string
}

type AMQPSinkConfig struct {
	URL        string `json:"url"`
	Exchange   string `json:"exchange,omitempty"`
	RoutingKey string `json:"routing_key,omitempty"`
}

type TelegramSinkConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// PermissionConfig backs the static permission provider.
// Granted defaults to true when the block (or field) is omitted.
type PermissionConfig struct {
	Granted *bool `json:"granted,omitempty"`
}
