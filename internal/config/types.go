package config

// Config is the whole config file. Durations are Go duration strings
// ("500ms", "10s", "1h").
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Clist      ClistConfig      `json:"clist"`
	Reminders  RemindersConfig  `json:"reminders"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
	Status     StatusConfig     `json:"status"`
}

type TelegramConfig struct {
	// Token is usually supplied through TELEGRAM_TOKEN instead.
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout, default "10s".
	PollTimeout string `json:"poll_timeout"`
	// LogChatID receives log lines when logging.telegram.enabled is set.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// CommandWorkers bounds concurrently handled commands, default 4.
	CommandWorkers int `json:"command_workers,omitempty"`
	// CommandTimeout bounds one command handler, default "30s".
	CommandTimeout string `json:"command_timeout,omitempty"`
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

// ClistConfig configures the clist.by contest API client.
//
// Username and APIKey are secrets; prefer CLIST_USERNAME and CLIST_API_KEY.
type ClistConfig struct {
	BaseURL     string `json:"base_url,omitempty"`
	Username    string `json:"username"`
	APIKey      string `json:"api_key"`
	ResourceIDs []int  `json:"resource_ids"`

	Timeout           string `json:"timeout,omitempty"` // default "10s"
	Window            string `json:"window,omitempty"`  // default "336h"
	RequestsPerMinute int    `json:"requests_per_minute,omitempty"`
	// Retries is a pointer so an explicit 0 disables retrying.
	Retries    *int   `json:"retries,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`
}

type RemindersConfig struct {
	// Offsets are lead times before contest start, default ["24h", "2h"].
	Offsets []string `json:"offsets,omitempty"`
	// Reconcile is how often contests are re-fetched: a duration ("1h"),
	// "@every 1h" or a cron expression. Default "1h".
	Reconcile string `json:"reconcile,omitempty"`
	// ListLimit caps the /list reply, default 6.
	ListLimit int `json:"list_limit,omitempty"`
	// DisplayTimezone is an IANA zone for /list dates, default "Europe/Berlin".
	DisplayTimezone string `json:"display_timezone,omitempty"`
	DeliveryTimeout string `json:"delivery_timeout,omitempty"`
}

// TaskEngineConfig controls the worker pool running reconciliation and
// reminder deliveries.
//
// Defaults: workers 2, queue_size 256, default_timeout "0s" (disabled),
// max_queue_delay "0s" (disabled), history_size 200.
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// StorageConfig controls the optional audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/audit.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite

	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	RedisKey      string `json:"redis_key,omitempty"`
	RedisMaxLen   int64  `json:"redis_max_len,omitempty"`
}

// StatusConfig controls the read-only status HTTP server.
// Prefer a loopback address; the endpoints are unauthenticated.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8089"
}
