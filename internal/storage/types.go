package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Audit actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionBroadcast   = "broadcast"
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file at Path
//   - "sqlite": SQLite database file at Path
//   - "redis": list at RedisKey on RedisAddr
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string        `yaml:"driver" json:"driver"`
	Path        string        `yaml:"path" json:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"` // sqlite only; 0 means default

	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisKey      string `yaml:"redis_key" json:"redis_key"`
	RedisMaxLen   int64  `yaml:"redis_max_len" json:"redis_max_len"` // 0 keeps everything
}

// AuditEntry records one subscriber change or delivery.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At     time.Time `json:"at"`
	ChatID int64     `json:"chat_id,omitempty"`
	Action string    `json:"action"`
	Target string    `json:"target,omitempty"`
	OK     int       `json:"ok,omitempty"`
	Fail   int       `json:"fail,omitempty"`
	Error  string    `json:"error,omitempty"`
}
