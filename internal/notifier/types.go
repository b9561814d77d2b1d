package notifier

import (
	"fmt"
	"time"
)

type Config struct {
	// Workers bounds concurrent sends within one broadcast.
	Workers     int
	SendTimeout time.Duration
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	return c
}

// SendError is the failure to deliver to one chat.
type SendError struct {
	ChatID int64
	Err    error
}

func (e *SendError) Error() string { return fmt.Sprintf("send to chat %d: %v", e.ChatID, e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

// Result summarizes one broadcast.
type Result struct {
	Key    string        `json:"key"`
	At     time.Time     `json:"at"`
	Sent   int           `json:"sent"`
	Failed int           `json:"failed"`
	Took   time.Duration `json:"took"`
	Errors []*SendError  `json:"-"`
}

// BroadcastEvent is the Data of reminder.sent bus events.
type BroadcastEvent struct {
	Key    string `json:"key"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}
