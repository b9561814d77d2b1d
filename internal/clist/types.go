package clist

import (
	"errors"
	"fmt"
	"time"
)

// Contest is one upcoming event as reported by the provider. Values are
// immutable once decoded.
type Contest struct {
	ID         int64
	Event      string
	Href       string
	Start      time.Time
	End        time.Time
	ResourceID int
}

// Duration is End minus Start.
func (c Contest) Duration() time.Duration { return c.End.Sub(c.Start) }

type Config struct {
	BaseURL     string
	Username    string
	APIKey      string
	ResourceIDs []int

	// Timeout bounds a whole FetchContests call, retries included.
	Timeout time.Duration
	// Window is the default search window length.
	Window time.Duration

	RequestsPerMinute int
	Retries           int
	RetryDelay        time.Duration
}

const (
	DefaultBaseURL = "https://clist.by/api/v1/contest/"
	DefaultTimeout = 10 * time.Second
	DefaultWindow  = 14 * 24 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 10
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	return c
}

// ProviderError is returned for every FetchContests failure.
type ProviderError struct {
	Op     string // request, ratelimit, status, decode, schema
	Status int    // HTTP status when Op == "status"
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("clist %s: http %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("clist %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same request may succeed.
func (e *ProviderError) Temporary() bool {
	switch e.Op {
	case "request":
		return !errors.Is(e.Err, errInvalidRequest)
	case "status":
		return e.Status == 429 || e.Status >= 500
	default:
		return false
	}
}

var errInvalidRequest = errors.New("invalid request")
