package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/internal/clist"
	"github.com/paul-wild/FAU-Clist-Bot/internal/storage"
	"github.com/paul-wild/FAU-Clist-Bot/internal/task/engine"
	"github.com/paul-wild/FAU-Clist-Bot/internal/task/scheduler"
	"github.com/paul-wild/FAU-Clist-Bot/internal/timeutil"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

const (
	DefaultPollTimeout     = 10 * time.Second
	DefaultCommandWorkers  = 4
	DefaultCommandTimeout  = 30 * time.Second
	DefaultReconcile       = "1h"
	DefaultListLimit       = 6
	DefaultDeliveryTimeout = 2 * time.Minute
	DefaultStatusAddr      = "127.0.0.1:8089"
)

var DefaultOffsets = []time.Duration{24 * time.Hour, 2 * time.Hour}

// Settings is a Config with defaults applied and every string parsed into
// the type its consumer takes.
type Settings struct {
	Telegram   TelegramSettings
	Logging    logx.Config
	Clist      clist.Config
	Reminders  ReminderSettings
	TaskEngine engine.Config
	Storage    storage.Config
	Status     StatusConfig
}

type TelegramSettings struct {
	Token          string
	PollTimeout    time.Duration
	LogChatID      int64
	CommandWorkers int
	CommandTimeout time.Duration
}

type ReminderSettings struct {
	Offsets         []time.Duration
	Reconcile       string
	ListLimit       int
	Location        *time.Location
	DeliveryTimeout time.Duration
}

// Resolve applies defaults and parses cfg. Every problem found is reported,
// not only the first one.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, errors.New("config is nil")
	}
	var (
		s    Settings
		errs []error
	)
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		collect(err)
		return d
	}

	s.Telegram = TelegramSettings{
		Token:          strings.TrimSpace(cfg.Telegram.Token),
		PollTimeout:    dur("telegram.poll_timeout", cfg.Telegram.PollTimeout, DefaultPollTimeout),
		LogChatID:      cfg.Telegram.LogChatID,
		CommandWorkers: cfg.Telegram.CommandWorkers,
		CommandTimeout: dur("telegram.command_timeout", cfg.Telegram.CommandTimeout, DefaultCommandTimeout),
	}
	if s.Telegram.CommandWorkers <= 0 {
		s.Telegram.CommandWorkers = DefaultCommandWorkers
	}

	s.Logging = LogConfig(cfg.Logging)

	retries := 2
	if cfg.Clist.Retries != nil {
		retries = *cfg.Clist.Retries
		if retries < 0 {
			collect(errors.New("clist.retries: must be >= 0"))
		}
	}
	s.Clist = clist.Config{
		BaseURL:           strings.TrimSpace(cfg.Clist.BaseURL),
		Username:          strings.TrimSpace(cfg.Clist.Username),
		APIKey:            strings.TrimSpace(cfg.Clist.APIKey),
		ResourceIDs:       append([]int(nil), cfg.Clist.ResourceIDs...),
		Timeout:           dur("clist.timeout", cfg.Clist.Timeout, clist.DefaultTimeout),
		Window:            dur("clist.window", cfg.Clist.Window, clist.DefaultWindow),
		RequestsPerMinute: cfg.Clist.RequestsPerMinute,
		Retries:           retries,
		RetryDelay:        dur("clist.retry_delay", cfg.Clist.RetryDelay, 0),
	}

	s.Reminders = ReminderSettings{
		Reconcile:       strings.TrimSpace(cfg.Reminders.Reconcile),
		ListLimit:       cfg.Reminders.ListLimit,
		DeliveryTimeout: dur("reminders.delivery_timeout", cfg.Reminders.DeliveryTimeout, DefaultDeliveryTimeout),
	}
	if s.Reminders.Reconcile == "" {
		s.Reminders.Reconcile = DefaultReconcile
	}
	if _, err := scheduler.ParseSchedule(s.Reminders.Reconcile); err != nil {
		collect(fmt.Errorf("reminders.reconcile: %w", err))
	}
	if s.Reminders.ListLimit <= 0 {
		s.Reminders.ListLimit = DefaultListLimit
	}
	if len(cfg.Reminders.Offsets) == 0 {
		s.Reminders.Offsets = append([]time.Duration(nil), DefaultOffsets...)
	}
	for i, raw := range cfg.Reminders.Offsets {
		d, err := ParseDurationField(fmt.Sprintf("reminders.offsets[%d]", i), raw)
		if err == nil && d <= 0 {
			err = fmt.Errorf("reminders.offsets[%d]: must be > 0", i)
		}
		collect(err)
		s.Reminders.Offsets = append(s.Reminders.Offsets, d)
	}
	zone := strings.TrimSpace(cfg.Reminders.DisplayTimezone)
	if zone == "" {
		zone = timeutil.DefaultZone
	}
	loc, err := timeutil.LoadLocation(zone)
	collect(err)
	s.Reminders.Location = loc

	s.TaskEngine = engine.Config{
		Workers:        cfg.TaskEngine.Workers,
		QueueSize:      cfg.TaskEngine.QueueSize,
		DefaultTimeout: dur("task_engine.default_timeout", cfg.TaskEngine.DefaultTimeout, 0),
		MaxQueueDelay:  dur("task_engine.max_queue_delay", cfg.TaskEngine.MaxQueueDelay, 0),
		HistorySize:    cfg.TaskEngine.HistorySize,
	}

	if st := cfg.Storage; st != nil {
		s.Storage = storage.Config{
			Driver:        strings.TrimSpace(st.Driver),
			Path:          strings.TrimSpace(st.Path),
			BusyTimeout:   dur("storage.busy_timeout", st.BusyTimeout, 0),
			RedisAddr:     strings.TrimSpace(st.RedisAddr),
			RedisPassword: st.RedisPassword,
			RedisDB:       st.RedisDB,
			RedisKey:      strings.TrimSpace(st.RedisKey),
			RedisMaxLen:   st.RedisMaxLen,
		}
		switch strings.ToLower(s.Storage.Driver) {
		case "", "none", "file", "sqlite", "sqlite3", "redis":
		default:
			collect(fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
	}

	s.Status = cfg.Status
	if strings.TrimSpace(s.Status.Addr) == "" {
		s.Status.Addr = DefaultStatusAddr
	}

	return s, errors.Join(errs...)
}

// LogConfig maps the logging section onto logx.
func LogConfig(l LoggingConfig) logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// Validate resolves cfg and additionally requires the secrets the bot cannot
// start without.
func Validate(cfg *Config) error {
	s, err := Resolve(cfg)
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	if s.Telegram.Token == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken))
	}
	if s.Clist.Username == "" {
		errs = append(errs, fmt.Errorf("clist.username is required (or set %s)", EnvClistUsername))
	}
	if s.Clist.APIKey == "" {
		errs = append(errs, fmt.Errorf("clist.api_key is required (or set %s)", EnvClistAPIKey))
	}
	if len(s.Clist.ResourceIDs) == 0 {
		errs = append(errs, errors.New("clist.resource_ids must not be empty"))
	}
	if s.Logging.Telegram.Enabled && s.Telegram.LogChatID == 0 {
		errs = append(errs, errors.New("logging.telegram.enabled requires telegram.log_chat_id"))
	}
	return errors.Join(errs...)
}
