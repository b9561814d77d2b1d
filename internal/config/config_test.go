package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  poll_timeout: 20s
logging:
  level: debug
  console: true
clist:
  username: alice
  api_key: secret
  resource_ids: [1, 2, 63]
reminders:
  offsets: ["24h", "2h", "15m"]
  reconcile: "@every 30m"
  list_limit: 3
  display_timezone: UTC
storage:
  driver: sqlite
  path: ./data/audit.db
  busy_timeout: 2s
`

func TestDecodeYAMLAndResolve(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	s, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Telegram.PollTimeout != 20*time.Second || s.Telegram.CommandWorkers != DefaultCommandWorkers {
		t.Fatalf("telegram = %+v", s.Telegram)
	}
	if got := s.Clist.ResourceIDs; len(got) != 3 || got[2] != 63 {
		t.Fatalf("resource ids = %v", got)
	}
	if s.Clist.Retries != 2 || s.Clist.Timeout != 10*time.Second {
		t.Fatalf("clist = %+v", s.Clist)
	}
	want := []time.Duration{24 * time.Hour, 2 * time.Hour, 15 * time.Minute}
	if len(s.Reminders.Offsets) != len(want) {
		t.Fatalf("offsets = %v", s.Reminders.Offsets)
	}
	for i := range want {
		if s.Reminders.Offsets[i] != want[i] {
			t.Fatalf("offsets = %v, want %v", s.Reminders.Offsets, want)
		}
	}
	if s.Reminders.ListLimit != 3 || s.Reminders.Location != time.UTC || s.Reminders.Reconcile != "@every 30m" {
		t.Fatalf("reminders = %+v", s.Reminders)
	}
	if s.Storage.Driver != "sqlite" || s.Storage.BusyTimeout != 2*time.Second {
		t.Fatalf("storage = %+v", s.Storage)
	}
	if s.Logging.Level != "debug" || !s.Logging.Console {
		t.Fatalf("logging = %+v", s.Logging)
	}
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	s, err := Resolve(&Config{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(s.Reminders.Offsets) != 2 || s.Reminders.Offsets[0] != 24*time.Hour || s.Reminders.Offsets[1] != 2*time.Hour {
		t.Fatalf("offsets = %v", s.Reminders.Offsets)
	}
	if s.Reminders.ListLimit != 6 || s.Reminders.Reconcile != "1h" {
		t.Fatalf("reminders = %+v", s.Reminders)
	}
	if s.Reminders.Location.String() != "Europe/Berlin" {
		t.Fatalf("location = %s", s.Reminders.Location)
	}
	if s.Status.Enabled || s.Status.Addr != DefaultStatusAddr {
		t.Fatalf("status = %+v", s.Status)
	}
	if s.Storage.Driver != "" {
		t.Fatalf("storage should be disabled, got %+v", s.Storage)
	}
}

func TestResolveReportsEveryError(t *testing.T) {
	t.Parallel()
	negative := -1
	cfg := &Config{
		Telegram:  TelegramConfig{PollTimeout: "soon"},
		Clist:     ClistConfig{Retries: &negative},
		Reminders: RemindersConfig{Offsets: []string{"0s"}, Reconcile: "whenever", DisplayTimezone: "Mars/Olympus"},
		Storage:   &StorageConfig{Driver: "mongo"},
	}
	_, err := Resolve(cfg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{
		"telegram.poll_timeout", "clist.retries", "reminders.offsets[0]",
		"reminders.reconcile", "Mars/Olympus", "storage.driver",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestDecodeRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		data string
	}{
		{"unknown yaml key", "c.yaml", "telegram:\n  tokn: x\n"},
		{"unknown json key", "c.json", `{"pprof":{}}`},
		{"trailing json", "c.json", `{} {}`},
		{"bad yaml", "c.yml", "telegram: [\n"},
	}
	for _, tt := range tests {
		if _, err := Decode(tt.path, []byte(tt.data)); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestValidateRequiresSecrets(t *testing.T) {
	t.Parallel()
	err := Validate(&Config{})
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, env := range []string{EnvTelegramToken, EnvClistUsername, EnvClistAPIKey} {
		if !strings.Contains(err.Error(), env) {
			t.Fatalf("error %q does not mention %s", err, env)
		}
	}

	if !strings.Contains(err.Error(), "clist.resource_ids") {
		t.Fatalf("error %q does not mention clist.resource_ids", err)
	}

	cfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Clist:    ClistConfig{Username: "u", APIKey: "k", ResourceIDs: []int{1}},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cfg.Logging.Telegram.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("telegram log sink without chat id accepted")
	}
}

func TestValidateRequiresResourceIDs(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Clist:    ClistConfig{Username: "u", APIKey: "k"},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "clist.resource_ids must not be empty") {
		t.Fatalf("empty resource ids: err = %v", err)
	}
	cfg.Clist.ResourceIDs = []int{1, 2, 63}
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		EnvTelegramToken: " tok ",
		EnvClistAPIKey:   "key",
	}
	cfg := &Config{Clist: ClistConfig{Username: "from-file", APIKey: "old"}}
	ApplyEnvFrom(cfg, func(k string) string { return env[k] })

	if cfg.Telegram.Token != "tok" || cfg.Clist.APIKey != "key" || cfg.Clist.Username != "from-file" {
		t.Fatalf("after env: %+v", cfg)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	t.Parallel()
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}, Telegram: TelegramConfig{Token: "a"}}
	newCfg := &Config{Logging: LoggingConfig{Level: "debug"}, Telegram: TelegramConfig{Token: "b"}, Status: StatusConfig{Enabled: true}}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "logging,status,telegram" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("no attrs")
	}
	if got := RestartRequired(changed); strings.Join(got, ",") != "status,telegram" {
		t.Fatalf("restart required = %v", got)
	}
}

func TestManagerReloadValidatesAndPublishes(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	write := func(s string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(s), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(`{"logging":{"level":"info"}}`)

	m := NewConfigManager(path)
	m.getenv = func(string) string { return "" }
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	errInvalid := errors.New("level not allowed")
	m.SetValidator(func(_ context.Context, c *Config) error {
		if c.Logging.Level == "trace" {
			return errInvalid
		}
		return nil
	})

	// Unchanged content is not published.
	m.reload(context.Background())
	select {
	case <-ch:
		t.Fatalf("unchanged config published")
	default:
	}

	write(`{"logging":{"level":"trace"}}`)
	m.reload(context.Background())
	if m.Get().Logging.Level != "info" {
		t.Fatalf("rejected config committed")
	}

	write(`{"logging":{"level":"debug"}}`)
	m.reload(context.Background())
	select {
	case c := <-ch:
		if c.Logging.Level != "debug" {
			t.Fatalf("published level = %q", c.Logging.Level)
		}
	default:
		t.Fatalf("valid change not published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("valid change not committed")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"90m", 90 * time.Minute, false},
		{"1d", 24 * time.Hour, false},
		{"2d12h", 60 * time.Hour, false},
		{"-1h", 0, true},
		{"1dx", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("x", tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("%q = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
