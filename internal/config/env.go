package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the config file.
const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvClistUsername = "CLIST_USERNAME"
	EnvClistAPIKey   = "CLIST_API_KEY"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv copies non-empty secret variables over cfg.
func ApplyEnv(cfg *Config) {
	ApplyEnvFrom(cfg, os.Getenv)
}

func ApplyEnvFrom(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, EnvTelegramToken)
	set(&cfg.Clist.Username, EnvClistUsername)
	set(&cfg.Clist.APIKey, EnvClistAPIKey)
}
