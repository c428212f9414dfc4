package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvDebug        = "SHOW_DIALOG_DEBUG"
	EnvIgnoreUpdate = "SHOW_DIALOG_IGNORE_UPDATE"
	EnvInputs       = "SHOW_DIALOG_INPUTS"

	// EnvFileName sits next to the config file and supplies SHOW_DIALOG_*
	// values the process environment leaves unset.
	EnvFileName = "show-dialog.env"
)

// IsTruthy accepts "true" or "1", trimmed and case-insensitive.
func IsTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1":
		return true
	default:
		return false
	}
}

// ApplyEnv overlays SHOW_DIALOG_* environment variables onto cfg.
func ApplyEnv(cfg Config, getenv func(string) string) Config {
	if IsTruthy(getenv(EnvDebug)) {
		cfg.Debug = true
		cfg.Log.Level = "debug"
	}
	if IsTruthy(getenv(EnvIgnoreUpdate)) {
		cfg.Update.Ignore = true
	}
	if inputs := strings.TrimSpace(getenv(EnvInputs)); inputs != "" {
		cfg.Inputs = inputs
	}
	return cfg
}

// envLookup returns a getenv that prefers the process environment and falls
// back to the env file beside configPath.
func envLookup(configPath string) (func(string) string, error) {
	path := filepath.Join(filepath.Dir(configPath), EnvFileName)
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.Getenv, nil
		}
		return nil, fmt.Errorf("read env file %q: %w", path, err)
	}

	return func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		return values[key]
	}, nil
}
