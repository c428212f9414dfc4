package config

import (
	"fmt"
	"strings"

	"github.com/rbright/showdialog/internal/logging"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := cfg.IPC.Validate(); err != nil {
		return nil, err
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	if cfg.Update.CheckOnly && !cfg.Update.Check {
		warnings = append(warnings, Warning{Message: "update.check_only implies update.check"})
	}
	if strings.TrimSpace(cfg.Update.File) != "" && strings.TrimSpace(cfg.Update.Manifest) == "" {
		warnings = append(warnings, Warning{Message: "update.file is ignored without update.manifest"})
	}

	return warnings, nil
}
