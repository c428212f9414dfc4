package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rbright/showdialog/internal/datafile"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration, then
// overlays the environment.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}
	if strings.TrimSpace(explicitPath) == "" {
		if _, statErr := os.Stat(resolvedPath); errors.Is(statErr, os.ErrNotExist) {
			if sibling := jsonSibling(resolvedPath); fileExists(sibling) {
				resolvedPath = sibling
			}
		}
	}

	fileType, err := datafile.Resolve(resolvedPath, datafile.Auto)
	if err != nil {
		return Loaded{}, fmt.Errorf("config %q: %w", resolvedPath, err)
	}

	getenv, err := envLookup(resolvedPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Loaded{
				Path:   resolvedPath,
				Config: ApplyEnv(base, getenv),
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists: false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(content, fileType, base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   ApplyEnv(cfg, getenv),
		Warnings: warnings,
		Exists:   true,
	}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
