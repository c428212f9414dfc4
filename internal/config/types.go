// Package config resolves, parses, validates, and defaults show-dialog configuration.
package config

import "github.com/rbright/showdialog/internal/ipc"

// Config is the fully materialized runtime configuration used by show-dialog.
type Config struct {
	IPC    ipc.Params
	Update UpdateConfig
	Log    LogConfig
	Debug  bool
	// Inputs is the default dialog inputs JSON used when the command line
	// names none.
	Inputs string
}

// UpdateConfig controls the self-update check that runs after the dialog.
type UpdateConfig struct {
	Check     bool
	CheckOnly bool
	Manifest  string
	File      string
	// Ignore turns an update into a dry run: nothing is backed up or copied.
	Ignore bool
}

// LogConfig controls the JSONL log sink.
type LogConfig struct {
	Level string
}

// Warning is a non-fatal load/validation message.
type Warning struct {
	Message string
}
