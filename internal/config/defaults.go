package config

import "github.com/rbright/showdialog/internal/ipc"

const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 47240
	DefaultTimeout = 5
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		IPC:    ipc.NewParams(DefaultHost, DefaultPort, DefaultTimeout),
		Update: UpdateConfig{Check: true},
		Log:    LogConfig{Level: "info"},
		Inputs: `{"title":"The Title","description":"The Description"}`,
	}
}
