package config

import (
	"bytes"

	"github.com/rbright/showdialog/internal/datafile"
)

type fileConfig struct {
	IPC    *fileIPC    `json:"ipc" yaml:"ipc"`
	Update *fileUpdate `json:"update" yaml:"update"`
	Log    *fileLog    `json:"log" yaml:"log"`
	Debug  *bool       `json:"debug" yaml:"debug"`
}

type fileIPC struct {
	Host       *string  `json:"host" yaml:"host"`
	Port       *int     `json:"port" yaml:"port"`
	Timeout    *float64 `json:"timeout" yaml:"timeout"`
	BufferSize *int     `json:"buffer_size" yaml:"buffer_size"`
}

type fileUpdate struct {
	Check     *bool   `json:"check" yaml:"check"`
	CheckOnly *bool   `json:"check_only" yaml:"check_only"`
	Manifest  *string `json:"manifest" yaml:"manifest"`
	File      *string `json:"file" yaml:"file"`
}

type fileLog struct {
	Level *string `json:"level" yaml:"level"`
}

// Parse overlays file content of the given type onto base. Keys absent from
// the file keep base values.
func Parse(content []byte, fileType datafile.FileType, base Config) (Config, []Warning, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	var file fileConfig
	if err := datafile.Unmarshal(content, fileType, &file); err != nil {
		return Config{}, nil, err
	}

	cfg := file.apply(base)
	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (f fileConfig) apply(cfg Config) Config {
	if f.IPC != nil {
		setString(&cfg.IPC.Host, f.IPC.Host)
		setInt(&cfg.IPC.Port, f.IPC.Port)
		if f.IPC.Timeout != nil {
			cfg.IPC.Timeout = *f.IPC.Timeout
		}
		setInt(&cfg.IPC.BufferSize, f.IPC.BufferSize)
	}
	if f.Update != nil {
		setBool(&cfg.Update.Check, f.Update.Check)
		setBool(&cfg.Update.CheckOnly, f.Update.CheckOnly)
		setString(&cfg.Update.Manifest, f.Update.Manifest)
		setString(&cfg.Update.File, f.Update.File)
	}
	if f.Log != nil {
		setString(&cfg.Log.Level, f.Log.Level)
	}
	setBool(&cfg.Debug, f.Debug)
	return cfg
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
