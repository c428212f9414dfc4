package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rbright/showdialog/internal/datafile"
)

// DefaultBufferSize is the per-read byte budget when none is configured.
const DefaultBufferSize = 1024

// MaxTimeout caps Params.Timeout, in seconds.
const MaxTimeout = 24 * 60 * 60

// ErrMissingField reports a required params key absent from a decoded file.
var ErrMissingField = errors.New("missing required field")

// Params configures one IPC endpoint. Timeout is in seconds and bounds every
// blocking socket operation of the client and each readiness wait of the
// server.
type Params struct {
	Host       string  `json:"host" yaml:"host"`
	Port       int     `json:"port" yaml:"port"`
	Timeout    float64 `json:"timeout" yaml:"timeout"`
	BufferSize int     `json:"buffer_size" yaml:"buffer_size"`
}

// NewParams builds params with the default buffer size.
func NewParams(host string, port int, timeout float64) Params {
	return Params{Host: host, Port: port, Timeout: timeout, BufferSize: DefaultBufferSize}
}

// LoadParams reads params from a JSON or YAML file.
func LoadParams(path string, fileType datafile.FileType) (Params, error) {
	return datafile.Load[Params](path, fileType)
}

// Save writes p to path as JSON or YAML.
func (p Params) Save(path string, fileType datafile.FileType) error {
	return datafile.Save(path, fileType, p)
}

// DeriveWith returns params taking each truthy field of overrides and the
// receiver's value otherwise. See datafile.Derive for the boolean rule.
func (p Params) DeriveWith(overrides Params) Params {
	return datafile.Derive(p, overrides)
}

// Address joins host and port for dialing or binding.
func (p Params) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// TimeoutDuration converts Timeout seconds to a duration clamped to
// 0..MaxTimeout, so out-of-range values never wrap negative.
func (p Params) TimeoutDuration() time.Duration {
	switch {
	case math.IsNaN(p.Timeout) || p.Timeout <= 0:
		return 0
	case p.Timeout >= MaxTimeout:
		return MaxTimeout * time.Second
	}
	return time.Duration(p.Timeout * float64(time.Second))
}

// Validate checks the ranges every endpoint depends on.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("ipc host must not be empty")
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("ipc port must be within 0..65535, got %d", p.Port)
	}
	if math.IsNaN(p.Timeout) || p.Timeout <= 0 {
		return fmt.Errorf("ipc timeout must be > 0, got %v", p.Timeout)
	}
	if p.Timeout > MaxTimeout {
		return fmt.Errorf("ipc timeout must be <= %d seconds, got %v", MaxTimeout, p.Timeout)
	}
	if p.BufferSize <= 0 {
		return fmt.Errorf("ipc buffer_size must be > 0, got %d", p.BufferSize)
	}
	return nil
}

type paramsFile struct {
	Host       *string  `json:"host" yaml:"host"`
	Port       *int     `json:"port" yaml:"port"`
	Timeout    *float64 `json:"timeout" yaml:"timeout"`
	BufferSize *int     `json:"buffer_size" yaml:"buffer_size"`
}

func (f paramsFile) params() (Params, error) {
	switch {
	case f.Host == nil:
		return Params{}, fmt.Errorf("%w: host", ErrMissingField)
	case f.Port == nil:
		return Params{}, fmt.Errorf("%w: port", ErrMissingField)
	case f.Timeout == nil:
		return Params{}, fmt.Errorf("%w: timeout", ErrMissingField)
	}

	p := NewParams(*f.Host, *f.Port, *f.Timeout)
	if f.BufferSize != nil {
		p.BufferSize = *f.BufferSize
	}
	return p, nil
}

func (p *Params) UnmarshalJSON(b []byte) error {
	var f paramsFile
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	parsed, err := f.params()
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p *Params) UnmarshalYAML(value *yaml.Node) error {
	var f paramsFile
	if err := value.Decode(&f); err != nil {
		return err
	}
	parsed, err := f.params()
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
