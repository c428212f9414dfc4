package ipc

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/showdialog/internal/datafile"
)

func TestNewParamsDefaultsBufferSize(t *testing.T) {
	p := NewParams("127.0.0.1", 4000, 2)
	require.Equal(t, DefaultBufferSize, p.BufferSize)
	require.Equal(t, "127.0.0.1:4000", p.Address())
	require.Equal(t, 2*time.Second, p.TimeoutDuration())
}

func TestParamsSaveLoadRoundTrip(t *testing.T) {
	want := Params{Host: "localhost", Port: 5123, Timeout: 2.5, BufferSize: 4096}

	for _, file := range []string{"ipc.json", "ipc.yaml", "ipc.yml"} {
		t.Run(file, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), file)
			require.NoError(t, want.Save(path, datafile.Auto))

			got, err := LoadParams(path, datafile.Auto)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func TestLoadParamsDefaultsBufferSize(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"ipc.json": `{"host": "127.0.0.1", "port": 9000, "timeout": 3}`,
		"ipc.yaml": "host: 127.0.0.1\nport: 9000\ntimeout: 3\n",
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		got, err := LoadParams(path, datafile.Auto)
		require.NoError(t, err)
		require.Equal(t, NewParams("127.0.0.1", 9000, 3), got)
	}
}

func TestLoadParamsRequiresFields(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		missing string
	}{
		{name: "json host", file: "a.json", content: `{"port": 1, "timeout": 1}`, missing: "host"},
		{name: "json port", file: "b.json", content: `{"host": "h", "timeout": 1}`, missing: "port"},
		{name: "yaml timeout", file: "c.yaml", content: "host: h\nport: 1\n", missing: "timeout"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))

			_, err := LoadParams(path, datafile.Auto)
			require.ErrorIs(t, err, ErrMissingField)
			require.Contains(t, err.Error(), tc.missing)
		})
	}
}

func TestLoadParamsExplicitFileType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipc.conf")
	require.NoError(t, os.WriteFile(path, []byte("host: h\nport: 1\ntimeout: 1\n"), 0o600))

	_, err := LoadParams(path, datafile.Auto)
	require.ErrorIs(t, err, datafile.ErrUnsupportedFileType)

	got, err := LoadParams(path, datafile.YAML)
	require.NoError(t, err)
	require.Equal(t, "h", got.Host)
}

func TestParamsDeriveWith(t *testing.T) {
	base := Params{Host: "127.0.0.1", Port: 4000, Timeout: 5, BufferSize: 1024}

	got := base.DeriveWith(Params{Port: 4100})
	require.Equal(t, Params{Host: "127.0.0.1", Port: 4100, Timeout: 5, BufferSize: 1024}, got)

	got = base.DeriveWith(Params{Host: "0.0.0.0", Timeout: 0.5, BufferSize: 2048})
	require.Equal(t, Params{Host: "0.0.0.0", Port: 4000, Timeout: 0.5, BufferSize: 2048}, got)

	got = base.DeriveWith(Params{})
	require.Equal(t, base, got)
}

func TestTimeoutDurationSaturates(t *testing.T) {
	tests := []struct {
		name    string
		timeout float64
		want    time.Duration
	}{
		{name: "fractional", timeout: 0.5, want: 500 * time.Millisecond},
		{name: "at cap", timeout: MaxTimeout, want: 24 * time.Hour},
		{name: "past int64 range", timeout: 1e12, want: 24 * time.Hour},
		{name: "infinite", timeout: math.Inf(1), want: 24 * time.Hour},
		{name: "negative", timeout: -1, want: 0},
		{name: "nan", timeout: math.NaN(), want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Params{Timeout: tc.timeout}.TimeoutDuration()
			require.Equal(t, tc.want, got)
			require.GreaterOrEqual(t, got, time.Duration(0))
		})
	}
}

func TestParamsValidate(t *testing.T) {
	valid := NewParams("127.0.0.1", 0, 1)
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Params)
		want   string
	}{
		{name: "empty host", mutate: func(p *Params) { p.Host = " " }, want: "host"},
		{name: "negative port", mutate: func(p *Params) { p.Port = -1 }, want: "port"},
		{name: "large port", mutate: func(p *Params) { p.Port = 65536 }, want: "port"},
		{name: "zero timeout", mutate: func(p *Params) { p.Timeout = 0 }, want: "timeout"},
		{name: "nan timeout", mutate: func(p *Params) { p.Timeout = math.NaN() }, want: "timeout"},
		{name: "timeout above cap", mutate: func(p *Params) { p.Timeout = MaxTimeout + 1 }, want: "timeout"},
		{name: "overflowing timeout", mutate: func(p *Params) { p.Timeout = 1e12 }, want: "timeout"},
		{name: "zero buffer", mutate: func(p *Params) { p.BufferSize = 0 }, want: "buffer_size"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
