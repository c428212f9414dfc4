package doctor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"

	"github.com/rbright/showdialog/internal/config"
	"github.com/rbright/showdialog/internal/ipc"
)

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestRunDefaultsWithNoServer(t *testing.T) {
	loaded := config.Loaded{Path: "/tmp/none/config.yaml", Config: config.Default()}
	params := ipc.NewParams("127.0.0.1", freePort(t), 0.5)

	report := Run(context.Background(), loaded, params, semver.MustParse("1.0.0"))
	require.True(t, report.OK(), report.String())
	require.Len(t, report.Checks, 3)
	require.Contains(t, report.String(), "using defaults")
	require.Contains(t, report.String(), "no server at")
}

func TestRunInvalidParamsSkipsProbe(t *testing.T) {
	loaded := config.Loaded{Path: "/tmp/config.yaml", Config: config.Default(), Exists: true}

	report := Run(context.Background(), loaded, ipc.Params{Host: "127.0.0.1"}, semver.MustParse("1.0.0"))
	require.False(t, report.OK())
	require.Len(t, report.Checks, 2)
	require.Equal(t, "ipc.params", report.Checks[1].Name)
}

func TestCheckManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "latest.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("version: 2.0.0\n"), 0o644))

	check := checkManifest(semver.MustParse("1.0.0"), manifest)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "update available: 1.0.0 -> 2.0.0")

	check = checkManifest(semver.MustParse("2.0.0"), manifest)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "up to date")

	check = checkManifest(semver.MustParse("1.0.0"), filepath.Join(dir, "missing.yaml"))
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "manifest not found")
}

func TestRunIncludesUpdateChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Update.Manifest = filepath.Join(dir, "latest.yaml")
	cfg.Update.File = dir
	require.NoError(t, os.WriteFile(cfg.Update.Manifest, []byte("version: 0.1.0\n"), 0o644))

	report := Run(context.Background(), config.Loaded{Path: "x", Config: cfg, Exists: true}, ipc.NewParams("127.0.0.1", freePort(t), 0.5), semver.MustParse("1.0.0"))
	require.False(t, report.OK())

	byName := map[string]Check{}
	for _, check := range report.Checks {
		byName[check.Name] = check
	}
	require.True(t, byName["update.manifest"].Pass)
	require.False(t, byName["update.file"].Pass)
	require.Contains(t, byName["update.file"].Message, "is a directory")
}
