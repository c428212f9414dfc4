package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/showdialog/internal/config"
	"github.com/rbright/showdialog/internal/datafile"
	"github.com/rbright/showdialog/internal/dialog"
	"github.com/rbright/showdialog/internal/ipc"
)

type runnerPaths struct {
	dir        string
	configPath string
	port       int
}

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv(config.EnvDebug, "")
	t.Setenv(config.EnvIgnoreUpdate, "")
	t.Setenv(config.EnvInputs, "")

	port := freePort(t)
	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("ipc:\n  host: 127.0.0.1\n  port: %d\n  timeout: 1\n", port)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return runnerPaths{dir: dir, configPath: configPath, port: port}
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func newRunner(presenter dialog.Presenter) (Runner, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return Runner{
		Stdin:     strings.NewReader(""),
		Stdout:    &stdout,
		Stderr:    &stderr,
		Logger:    slog.New(slog.DiscardHandler),
		Presenter: presenter,
	}, &stdout, &stderr
}

func answer(outcome dialog.Outcome) dialog.Presenter {
	return dialog.PresenterFunc(func(context.Context, dialog.Inputs) (dialog.Result, error) {
		return dialog.Result{Outcome: outcome, Source: dialog.SourcePresenter}, nil
	})
}

func waitForServer(t *testing.T, port int) {
	t.Helper()
	params := ipc.NewParams("127.0.0.1", port, 0.2)
	require.Eventually(t, func() bool {
		alive, err := ipc.Probe(context.Background(), params)
		return err == nil && alive
	}, 3*time.Second, 20*time.Millisecond)
}

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	for _, args := range [][]string{{"version"}, {"--version"}} {
		var stdout bytes.Buffer
		var stderr bytes.Buffer

		exitCode := Execute(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
		require.Equal(t, 0, exitCode)
		require.Contains(t, stdout.String(), "show-dialog")
		require.Empty(t, stderr.String())
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteBadFlagValue(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"doctor", "--port", "many"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "invalid argument")
}

func TestShowPassAndFailExitCodes(t *testing.T) {
	paths := setupRunnerEnv(t)

	tests := []struct {
		outcome dialog.Outcome
		code    int
	}{
		{outcome: dialog.OutcomePass, code: 0},
		{outcome: dialog.OutcomeFail, code: 1},
	}
	for _, tc := range tests {
		t.Run(string(tc.outcome), func(t *testing.T) {
			runner, stdout, stderr := newRunner(answer(tc.outcome))
			exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "--inputs", `{"title":"t"}`})
			require.Equal(t, tc.code, exitCode, stderr.String())
			require.Equal(t, string(tc.outcome)+"\n", stdout.String())
			require.Empty(t, stderr.String())
		})
	}
}

func TestShowTerminalPresenter(t *testing.T) {
	paths := setupRunnerEnv(t)

	runner, stdout, _ := newRunner(nil)
	runner.Stdin = strings.NewReader("p\n")
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "show", "--inputs", `{"title":"Deploy?"}`})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Deploy?")
	require.True(t, strings.HasSuffix(stdout.String(), "pass\n"))
}

func TestShowRequiresInputs(t *testing.T) {
	paths := setupRunnerEnv(t)

	runner, _, stderr := newRunner(answer(dialog.OutcomePass))
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "inputs")
}

func TestShowDebugUsesDefaultInputs(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv(config.EnvDebug, "1")
	t.Setenv(config.EnvInputs, `{"title":"From env"}`)

	var got dialog.Inputs
	presenter := dialog.PresenterFunc(func(_ context.Context, inputs dialog.Inputs) (dialog.Result, error) {
		got = inputs
		return dialog.Result{Outcome: dialog.OutcomePass}, nil
	})

	runner, _, _ := newRunner(presenter)
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "From env", got.Title)
}

func TestShowMergesInputsFileAndInline(t *testing.T) {
	paths := setupRunnerEnv(t)
	file := filepath.Join(paths.dir, "inputs.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"title":"File","description":"From file"}`), 0o600))

	var got dialog.Inputs
	presenter := dialog.PresenterFunc(func(_ context.Context, inputs dialog.Inputs) (dialog.Result, error) {
		got = inputs
		return dialog.Result{Outcome: dialog.OutcomePass}, nil
	})

	runner, _, _ := newRunner(presenter)
	exitCode := runner.Execute(context.Background(), []string{
		"--config", paths.configPath,
		"--inputs-file", file,
		"--inputs", `{"title":"Inline"}`,
	})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "Inline", got.Title)
	require.Equal(t, "From file", got.Description)
}

func TestShowListenResolvesRemotely(t *testing.T) {
	paths := setupRunnerEnv(t)

	blocking := dialog.PresenterFunc(func(ctx context.Context, _ dialog.Inputs) (dialog.Result, error) {
		<-ctx.Done()
		return dialog.Result{}, ctx.Err()
	})

	go func() {
		params := ipc.NewParams("127.0.0.1", paths.port, 0.2)
		for range 150 {
			if alive, err := ipc.Probe(context.Background(), params); err == nil && alive {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		_, _ = ipc.Send(context.Background(), ipc.NewParams("127.0.0.1", paths.port, 1), ipc.Message{Type: ipc.TypeFail, Message: "remote says no"}, nil)
	}()

	runner, stdout, stderr := newRunner(blocking)
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "--inputs", `{"title":"t"}`, "--listen"})
	require.Equal(t, 1, exitCode)
	require.Equal(t, "fail\n", stdout.String())
	require.Contains(t, stderr.String(), "listening on 127.0.0.1:"+strconv.Itoa(paths.port))

	alive, err := ipc.Probe(context.Background(), ipc.NewParams("127.0.0.1", paths.port, 0.5))
	require.NoError(t, err)
	require.False(t, alive, "server must stop with the dialog")
}

func TestShowListenAlreadyRunning(t *testing.T) {
	paths := setupRunnerEnv(t)

	srv, err := ipc.Listen(ipc.NewParams("127.0.0.1", paths.port, 1), nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	runner, _, stderr := newRunner(answer(dialog.OutcomePass))
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "--inputs", `{}`, "--listen"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "already running")
}

func writeUpdateFixtures(t *testing.T, dir, manifestVersion string) (manifest, exe, newBuild string) {
	t.Helper()
	manifest = filepath.Join(dir, "latest.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("version: "+manifestVersion+"\n"), 0o644))
	exe = filepath.Join(dir, "show-dialog")
	require.NoError(t, os.WriteFile(exe, []byte("old"), 0o755))
	newBuild = filepath.Join(dir, "show-dialog.new")
	require.NoError(t, os.WriteFile(newBuild, []byte("new"), 0o755))
	return manifest, exe, newBuild
}

func TestShowAppliesUpdateAfterDialog(t *testing.T) {
	paths := setupRunnerEnv(t)
	manifest, exe, newBuild := writeUpdateFixtures(t, paths.dir, "99.0.0")

	runner, _, stderr := newRunner(answer(dialog.OutcomePass))
	runner.Executable = exe
	exitCode := runner.Execute(context.Background(), []string{
		"--config", paths.configPath,
		"--inputs", `{}`,
		"--update-manifest", manifest,
		"--update-file", newBuild,
	})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stderr.String(), "update available")

	content, err := os.ReadFile(exe)
	require.NoError(t, err)
	require.Equal(t, "new", string(content))
}

func TestShowUpdateRespectsCheckOnlyAndIgnore(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  string
	}{
		{name: "check only", args: []string{"--check-update-only"}},
		{name: "ignore env", env: "1"},
		{name: "check disabled", args: []string{"--check-update=false"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			paths := setupRunnerEnv(t)
			t.Setenv(config.EnvIgnoreUpdate, tc.env)
			manifest, exe, newBuild := writeUpdateFixtures(t, paths.dir, "99.0.0")

			runner, _, stderr := newRunner(answer(dialog.OutcomePass))
			runner.Executable = exe
			args := append([]string{
				"--config", paths.configPath,
				"--inputs", `{}`,
				"--update-manifest", manifest,
				"--update-file", newBuild,
			}, tc.args...)
			exitCode := runner.Execute(context.Background(), args)
			require.Equal(t, 0, exitCode, stderr.String())

			content, err := os.ReadFile(exe)
			require.NoError(t, err)
			require.Equal(t, "old", string(content))
		})
	}
}

func TestServeAndSendRoundTrip(t *testing.T) {
	paths := setupRunnerEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	serveRunner, serveStdout, serveStderr := newRunner(nil)
	done := make(chan int, 1)
	go func() {
		done <- serveRunner.Execute(ctx, []string{"--config", paths.configPath, "serve"})
	}()
	waitForServer(t, paths.port)

	runner, stdout, stderr := newRunner(nil)
	exitCode := runner.Execute(context.Background(), []string{
		"--config", paths.configPath,
		"send", "--type", "message", "--message", "hi", "--data", `{"n":1}`,
	})
	require.Equal(t, 0, exitCode, stderr.String())
	require.JSONEq(t, `{"type":"ack","message":"Server received: hi","data":{"n":1}}`, stdout.String())

	cancel()
	require.Equal(t, 0, <-done, serveStderr.String())
	require.Contains(t, serveStdout.String(), "listening on")
}

func TestSendWithoutServerFails(t *testing.T) {
	paths := setupRunnerEnv(t)

	runner, _, stderr := newRunner(nil)
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "send", "--type", "ack"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "connection")
}

func TestSendRejectsBadData(t *testing.T) {
	paths := setupRunnerEnv(t)

	runner, _, stderr := newRunner(nil)
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "send", "--type", "ack", "--data", "[1]"})
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "--data")
}

func TestIPCParamsFileAndFlagOverrides(t *testing.T) {
	paths := setupRunnerEnv(t)
	port := freePort(t)

	paramsFile := filepath.Join(paths.dir, "params.json")
	require.NoError(t, ipc.NewParams("127.0.0.1", 1, 1).Save(paramsFile, datafile.Auto))

	ctx, cancel := context.WithCancel(context.Background())
	serveRunner, _, _ := newRunner(nil)
	done := make(chan int, 1)
	go func() {
		done <- serveRunner.Execute(ctx, []string{
			"--config", paths.configPath,
			"--ipc-params", paramsFile,
			"--port", strconv.Itoa(port),
			"serve",
		})
	}()
	waitForServer(t, port)
	cancel()
	require.Equal(t, 0, <-done)
}

func TestDoctor(t *testing.T) {
	paths := setupRunnerEnv(t)

	runner, stdout, _ := newRunner(nil)
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 0, exitCode, stdout.String())
	require.Contains(t, stdout.String(), "[OK] config")
	require.Contains(t, stdout.String(), "[OK] ipc.endpoint")
}

func TestInvalidConfigFails(t *testing.T) {
	paths := setupRunnerEnv(t)
	require.NoError(t, os.WriteFile(paths.configPath, []byte("ipc:\n  buffer_size: -1\n"), 0o600))

	runner, _, stderr := newRunner(nil)
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "buffer_size")
}

func TestCheckUpdate(t *testing.T) {
	paths := setupRunnerEnv(t)
	manifest, exe, newBuild := writeUpdateFixtures(t, paths.dir, "99.0.0")

	runner, stdout, stderr := newRunner(nil)
	runner.Executable = exe
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "check-update", "--update-manifest", manifest})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "update available")

	content, err := os.ReadFile(exe)
	require.NoError(t, err)
	require.Equal(t, "old", string(content))

	stdout.Reset()
	exitCode = runner.Execute(context.Background(), []string{
		"--config", paths.configPath,
		"check-update", "--apply", "--update-manifest", manifest, "--update-file", newBuild,
	})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "updated "+exe)
}

func TestCheckUpdateErrors(t *testing.T) {
	paths := setupRunnerEnv(t)

	runner, _, stderr := newRunner(nil)
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "check-update"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no update manifest")

	stderr.Reset()
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "check-update", "--update-manifest", filepath.Join(paths.dir, "missing.yaml")})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "not found")
}

func TestCheckUpdateUpToDate(t *testing.T) {
	paths := setupRunnerEnv(t)
	manifest, _, _ := writeUpdateFixtures(t, paths.dir, "0.0.1")

	runner, stdout, _ := newRunner(nil)
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "check-update", "--update-manifest", manifest})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "up to date")
}

func TestInvalidLogLevelFails(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdin: strings.NewReader(""), Stdout: &stdout, Stderr: &stderr}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "--log-level", "chatty", "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "unknown log level")
}
