// Package app implements every show-dialog command on top of the cli tree.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/showdialog/internal/cli"
	"github.com/rbright/showdialog/internal/config"
	"github.com/rbright/showdialog/internal/datafile"
	"github.com/rbright/showdialog/internal/dialog"
	"github.com/rbright/showdialog/internal/doctor"
	"github.com/rbright/showdialog/internal/ipc"
	"github.com/rbright/showdialog/internal/logging"
	"github.com/rbright/showdialog/internal/version"
)

const binaryName = "show-dialog"

// errFailed ends a command with exit code 1 after it already reported why.
var errFailed = errors.New("command failed")

// Runner owns process I/O and implements cli.Actions.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Logger replaces the JSONL file logger when set.
	Logger *slog.Logger
	// Presenter replaces the terminal presenter when set.
	Presenter dialog.Presenter
	// Executable is the binary replaced by updates; empty means the running one.
	Executable string
}

var _ cli.Actions = Runner{}

// Execute parses args, runs the command, and returns the process exit code.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute maps command outcomes to exit codes: 0 success or pass, 1 failure
// or fail, 2 usage error.
func (r Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRootCommand(binaryName, r, r.Stdout, r.Stderr)
	cmd, err := cli.Execute(ctx, root, args)
	switch {
	case err == nil:
		return 0
	case cli.IsUsageError(err):
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		if cmd == nil {
			cmd = root
		}
		fmt.Fprint(r.Stderr, cmd.UsageString())
		return 2
	case errors.Is(err, errFailed):
		return 1
	default:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
}

// runtime is the per-command environment built from config and flags.
type runtime struct {
	logger *slog.Logger
	loaded config.Loaded
	params ipc.Params
	close  func()
}

func (r Runner) prepare(global cli.GlobalOptions, command string) (runtime, error) {
	loaded, err := config.Load(global.ConfigPath)
	if err != nil {
		return runtime{}, err
	}

	level := loaded.Config.Log.Level
	if strings.TrimSpace(global.LogLevel) != "" {
		level = global.LogLevel
	}

	rt := runtime{logger: r.Logger, loaded: loaded, close: func() {}}
	if rt.logger == nil {
		logRuntime, err := logging.New(level)
		if err != nil {
			return runtime{}, fmt.Errorf("setup logging: %w", err)
		}
		rt.logger = logRuntime.Logger
		rt.close = func() { _ = logRuntime.Close() }
	}

	for _, w := range loaded.Warnings {
		if !loaded.Exists {
			rt.logger.Debug("config warning", "message", w.Message)
			continue
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		rt.logger.Warn("config warning", "message", w.Message)
	}

	params, err := effectiveParams(loaded.Config.IPC, global)
	if err != nil {
		rt.close()
		return runtime{}, err
	}
	rt.params = params

	rt.logger.Info("command start",
		"command", command,
		"config", loaded.Path,
		"version", version.Version,
		"ipc", params.Address(),
	)
	return rt, nil
}

// effectiveParams layers config params, an optional params file, and flag
// overrides. Validation is left to the IPC layer so doctor can report it.
func effectiveParams(base ipc.Params, global cli.GlobalOptions) (ipc.Params, error) {
	params := base
	if file := strings.TrimSpace(global.IPCParamsFile); file != "" {
		loaded, err := ipc.LoadParams(file, datafile.Auto)
		if err != nil {
			return ipc.Params{}, fmt.Errorf("ipc params: %w", err)
		}
		params = loaded
	}
	return params.DeriveWith(global.IPC), nil
}

// Show presents the dialog, optionally accepting remote resolution over IPC,
// then runs the update check.
func (r Runner) Show(ctx context.Context, global cli.GlobalOptions, opts cli.ShowOptions) error {
	rt, err := r.prepare(global, "show")
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.loaded.Config
	inline := opts.Inputs
	if strings.TrimSpace(inline) == "" && strings.TrimSpace(opts.InputsFile) == "" && cfg.Debug {
		inline = cfg.Inputs
	}
	inputs, err := dialog.ResolveInputs(inline, opts.InputsFile)
	if err != nil {
		return err
	}
	rt.logger.Debug("dialog inputs",
		"dialog_title", inputs.DialogTitle,
		"title", inputs.Title,
		"description_md", inputs.DescriptionMD,
	)

	result, err := r.runDialog(ctx, rt, inputs, opts.Listen)
	logDialogResult(rt.logger, result, err)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.Stdout, result.Outcome)

	r.updateAfterDialog(rt, resolveUpdateSettings(cfg, opts))

	if !result.Passed() {
		return errFailed
	}
	return nil
}

func (r Runner) runDialog(ctx context.Context, rt runtime, inputs dialog.Inputs, listen bool) (dialog.Result, error) {
	presenter := r.Presenter
	if presenter == nil {
		presenter = dialog.Terminal{In: r.Stdin, Out: r.Stdout}
	}
	if !listen {
		return dialog.Run(ctx, presenter, inputs, nil)
	}

	controller := dialog.NewController(rt.logger)
	srv, err := ipc.Acquire(ctx, rt.params, controller, rt.logger)
	if err != nil {
		return dialog.Result{}, fmt.Errorf("listen: %w", err)
	}
	fmt.Fprintf(r.Stderr, "listening on %s\n", srv.Addr())

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Serve(serverCtx)
	}()

	result, runErr := dialog.Run(ctx, presenter, inputs, controller.Remote())
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		return result, errors.Join(runErr, fmt.Errorf("ipc server failed: %w", serverErr))
	}
	return result, runErr
}

func logDialogResult(logger *slog.Logger, result dialog.Result, err error) {
	fields := []any{
		"outcome", string(result.Outcome),
		"source", string(result.Source),
		"message", result.Message,
	}
	if err != nil {
		logger.Error("dialog failed", append(fields, "error", err.Error())...)
		return
	}
	logger.Info("dialog complete", fields...)
}

// Serve runs the echo server until ctx ends.
func (r Runner) Serve(ctx context.Context, global cli.GlobalOptions) error {
	rt, err := r.prepare(global, "serve")
	if err != nil {
		return err
	}
	defer rt.close()

	srv, err := ipc.Acquire(ctx, rt.params, ipc.EchoHandler, rt.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.Stdout, "listening on %s\n", srv.Addr())

	started := time.Now()
	err = srv.Serve(ctx)
	rt.logger.Info("server stopped", "uptime_ms", time.Since(started).Milliseconds())
	return err
}

// Send performs one round trip and prints the reply as JSON.
func (r Runner) Send(ctx context.Context, global cli.GlobalOptions, opts cli.SendOptions) error {
	msgType, err := ipc.ParseMessageType(opts.Type)
	if err != nil {
		return &cli.UsageError{Err: err}
	}
	msg := ipc.Message{Type: msgType, Message: opts.Message}
	if strings.TrimSpace(opts.Data) != "" {
		dec := json.NewDecoder(strings.NewReader(opts.Data))
		dec.UseNumber()
		if err := dec.Decode(&msg.Data); err != nil {
			return &cli.UsageError{Err: fmt.Errorf("--data must be a JSON object: %w", err)}
		}
		if dec.More() {
			return &cli.UsageError{Err: errors.New("--data must be a single JSON object")}
		}
	}

	rt, err := r.prepare(global, "send")
	if err != nil {
		return err
	}
	defer rt.close()

	resp, err := ipc.Send(ctx, rt.params, msg, rt.logger)
	if err != nil {
		rt.logger.Error("send failed", "error", err.Error(), "ipc", rt.params.Address())
		return err
	}

	raw, err := resp.Encode()
	if err != nil {
		return err
	}
	fmt.Fprintln(r.Stdout, string(raw))
	return nil
}

// Doctor prints the readiness report; any failing check exits 1.
func (r Runner) Doctor(ctx context.Context, global cli.GlobalOptions) error {
	rt, err := r.prepare(global, "doctor")
	if err != nil {
		return err
	}
	defer rt.close()

	current, err := version.Semver()
	if err != nil {
		return err
	}

	report := doctor.Run(ctx, rt.loaded, rt.params, current)
	fmt.Fprintln(r.Stdout, report.String())
	if !report.OK() {
		return errFailed
	}
	return nil
}

// Version prints build metadata.
func (r Runner) Version(context.Context) error {
	fmt.Fprintln(r.Stdout, version.String())
	return nil
}
