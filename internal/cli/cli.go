// Package cli defines the show-dialog command tree and its option types.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbright/showdialog/internal/ipc"
)

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath    string
	LogLevel      string
	IPCParamsFile string
	// IPC holds flag overrides; zero values mean "not given".
	IPC ipc.Params
}

// ShowOptions configure the dialog command.
type ShowOptions struct {
	Inputs     string
	InputsFile string
	Listen     bool
	// CheckUpdate and CheckUpdateOnly are nil unless set on the command line.
	CheckUpdate     *bool
	CheckUpdateOnly *bool
	UpdateManifest  string
	UpdateFile      string
}

// SendOptions configure a one-shot IPC round trip.
type SendOptions struct {
	Type    string
	Message string
	Data    string
}

// UpdateOptions configure check-update.
type UpdateOptions struct {
	Manifest string
	File     string
	Apply    bool
}

// Actions executes parsed commands.
type Actions interface {
	Show(ctx context.Context, global GlobalOptions, opts ShowOptions) error
	Serve(ctx context.Context, global GlobalOptions) error
	Send(ctx context.Context, global GlobalOptions, opts SendOptions) error
	CheckUpdate(ctx context.Context, global GlobalOptions, opts UpdateOptions) error
	Doctor(ctx context.Context, global GlobalOptions) error
	Version(ctx context.Context) error
}

// UsageError marks bad invocations: unknown commands, unknown flags, bad values.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// IsUsageError reports whether err came from command-line parsing.
func IsUsageError(err error) bool {
	var usageErr *UsageError
	return errors.As(err, &usageErr)
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// NewRootCommand builds the command tree. The root command shows the dialog.
func NewRootCommand(binaryName string, actions Actions, stdout, stderr io.Writer) *cobra.Command {
	var (
		global      GlobalOptions
		show        ShowOptions
		showVersion bool
	)

	root := &cobra.Command{
		Use:           binaryName,
		Short:         "Show a pass/fail dialog controllable over TCP",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				return actions.Version(cmd.Context())
			}
			return actions.Show(cmd.Context(), global, showFlags(cmd, show))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
	root.CompletionOptions.DisableDefaultCmd = true

	persistent := root.PersistentFlags()
	persistent.StringVar(&global.ConfigPath, "config", "", "config file (default $XDG_CONFIG_HOME/show-dialog/config.yaml)")
	persistent.StringVar(&global.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	persistent.StringVar(&global.IPCParamsFile, "ipc-params", "", "JSON or YAML file with IPC params")
	persistent.StringVar(&global.IPC.Host, "host", "", "IPC host override")
	persistent.IntVar(&global.IPC.Port, "port", 0, "IPC port override")
	persistent.Float64Var(&global.IPC.Timeout, "timeout", 0, "IPC timeout override in seconds")
	persistent.IntVar(&global.IPC.BufferSize, "buffer-size", 0, "IPC read buffer size override")

	root.Flags().BoolVar(&showVersion, "version", false, "print version information")
	bindShowFlags(root, &show)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the dialog (default command)",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return actions.Show(cmd.Context(), global, showFlags(cmd, show))
		},
	}
	bindShowFlags(showCmd, &show)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the echo IPC server until interrupted",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return actions.Serve(cmd.Context(), global)
		},
	}

	var send SendOptions
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message and print the reply",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := ipc.ParseMessageType(send.Type); err != nil {
				return &UsageError{Err: err}
			}
			return actions.Send(cmd.Context(), global, send)
		},
	}
	sendCmd.Flags().StringVar(&send.Type, "type", "", "message type: message, timeout, ack, pass, fail")
	sendCmd.Flags().StringVar(&send.Message, "message", "", "message text")
	sendCmd.Flags().StringVar(&send.Data, "data", "", "message data as a JSON object")

	var upd UpdateOptions
	checkUpdateCmd := &cobra.Command{
		Use:   "check-update",
		Short: "Compare the running version with the update manifest",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return actions.CheckUpdate(cmd.Context(), global, upd)
		},
	}
	checkUpdateCmd.Flags().StringVar(&upd.Manifest, "update-manifest", "", "update manifest file")
	checkUpdateCmd.Flags().StringVar(&upd.File, "update-file", "", "new executable to install")
	checkUpdateCmd.Flags().BoolVar(&upd.Apply, "apply", false, "install the update when one is available")

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run configuration and endpoint checks",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return actions.Doctor(cmd.Context(), global)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return actions.Version(cmd.Context())
		},
	}

	root.AddCommand(showCmd, serveCmd, sendCmd, checkUpdateCmd, doctorCmd, versionCmd)
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageErrorf("unexpected arguments for %q: %s", cmd.CommandPath(), strings.Join(args, " "))
	}
	return nil
}

func bindShowFlags(cmd *cobra.Command, show *ShowOptions) {
	flags := cmd.Flags()
	flags.StringVar(&show.Inputs, "inputs", "", "inputs as a JSON object; overrides --inputs-file")
	flags.StringVar(&show.InputsFile, "inputs-file", "", "JSON or YAML inputs file")
	flags.BoolVar(&show.Listen, "listen", false, "accept pass/fail messages over IPC while the dialog is open")
	flags.Bool("check-update", true, "check for an update after the dialog closes")
	flags.Bool("check-update-only", false, "only check for an update; never install")
	flags.StringVar(&show.UpdateManifest, "update-manifest", "", "update manifest file")
	flags.StringVar(&show.UpdateFile, "update-file", "", "new executable to install")
}

// showFlags copies the update toggles into opts only when given explicitly.
func showFlags(cmd *cobra.Command, opts ShowOptions) ShowOptions {
	flags := cmd.Flags()
	if flags.Changed("check-update") {
		value, _ := flags.GetBool("check-update")
		opts.CheckUpdate = &value
	}
	if flags.Changed("check-update-only") {
		value, _ := flags.GetBool("check-update-only")
		opts.CheckUpdateOnly = &value
	}
	return opts
}

// Execute runs the command tree for args and returns the command that ran.
func Execute(ctx context.Context, root *cobra.Command, args []string) (*cobra.Command, error) {
	root.SetArgs(args)
	return root.ExecuteContextC(ctx)
}
