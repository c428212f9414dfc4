package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rbright/showdialog/internal/cli"
	"github.com/rbright/showdialog/internal/config"
	"github.com/rbright/showdialog/internal/update"
	"github.com/rbright/showdialog/internal/version"
)

type updateSettings struct {
	check     bool
	checkOnly bool
	manifest  string
	file      string
	dryRun    bool
}

// resolveUpdateSettings lets explicit show flags win over config.
func resolveUpdateSettings(cfg config.Config, opts cli.ShowOptions) updateSettings {
	settings := updateSettings{
		check:     cfg.Update.Check,
		checkOnly: cfg.Update.CheckOnly,
		manifest:  firstNonEmpty(opts.UpdateManifest, cfg.Update.Manifest),
		file:      firstNonEmpty(opts.UpdateFile, cfg.Update.File),
		dryRun:    cfg.Update.Ignore,
	}
	if opts.CheckUpdate != nil {
		settings.check = *opts.CheckUpdate
	}
	if opts.CheckUpdateOnly != nil {
		settings.checkOnly = *opts.CheckUpdateOnly
	}
	if settings.checkOnly {
		settings.check = true
	}
	return settings
}

// updateAfterDialog never changes the dialog's exit code; problems are
// reported as warnings.
func (r Runner) updateAfterDialog(rt runtime, settings updateSettings) {
	if !settings.check || strings.TrimSpace(settings.manifest) == "" {
		return
	}

	current, err := version.Semver()
	if err != nil {
		r.warnUpdate(rt, err)
		return
	}
	check, err := update.CheckManifest(current, settings.manifest)
	if err != nil {
		r.warnUpdate(rt, err)
		return
	}
	rt.logger.Debug("update check",
		"manifest", settings.manifest,
		"found", check.ManifestFound,
		"needed", check.Needed,
	)
	if !check.Needed {
		return
	}

	fmt.Fprintf(r.Stderr, "update available: %s -> %s\n", current, check.Target)
	if settings.checkOnly {
		return
	}
	if err := r.applyUpdate(rt, r.Stderr, settings.file, settings.dryRun); err != nil {
		r.warnUpdate(rt, err)
	}
}

func (r Runner) warnUpdate(rt runtime, err error) {
	fmt.Fprintf(r.Stderr, "warning: update: %v\n", err)
	rt.logger.Warn("update failed", "error", err.Error())
}

func (r Runner) applyUpdate(rt runtime, out io.Writer, file string, dryRun bool) error {
	updater := update.Updater{
		Executable: r.Executable,
		DryRun:     dryRun,
		Logger:     rt.logger,
	}
	applied, err := updater.Apply(file)
	if err != nil {
		var fileErr *update.FileUpdateError
		if errors.As(err, &fileErr) {
			rt.logger.Error("update rolled back", "executable", fileErr.Executable, "backup", fileErr.Backup)
		}
		return err
	}
	if applied.DryRun {
		fmt.Fprintf(out, "update dry run: %s left unchanged\n", applied.Executable)
		return nil
	}
	fmt.Fprintf(out, "updated %s (backup %s)\n", applied.Executable, applied.Backup)
	return nil
}

// CheckUpdate compares the running version with the manifest and installs
// the update when asked to.
func (r Runner) CheckUpdate(_ context.Context, global cli.GlobalOptions, opts cli.UpdateOptions) error {
	rt, err := r.prepare(global, "check-update")
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.loaded.Config
	manifest := firstNonEmpty(opts.Manifest, cfg.Update.Manifest)
	if manifest == "" {
		return errors.New("no update manifest configured")
	}

	current, err := version.Semver()
	if err != nil {
		return err
	}
	check, err := update.CheckManifest(current, manifest)
	if err != nil {
		return err
	}
	if !check.ManifestFound {
		return fmt.Errorf("update manifest not found: %s", manifest)
	}
	if !check.Needed {
		fmt.Fprintf(r.Stdout, "up to date: %s (latest %s)\n", current, check.Target)
		return nil
	}

	fmt.Fprintf(r.Stdout, "update available: %s -> %s\n", current, check.Target)
	if !opts.Apply {
		return nil
	}
	return r.applyUpdate(rt, r.Stdout, firstNonEmpty(opts.File, cfg.Update.File), cfg.Update.Ignore)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
