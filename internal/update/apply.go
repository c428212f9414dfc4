package update

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUpdateFileNotSet is returned by Apply when no update file is given.
var ErrUpdateFileNotSet = errors.New("update file not set")

// FileUpdateError reports a failed copy that was rolled back.
type FileUpdateError struct {
	Executable string
	Backup     string
	Err        error
}

func (e *FileUpdateError) Error() string {
	return fmt.Sprintf("update %s failed and was rolled back from %s: %v", e.Executable, e.Backup, e.Err)
}

func (e *FileUpdateError) Unwrap() error {
	return e.Err
}

// Updater replaces Executable with a new build. The running file is renamed
// aside first because it may be locked while executing.
type Updater struct {
	Executable string
	DryRun     bool
	Now        func() time.Time
	Logger     *slog.Logger

	copyFile func(src, dst string) error
}

// Applied reports what Apply did.
type Applied struct {
	Executable string
	Backup     string
	DryRun     bool
}

// Apply backs up the executable to <stem>.bak_<unix> and copies updateFile in
// its place. A failed copy restores the backup.
func (u Updater) Apply(updateFile string) (Applied, error) {
	if strings.TrimSpace(updateFile) == "" {
		return Applied{}, ErrUpdateFileNotSet
	}
	if _, err := os.Stat(updateFile); err != nil {
		return Applied{}, fmt.Errorf("update file: %w", err)
	}

	logger := u.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := u.Now
	if now == nil {
		now = time.Now
	}
	copyFile := u.copyFile
	if copyFile == nil {
		copyFile = copyPreservingMode
	}

	current, err := u.executable()
	if err != nil {
		return Applied{}, err
	}
	backup := BackupPath(current, now())
	applied := Applied{Executable: current, Backup: backup, DryRun: u.DryRun}

	logger.Debug("updating executable", "executable", current, "backup", backup, "source", updateFile)
	if u.DryRun {
		logger.Info("update dry run; nothing changed", "executable", current)
		return applied, nil
	}

	if err := os.Rename(current, backup); err != nil {
		return Applied{}, fmt.Errorf("back up %s: %w", current, err)
	}

	if err := copyFile(updateFile, current); err != nil {
		logger.Warn("update failed, rolling back", "error", err.Error())
		_ = os.Remove(current)
		if rollbackErr := os.Rename(backup, current); rollbackErr != nil {
			return Applied{}, errors.Join(&FileUpdateError{Executable: current, Backup: backup, Err: err}, rollbackErr)
		}
		return Applied{}, &FileUpdateError{Executable: current, Backup: backup, Err: err}
	}

	logger.Info("executable updated", "executable", current, "backup", backup)
	return applied, nil
}

func (u Updater) executable() (string, error) {
	path := u.Executable
	if strings.TrimSpace(path) == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return resolved, nil
}

// BackupPath returns <dir>/<stem>.bak_<unix seconds> for executable.
func BackupPath(executable string, at time.Time) string {
	base := filepath.Base(executable)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(executable), fmt.Sprintf("%s.bak_%d", stem, at.Unix()))
}

func copyPreservingMode(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
