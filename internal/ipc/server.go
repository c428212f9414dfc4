package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
)

// ErrAlreadyRunning reports a live server already bound to the address.
var ErrAlreadyRunning = errors.New("show-dialog ipc server already running")

// Start listens on params' address and serves until ctx is cancelled.
func Start(ctx context.Context, params Params, handler Handler, logger *slog.Logger) error {
	srv, err := Listen(params, handler, logger)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Acquire binds params' address. When the address is taken it probes the
// current owner and returns ErrAlreadyRunning if that owner answers.
func Acquire(ctx context.Context, params Params, handler Handler, logger *slog.Logger) (*Server, error) {
	srv, err := Listen(params, handler, logger)
	if err == nil {
		return srv, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, err
	}

	alive, probeErr := Probe(ctx, params)
	if alive {
		return nil, ErrAlreadyRunning
	}
	if probeErr != nil {
		return nil, fmt.Errorf("probe existing server %s: %w", params.Address(), probeErr)
	}
	return nil, err
}
