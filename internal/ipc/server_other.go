//go:build !linux && !darwin

package ipc

import (
	"context"
	"errors"
	"log/slog"
	"net"
)

var errUnsupportedPlatform = errors.New("ipc server requires linux or darwin")

// Server is unavailable on this platform.
type Server struct{}

func Listen(Params, Handler, *slog.Logger) (*Server, error) {
	return nil, errUnsupportedPlatform
}

func (s *Server) Addr() net.Addr {
	return nil
}

func (s *Server) Serve(context.Context) error {
	return errUnsupportedPlatform
}

func (s *Server) Close() error {
	return nil
}
