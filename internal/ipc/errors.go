package ipc

import (
	"errors"
	"net"
	"os"
	"syscall"
)

var (
	// ErrConnection reports a failed connect or a broken stream.
	ErrConnection = errors.New("ipc connection failed")
	// ErrTimeout reports an operation that outlived Params.Timeout.
	ErrTimeout = errors.New("ipc timeout")
	// ErrProtocol reports reply bytes that are not a valid Message.
	ErrProtocol = errors.New("ipc protocol error")
)

// isTimeout reports deadline and dial-timeout failures.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isConnectionRefused reports no-listener failures.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
