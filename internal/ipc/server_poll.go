//go:build linux || darwin

package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/rbright/showdialog/internal/fsm"
)

// Server multiplexes every client connection on the goroutine running Serve.
// All sockets are non-blocking; the only suspension point is the poll(2)
// readiness wait, bounded by Params.Timeout.
type Server struct {
	params  Params
	handler Handler
	logger  *slog.Logger

	listenFD int
	addr     net.Addr
	wakeR    int
	wakeW    int

	// conns is only touched from the event loop.
	conns    map[int]*conn
	buf      []byte
	served   bool
	released bool

	// acceptPausedUntil keeps the listener out of the poll set while the
	// process is out of descriptors.
	acceptPausedUntil time.Time
}

// acceptBackoff is how long the listener sits out after EMFILE or ENFILE.
const acceptBackoff = 250 * time.Millisecond

type conn struct {
	fd              int
	id              string
	peer            string
	state           fsm.State
	inbound         []byte
	outbound        []byte
	closeAfterFlush bool
}

type eventKind int

const (
	eventWake eventKind = iota
	eventListenerReady
	eventConnReadable
	eventConnWritable
	eventConnInvalid
)

type event struct {
	kind eventKind
	conn *conn
}

// Listen binds and listens on params' address without serving yet.
func Listen(params Params, handler Handler, logger *slog.Logger) (*Server, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = EchoHandler
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sa, domain, err := sockaddrFor(params)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("ipc socket: %w", err)
	}
	unix.CloseOnExec(fd)

	fail := func(op string, err error) (*Server, error) {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%s %s: %w", op, params.Address(), err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("reuse address", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return fail("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("set non-blocking", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}

	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		return fail("wake pipe", err)
	}
	for _, p := range pipe {
		unix.CloseOnExec(p)
		if err := unix.SetNonblock(p, true); err != nil {
			_ = unix.Close(pipe[0])
			_ = unix.Close(pipe[1])
			return fail("wake pipe", err)
		}
	}

	return &Server{
		params:   params,
		handler:  handler,
		logger:   logger,
		listenFD: fd,
		addr:     tcpAddrOf(bound),
		wakeR:    pipe[0],
		wakeW:    pipe[1],
		conns:    make(map[int]*conn),
		buf:      make([]byte, params.BufferSize),
	}, nil
}

// Addr returns the bound address, with the kernel-chosen port when Params.Port is 0.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve runs the event loop until ctx is cancelled, then releases the
// listener and every open connection. An idle wait only logs and loops.
func (s *Server) Serve(ctx context.Context) error {
	if s.served {
		return errors.New("ipc server already served")
	}
	s.served = true
	defer s.release()

	stop := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			_, _ = unix.Write(s.wakeW, []byte{1})
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		<-watcherDone
	}()

	s.logger.Info("ipc server listening", "address", s.addr.String())

	for {
		if ctx.Err() != nil {
			s.logger.Warn("ipc server closing on cancellation")
			return nil
		}

		now := time.Now()
		fds := s.pollSet(now)
		wait, resuming := s.pollWait(now)
		n, err := unix.Poll(fds, wait)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("ipc poll: %w", err)
		}
		if n == 0 {
			if resuming {
				continue
			}
			s.logger.Warn("ipc server wait timed out", "timeout", s.params.TimeoutDuration().String())
			continue
		}

		for _, ev := range s.events(fds) {
			s.dispatch(ctx, ev)
		}
	}
}

// Close releases a server whose Serve was never called.
func (s *Server) Close() error {
	if s.served {
		return nil
	}
	s.release()
	return nil
}

func (s *Server) pollSet(now time.Time) []unix.PollFd {
	fds := make([]unix.PollFd, 0, len(s.conns)+2)
	fds = append(fds, unix.PollFd{Fd: int32(s.wakeR), Events: unix.POLLIN})
	if !now.Before(s.acceptPausedUntil) {
		fds = append(fds, unix.PollFd{Fd: int32(s.listenFD), Events: unix.POLLIN})
	}
	for fd, c := range s.conns {
		events := int16(unix.POLLIN)
		if len(c.outbound) > 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	return fds
}

// pollWait returns the poll timeout in milliseconds. While accepts are paused
// the wait is cut short so the listener rejoins on time; resuming reports that
// an empty poll is the end of the pause rather than an idle timeout.
func (s *Server) pollWait(now time.Time) (wait int, resuming bool) {
	timeout := s.params.TimeoutDuration()
	if remaining := s.acceptPausedUntil.Sub(now); remaining > 0 && remaining < timeout {
		timeout, resuming = remaining, true
	}
	wait = int((timeout + time.Millisecond - 1) / time.Millisecond)
	if wait <= 0 {
		wait = 1
	}
	return wait, resuming
}

func (s *Server) events(fds []unix.PollFd) []event {
	var out []event
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		switch fd := int(pfd.Fd); fd {
		case s.wakeR:
			out = append(out, event{kind: eventWake})
		case s.listenFD:
			out = append(out, event{kind: eventListenerReady})
		default:
			c, ok := s.conns[fd]
			if !ok {
				continue
			}
			if pfd.Revents&unix.POLLNVAL != 0 {
				out = append(out, event{kind: eventConnInvalid, conn: c})
				continue
			}
			if pfd.Revents&unix.POLLOUT != 0 {
				out = append(out, event{kind: eventConnWritable, conn: c})
			}
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
				out = append(out, event{kind: eventConnReadable, conn: c})
			}
		}
	}
	return out
}

func (s *Server) dispatch(ctx context.Context, ev event) {
	switch ev.kind {
	case eventWake:
		s.drainWake()
	case eventListenerReady:
		s.accept()
	case eventConnReadable:
		if s.live(ev.conn) {
			s.read(ctx, ev.conn)
		}
	case eventConnWritable:
		if s.live(ev.conn) {
			s.flush(ev.conn)
		}
	case eventConnInvalid:
		if s.live(ev.conn) {
			s.logger.Warn("ipc connection descriptor invalid", "conn", ev.conn.id)
			s.closeConn(ev.conn, "invalid descriptor")
		}
	}
}

// live guards against events for a connection closed earlier in the same batch.
func (s *Server) live(c *conn) bool {
	return s.conns[c.fd] == c
}

func (s *Server) accept() {
	for {
		nfd, sa, err := unix.Accept(s.listenFD)
		if err != nil {
			switch {
			case isWouldBlock(err):
				return
			case errors.Is(err, unix.ECONNABORTED):
				continue
			default:
				s.acceptFailed(err, time.Now())
				return
			}
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			s.logger.Warn("ipc accept failed", "error", err.Error())
			_ = unix.Close(nfd)
			continue
		}

		c := &conn{fd: nfd, id: uuid.NewString(), peer: peerString(sa), state: fsm.StateAccepted}
		s.conns[nfd] = c
		s.logger.Debug("ipc server accepted connection", "conn", c.id, "peer", c.peer)
	}
}

func (s *Server) acceptFailed(err error, now time.Time) {
	if errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE) {
		s.acceptPausedUntil = now.Add(acceptBackoff)
		s.logger.Warn("ipc accept paused", "error", err.Error(), "backoff", acceptBackoff.String())
		return
	}
	s.logger.Warn("ipc accept failed", "error", err.Error())
}

func (s *Server) read(ctx context.Context, c *conn) {
	n, err := unix.Read(c.fd, s.buf)
	if err != nil {
		if isWouldBlock(err) {
			return
		}
		s.logger.Warn("ipc read failed", "conn", c.id, "error", err.Error())
		s.closeConn(c, "read failed")
		return
	}
	if n == 0 {
		s.closeConn(c, "peer closed")
		return
	}
	if err := s.transition(c, fsm.EventReadable); err != nil {
		s.logger.Warn("ipc unexpected data", "conn", c.id, "error", err.Error())
		s.closeConn(c, "unexpected data")
		return
	}

	c.inbound = append(c.inbound, s.buf[:n]...)
	s.logger.Debug("ipc server received", "conn", c.id, "bytes", n)

	if !complete(c.inbound) {
		if len(c.inbound) < MaxRequestSize {
			return
		}
		s.logger.Warn("ipc request too large", "conn", c.id, "bytes", len(c.inbound))
		c.closeAfterFlush = true
		c.outbound, _ = Message{
			Type:    TypeFail,
			Message: fmt.Sprintf("request exceeds %d bytes", MaxRequestSize),
		}.Encode()
	} else {
		c.outbound = replyFor(ctx, s.handler, c.inbound)
	}

	c.inbound = nil
	if err := s.transition(c, fsm.EventComplete); err != nil {
		s.logger.Warn("ipc connection state", "conn", c.id, "error", err.Error())
		s.closeConn(c, "state error")
		return
	}
	s.flush(c)
}

// flush writes pending reply bytes; leftovers wait for write readiness.
func (s *Server) flush(c *conn) {
	for len(c.outbound) > 0 {
		n, err := unix.Write(c.fd, c.outbound)
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			s.logger.Warn("ipc write failed", "conn", c.id, "error", err.Error())
			s.closeConn(c, "write failed")
			return
		}
		c.outbound = c.outbound[n:]
	}

	if err := s.transition(c, fsm.EventFlushed); err != nil {
		s.logger.Warn("ipc connection state", "conn", c.id, "error", err.Error())
	}
	s.logger.Debug("ipc server replied", "conn", c.id)
	if c.closeAfterFlush {
		s.closeConn(c, "request rejected")
	}
}

func (s *Server) transition(c *conn, ev fsm.Event) error {
	next, err := fsm.ConnTransition(c.state, ev)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

func (s *Server) closeConn(c *conn, reason string) {
	delete(s.conns, c.fd)
	c.state, _ = fsm.ConnTransition(c.state, fsm.EventClose)
	if err := unix.Close(c.fd); err != nil {
		s.logger.Debug("ipc close failed", "conn", c.id, "error", err.Error())
	}
	s.logger.Debug("ipc server closed connection", "conn", c.id, "reason", reason)
}

func (s *Server) drainWake() {
	var b [16]byte
	for {
		if _, err := unix.Read(s.wakeR, b[:]); err != nil {
			return
		}
	}
}

func (s *Server) release() {
	if s.released {
		return
	}
	s.released = true

	for _, c := range s.conns {
		s.closeConn(c, "server stopping")
	}
	_ = unix.Close(s.listenFD)
	_ = unix.Close(s.wakeR)
	_ = unix.Close(s.wakeW)
	s.logger.Debug("ipc server closed")
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

func sockaddrFor(params Params) (unix.Sockaddr, int, error) {
	addr, err := net.ResolveTCPAddr("tcp", params.Address())
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %s: %w", params.Address(), err)
	}

	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}

	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	if addr.Zone != "" {
		if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa, unix.AF_INET6, nil
}

func tcpAddrOf(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3]), Port: a.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	default:
		return nil
	}
}

func peerString(sa unix.Sockaddr) string {
	if addr := tcpAddrOf(sa); addr != nil {
		return addr.String()
	}
	return "unknown"
}
