package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/rbright/showdialog/internal/fsm"
)

// Client performs exactly one request/response round trip over one TCP
// connection. It is not safe for concurrent use.
type Client struct {
	params Params
	conn   net.Conn
	state  fsm.State
	logger *slog.Logger
}

// Dial opens a TCP connection to params' address. Connect is bounded by
// params.Timeout; refusal or timeout fails with ErrConnection.
func Dial(ctx context.Context, params Params, logger *slog.Logger) (*Client, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{params: params, state: fsm.StateCreated, logger: logger}

	dialer := net.Dialer{Timeout: params.TimeoutDuration()}
	conn, err := dialer.DialContext(ctx, "tcp", params.Address())
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, params.Address(), errors.Join(ErrTimeout, err))
		}
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, params.Address(), err)
	}
	c.conn = conn
	if err := c.transition(fsm.EventConnect); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Debug("ipc client connected", "address", params.Address())
	return c, nil
}

// State reports where the client is in its round trip.
func (c *Client) State() fsm.State {
	return c.state
}

// Send writes msg in one write, waits for one reply Message, and closes the
// connection on every path. Write failures wrap ErrConnection, an expired
// deadline wraps ErrTimeout, and undecodable reply bytes wrap ErrProtocol.
func (c *Client) Send(msg Message) (resp Message, err error) {
	defer func() {
		if closeErr := c.Close(); closeErr != nil && err == nil {
			c.logger.Debug("ipc client close failed", "error", closeErr.Error())
		}
	}()

	if err := c.transition(fsm.EventSend); err != nil {
		return Message{}, err
	}

	payload, err := msg.Encode()
	if err != nil {
		return Message{}, err
	}

	timeout := c.params.TimeoutDuration()
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return Message{}, fmt.Errorf("%w: set write deadline: %w", ErrConnection, err)
	}
	c.logger.Debug("ipc client sending", "payload", string(payload))
	if _, err := c.conn.Write(payload); err != nil {
		return Message{}, c.ioError("write request", err)
	}
	if err := c.transition(fsm.EventWritten); err != nil {
		return Message{}, err
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Message{}, fmt.Errorf("%w: set read deadline: %w", ErrConnection, err)
	}
	raw, err := c.readReply()
	if err != nil {
		return Message{}, err
	}
	c.logger.Debug("ipc client received", "payload", string(raw))

	resp, err = Decode(raw)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return resp, nil
}

// Close releases the connection. It is safe to call more than once.
func (c *Client) Close() error {
	if c.state == fsm.StateClosed {
		return nil
	}
	c.state, _ = fsm.ClientTransition(c.state, fsm.EventClose)
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.logger.Debug("ipc client closed the connection")
	return err
}

// readReply reads buffer-sized chunks until one complete JSON value arrived.
func (c *Client) readReply() ([]byte, error) {
	buf := make([]byte, c.params.BufferSize)
	var reply []byte
	for {
		n, err := c.conn.Read(buf)
		reply = append(reply, buf[:n]...)
		if n > 0 && complete(reply) {
			return reply, nil
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(reply) == 0 {
				return nil, fmt.Errorf("%w: connection closed before reply", ErrProtocol)
			}
			return reply, nil
		}
		return nil, c.ioError("read response", err)
	}
}

func (c *Client) ioError(op string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %s after %s: %w", ErrTimeout, op, c.params.TimeoutDuration(), err)
	}
	return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
}

func (c *Client) transition(event fsm.Event) error {
	next, err := fsm.ClientTransition(c.state, event)
	if err != nil {
		return fmt.Errorf("ipc client: %w", err)
	}
	c.state = next
	return nil
}

// Send dials params, performs one round trip with msg, and closes.
func Send(ctx context.Context, params Params, msg Message, logger *slog.Logger) (Message, error) {
	client, err := Dial(ctx, params, logger)
	if err != nil {
		return Message{}, err
	}
	return client.Send(msg)
}

// Probe checks whether a responsive server is currently listening.
func Probe(ctx context.Context, params Params) (bool, error) {
	_, err := Send(ctx, params, Message{Type: TypeAck}, nil)
	if err == nil {
		return true, nil
	}
	if isConnectionRefused(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe %s: %w", params.Address(), err)
}
