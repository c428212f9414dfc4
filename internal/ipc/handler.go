package ipc

import (
	"context"
	"fmt"
)

// MaxRequestSize caps the bytes the server buffers for one request.
const MaxRequestSize = 64 << 10

// Handler processes one IPC request and returns its reply.
//
// The server calls Handle from its event loop, so implementations must not
// block.
type Handler interface {
	Handle(context.Context, Message) Message
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Message) Message

func (f HandlerFunc) Handle(ctx context.Context, msg Message) Message {
	return f(ctx, msg)
}

// EchoHandler acknowledges every request and echoes its text and data.
var EchoHandler = HandlerFunc(func(_ context.Context, msg Message) Message {
	return Message{
		Type:    TypeAck,
		Message: "Server received: " + msg.Message,
		Data:    msg.Data,
	}
})

// handleSafely isolates handler panics to the failing request.
func handleSafely(ctx context.Context, handler Handler, msg Message) (resp Message) {
	defer func() {
		if r := recover(); r != nil {
			resp = Message{Type: TypeFail, Message: fmt.Sprintf("handler panic: %v", r)}
		}
	}()
	return handler.Handle(ctx, msg)
}

// replyFor decodes a complete request and produces the bytes to send back.
func replyFor(ctx context.Context, handler Handler, raw []byte) []byte {
	var resp Message
	req, err := Decode(raw)
	if err != nil {
		resp = Message{Type: TypeFail, Message: fmt.Sprintf("decode request: %v", err)}
	} else {
		resp = handleSafely(ctx, handler, req)
	}

	out, err := resp.Encode()
	if err != nil {
		out, _ = Message{Type: TypeFail, Message: fmt.Sprintf("encode response: %v", err)}.Encode()
	}
	return out
}
