package dialog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rbright/showdialog/internal/ipc"
)

// Controller serves IPC messages for an open dialog. pass resolves it as
// pass; fail and timeout resolve it as fail. Only the first resolution counts.
type Controller struct {
	logger *slog.Logger

	mu       sync.Mutex
	resolved bool
	results  chan Result
}

// NewController constructs a controller; a nil logger discards.
func NewController(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		logger:  logger,
		results: make(chan Result, 1),
	}
}

// Remote yields the single remote resolution.
func (c *Controller) Remote() <-chan Result {
	return c.results
}

// Handle implements ipc.Handler.
func (c *Controller) Handle(_ context.Context, msg ipc.Message) ipc.Message {
	switch msg.Type {
	case ipc.TypePass:
		return c.resolve(Result{Outcome: OutcomePass, Source: SourceRemote, Message: msg.Message})
	case ipc.TypeFail:
		return c.resolve(Result{Outcome: OutcomeFail, Source: SourceRemote, Message: msg.Message})
	case ipc.TypeTimeout:
		text := msg.Message
		if text == "" {
			text = "remote timeout"
		}
		return c.resolve(Result{Outcome: OutcomeFail, Source: SourceRemote, Message: text})
	default:
		return ipc.Message{Type: ipc.TypeAck, Message: msg.Message, Data: msg.Data}
	}
}

func (c *Controller) resolve(result Result) ipc.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		c.logger.Debug("dialog already resolved", "outcome", string(result.Outcome))
		return ipc.Message{Type: ipc.TypeAck, Message: "already resolved"}
	}
	c.resolved = true
	c.results <- result
	c.logger.Info("dialog resolved remotely", "outcome", string(result.Outcome))
	return ipc.Message{Type: ipc.TypeAck, Message: "resolved " + string(result.Outcome)}
}
