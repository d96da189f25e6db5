// Package dispatch routes named events to a priority-ordered chain of handlers.
// The first handler that claims an event answers it; later handlers never see it.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

// Event is a named request with a JSON payload.
type Event struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler answers events. claimed=false passes the event to the next handler.
type Handler interface {
	Handle(ctx context.Context, ev Event) (result any, claimed bool, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) (any, bool, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) (any, bool, error) {
	return f(ctx, ev)
}

// KindHandler claims exactly one event kind.
func KindHandler(kind string, fn func(ctx context.Context, payload json.RawMessage) (any, error)) Handler {
	return HandlerFunc(func(ctx context.Context, ev Event) (any, bool, error) {
		if ev.Kind != kind {
			return nil, false, nil
		}
		res, err := fn(ctx, ev.Payload)
		return res, true, err
	})
}

// Result is the answer to a dispatched event.
type Result struct {
	Handler string
	Value   any
}

type entry struct {
	name     string
	priority int
	seq      int
	h        Handler
}

// Chain is a priority-ordered handler list. Safe for concurrent use.
type Chain struct {
	mu       sync.RWMutex
	handlers []entry
	seq      int
	logger   *slog.Logger
}

// NewChain creates an empty chain.
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger}
}

// Register adds a handler. Higher priorities run first; equal priorities run
// in registration order.
func (c *Chain) Register(name string, priority int, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.handlers = append(c.handlers, entry{name: name, priority: priority, seq: c.seq, h: h})
	sort.SliceStable(c.handlers, func(i, j int) bool {
		if c.handlers[i].priority != c.handlers[j].priority {
			return c.handlers[i].priority > c.handlers[j].priority
		}
		return c.handlers[i].seq < c.handlers[j].seq
	})
}

// Len returns the number of registered handlers.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Dispatch offers ev to each handler in order and returns the first claim.
// An event nobody claims is a ProtocolError.
func (c *Chain) Dispatch(ctx context.Context, ev Event) (Result, error) {
	c.mu.RLock()
	handlers := append([]entry(nil), c.handlers...)
	c.mu.RUnlock()

	for _, e := range handlers {
		val, claimed, err := e.h.Handle(ctx, ev)
		if !claimed {
			continue
		}
		c.logger.Debug("event_claimed",
			slog.String("kind", ev.Kind),
			slog.String("handler", e.name))
		return Result{Handler: e.name, Value: val}, err
	}

	return Result{}, reqerrors.ProtocolError(reqerrors.ErrCodeUnknownKind,
		fmt.Sprintf("no handler for event kind %q", ev.Kind), nil)
}
