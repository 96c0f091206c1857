// Package eventbus fans committed cutover state changes out to handlers:
// the structured log, outbound webhooks, and anything registered in-process.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Bus dispatches events to registered handlers in-process.
type Bus struct {
	handlers []Handler
	log      *slog.Logger
	mu       sync.RWMutex
}

// New creates a new event bus. A nil logger uses slog.Default.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log}
}

// Register adds a handler to the bus. Handlers are sorted by priority on
// each Dispatch call, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Dispatch sends an event to all registered handlers that handle its type.
// Handlers are called sequentially in priority order (lowest first).
// Handler errors are logged and counted but do not stop the chain.
func (b *Bus) Dispatch(ctx context.Context, event *Event) (failed int, err error) {
	if event == nil {
		return 0, fmt.Errorf("eventbus: nil event")
	}

	b.mu.RLock()
	matching := b.matchingHandlers(event.Type)
	b.mu.RUnlock()

	for _, h := range matching {
		if err := ctx.Err(); err != nil {
			return failed, fmt.Errorf("eventbus: context cancelled: %w", err)
		}
		if err := h.Handle(ctx, event); err != nil {
			failed++
			b.log.Warn("event handler failed", "handler", h.ID(), "event", event.Type, "subject", event.Subject, "error", err)
		}
	}
	return failed, nil
}

// Publish is Dispatch for callers that only fire and forget; the change the
// event describes is already committed.
func (b *Bus) Publish(ctx context.Context, event *Event) {
	if _, err := b.Dispatch(ctx, event); err != nil {
		b.log.Warn("event not delivered", "event", event.Type, "error", err)
	}
}

// Handlers returns all registered handlers (for introspection/status reporting).
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// matchingHandlers returns handlers that handle the given event type, sorted
// by priority (lowest first). Must be called with at least a read lock held.
func (b *Bus) matchingHandlers(eventType EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, t := range h.Handles() {
			if t == eventType {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}
