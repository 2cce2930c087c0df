package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry holds in-process handlers, keyed by the lifecycle event they
// listen for, and dispatches events to them in priority order.
type Registry struct {
	mu       sync.RWMutex
	handlers map[EventType][]*Registration
	byID     map[string]*Registration
	logger   *slog.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[EventType][]*Registration),
		byID:     make(map[string]*Registration),
		logger:   logger.With("component", "hooks"),
	}
}

// RegisterOption configures a Registration at registration time.
type RegisterOption func(*Registration)

// WithPriority sets the handler's call-order priority.
func WithPriority(p Priority) RegisterOption {
	return func(r *Registration) { r.Priority = p }
}

// WithName sets a human-readable name for debugging.
func WithName(name string) RegisterOption {
	return func(r *Registration) { r.Name = name }
}

// Register adds handler for eventKey and returns its registration ID.
func (r *Registry) Register(eventKey EventType, handler Handler, opts ...RegisterOption) string {
	reg := &Registration{
		ID:       uuid.NewString(),
		EventKey: eventKey,
		Handler:  handler,
		Priority: PriorityNormal,
	}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventKey] = append(r.handlers[eventKey], reg)
	r.byID[reg.ID] = reg
	sort.SliceStable(r.handlers[eventKey], func(i, j int) bool {
		return r.handlers[eventKey][i].Priority < r.handlers[eventKey][j].Priority
	})
	return reg.ID
}

// Unregister removes a handler by its registration ID.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	handlers := r.handlers[reg.EventKey]
	for i, h := range handlers {
		if h.ID == id {
			r.handlers[reg.EventKey] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	return true
}

// Trigger calls every handler registered for event.Type, in priority order.
// A handler's panic or error is logged and does not stop the remaining
// handlers from running; Trigger itself always returns nil unless event is
// nil, since a broken hook must never abort the turn loop.
func (r *Registry) Trigger(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("hooks: event is nil")
	}

	r.mu.RLock()
	handlers := append([]*Registration(nil), r.handlers[event.Type]...)
	r.mu.RUnlock()

	for _, reg := range handlers {
		if err := r.callHandler(ctx, reg, event); err != nil {
			r.logger.Warn("hook handler error",
				"event", event.Type, "handler", reg.Name, "error", err)
		}
	}
	return nil
}

func (r *Registry) callHandler(ctx context.Context, reg *Registration, event *Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook panic: %v", p)
		}
	}()
	return reg.Handler(ctx, event)
}

// TriggerAsync fires Trigger in a goroutine and returns immediately.
func (r *Registry) TriggerAsync(ctx context.Context, event *Event) {
	go func() {
		_ = r.Trigger(ctx, event)
	}()
}

// HandlerCount returns how many handlers are registered for eventKey.
func (r *Registry) HandlerCount(eventKey EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[eventKey])
}
