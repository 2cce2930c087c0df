// Package hooks lets external commands observe and react to a turn loop's
// lifecycle: before/after the whole run, before/after each tool call, and on
// error. Two mechanisms share the same event taxonomy: in-process Go
// handlers registered via Registry (for this binary's own extensions) and
// the subprocess Dispatcher, which runs user-configured commands or scripts
// with the event's data passed as environment variables.
package hooks

import (
	"context"
	"time"
)

// EventType identifies the point in a turn loop's lifecycle a hook fires at.
// These five correspond exactly to the trigger values config.HookConfig
// accepts.
type EventType string

const (
	EventBeforeAgent EventType = "before_agent"
	EventAfterAgent  EventType = "after_agent"
	EventBeforeTool  EventType = "before_tool"
	EventAfterTool   EventType = "after_tool"
	EventOnError     EventType = "on_error"
)

// Event carries everything a hook, in-process or subprocess, might need to
// describe one lifecycle point. Only the fields relevant to Type are
// populated.
type Event struct {
	Type EventType

	Cwd string

	// before_tool / after_tool
	ToolName   string
	ToolParams string
	ToolResult string

	// before_agent / after_agent
	UserMessage string
	Response    string

	// on_error
	Err error

	Timestamp time.Time
}

// NewEvent creates an Event stamped with the current time.
func NewEvent(t EventType) *Event {
	return &Event{Type: t, Timestamp: time.Now()}
}

// Handler is a function that processes hook events in-process. Handlers
// should be fast and non-blocking; slow work belongs in a goroutine the
// handler itself starts.
type Handler func(ctx context.Context, event *Event) error

// Priority determines the order handlers are called for a given event.
type Priority int

const (
	PriorityHighest Priority = 0
	PriorityNormal  Priority = 50
	PriorityLowest  Priority = 100
)

// Registration represents one registered in-process handler.
type Registration struct {
	ID       string
	EventKey EventType
	Handler  Handler
	Priority Priority
	Name     string
}
