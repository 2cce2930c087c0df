package agent

import "errors"

// Sentinel errors for terminal turn-loop conditions. Everything a tool
// does wrong becomes a failure ToolResult instead, so the only Go errors
// that escape a run are these and transport failures from the provider.
var (
	// ErrMaxTurns ends a run that exhausted its turn budget without the
	// model producing a tool-free response.
	ErrMaxTurns = errors.New("maximum turns reached")

	// ErrNoProvider is returned when an Agent is assembled without an
	// LLM provider.
	ErrNoProvider = errors.New("no provider configured")
)
