package config

import "strings"

// modelContextWindows maps known model ID prefixes to their context window
// sizes, used when the config does not set model.context_window itself.
var modelContextWindows = map[string]int{
	"claude-3-5-sonnet": 200000,
	"claude-3-5-haiku":  200000,
	"claude-sonnet-4":   200000,
	"claude-opus-4":     200000,
	"claude-haiku-4":    200000,
	"gpt-4":             8192,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"gpt-4.1":           1047576,
	"o1":                200000,
	"o3":                200000,
	"o4-mini":           200000,
}

// DefaultContextWindow is used when the model is unknown.
const DefaultContextWindow = 128000

// ContextWindowForModel returns the context window for a model ID, by the
// longest matching known prefix, falling back to DefaultContextWindow.
func ContextWindowForModel(model string) int {
	best := 0
	window := DefaultContextWindow
	for prefix, size := range modelContextWindows {
		if strings.HasPrefix(model, prefix) && len(prefix) > best {
			best = len(prefix)
			window = size
		}
	}
	return window
}
