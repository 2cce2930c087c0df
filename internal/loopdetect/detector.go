// Package loopdetect watches an agent's recent actions for repetition that
// signals it is stuck, and produces a corrective message to break the
// cycle. Detection is purely lexical: every action is reduced to a
// deterministic signature string and the ring buffer is scanned for
// immediate repeats and short cycles.
package loopdetect

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// BufferSize is the number of trailing action signatures the detector
// remembers.
const BufferSize = 20

// RepeatThreshold is how many identical consecutive signatures trigger
// detection.
const RepeatThreshold = 3

// Detector holds a fixed-size ring of action signatures and flags
// repetition. It is not reset when a loop fires — the corrective message
// is meant to break the behavior, not the bookkeeping, and a detector that
// forgot everything right after firing could never catch a relapse.
type Detector struct {
	buffer []string
}

// New returns an empty Detector.
func New() *Detector {
	return &Detector{}
}

// Signature builds the detector's canonical representation of a tool call:
// the name followed by its arguments sorted by key, pipe-separated.
func Signature(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, "tool_call", name)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, renderValue(args[k])))
	}
	return strings.Join(parts, "|")
}

// ResponseSignature builds the canonical signature for a text-only
// assistant turn (no tool call).
func ResponseSignature(text string) string {
	return "response|" + text
}

func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Record appends a signature to the buffer, evicting the oldest entry once
// BufferSize is exceeded, then checks for a loop.
func (d *Detector) Record(signature string) (looping bool, reason string) {
	d.buffer = append(d.buffer, signature)
	if len(d.buffer) > BufferSize {
		d.buffer = d.buffer[len(d.buffer)-BufferSize:]
	}
	return d.check()
}

func (d *Detector) check() (bool, string) {
	if repeatsLastN(d.buffer, RepeatThreshold) {
		return true, fmt.Sprintf("same action repeated %d times in a row", RepeatThreshold)
	}
	if hasCycle(d.buffer, 2) {
		return true, "detected a repeating 2-step cycle"
	}
	if hasCycle(d.buffer, 3) {
		return true, "detected a repeating 3-step cycle"
	}
	return false, ""
}

func repeatsLastN(buf []string, n int) bool {
	if len(buf) < n {
		return false
	}
	last := buf[len(buf)-1]
	for i := len(buf) - n; i < len(buf); i++ {
		if buf[i] != last {
			return false
		}
	}
	return true
}

// hasCycle reports whether the last 2*period entries consist of the same
// period-length sequence repeated twice.
func hasCycle(buf []string, period int) bool {
	need := period * 2
	if len(buf) < need {
		return false
	}
	tail := buf[len(buf)-need:]
	for i := 0; i < period; i++ {
		if tail[i] != tail[i+period] {
			return false
		}
	}
	return true
}

// LoopBreakerMessage is the corrective user message injected into history
// when Record reports a loop. It does not clear the detector's own buffer,
// only the conversation is steered; repeating the same mistake right after
// this message still trips detection again.
func LoopBreakerMessage(reason string) string {
	return "It looks like you're stuck in a loop: " + reason + ". " +
		"Stop repeating the same action. Step back, reconsider the approach, " +
		"and try something different or report what is blocking progress."
}
