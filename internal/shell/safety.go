// Package shell provides the lexical safety layer under the shell tool:
// screening of commands that must never run regardless of approval policy,
// and sanitisation of the environment a child process inherits. Screening
// here is a last line behind the approval engine — a blocked command that
// somehow reaches execution fails with Blocked set rather than running.
package shell

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrBlocked marks a command rejected by lexical screening.
var ErrBlocked = errors.New("command blocked by safety screening")

// blockedPrefixes are command prefixes that never execute. Matched against
// the trimmed, lowercased command.
var blockedPrefixes = []string{
	"rm -rf /",
	"rm -rf ~",
	"rm -rf *",
	"rm -fr /",
	"dd if=",
	"mkfs",
	":(){ :|:& };:",
	"chmod 777 /",
	"chmod -r 777 /",
	"> /dev/sda",
	"mv /* ",
}

// blockedSubstrings are matched anywhere in the command: a pipe into a
// shell can follow arbitrary leading text.
var blockedSubstrings = []string{
	"| sh",
	"| bash",
	"|sh",
	"|bash",
}

// ScreenCommand returns ErrBlocked (wrapped with the matched pattern) when
// command hits a blocked pattern, nil otherwise.
func ScreenCommand(command string) error {
	lower := strings.ToLower(strings.TrimSpace(command))
	for _, prefix := range blockedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return fmt.Errorf("%w: matches %q", ErrBlocked, prefix)
		}
	}
	for _, sub := range blockedSubstrings {
		if strings.Contains(lower, sub) {
			return fmt.Errorf("%w: matches %q", ErrBlocked, sub)
		}
	}
	return nil
}

var (
	shellMetachars = regexp.MustCompile("[;&|`$<>]")
	controlChars   = regexp.MustCompile(`[\r\n]`)
	bareName       = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)
)

// IsSafeExecutable reports whether value is acceptable as an executable
// path or bare name for a spawned subprocess (hooks, plug-in servers, MCP
// stdio commands): no null bytes, control characters, shell metacharacters
// or quotes, and no leading dash on a bare name.
func IsSafeExecutable(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.Contains(trimmed, "\x00") {
		return false
	}
	if controlChars.MatchString(trimmed) || shellMetachars.MatchString(trimmed) {
		return false
	}
	if strings.ContainsAny(trimmed, `"'`) {
		return false
	}
	if strings.ContainsAny(trimmed, `/\`) || strings.HasPrefix(trimmed, ".") || strings.HasPrefix(trimmed, "~") {
		return true
	}
	if strings.HasPrefix(trimmed, "-") {
		return false
	}
	return bareName.MatchString(trimmed)
}
