package agent

import (
	"path/filepath"
	"strings"
)

// ApprovalDecision is the outcome of classifying a tool invocation.
type ApprovalDecision string

const (
	ApprovalApproved           ApprovalDecision = "approved"
	ApprovalRejected           ApprovalDecision = "rejected"
	ApprovalNeedsConfirmation  ApprovalDecision = "needs_confirmation"
)

// ApprovalPolicy controls how mutating tool invocations are gated.
type ApprovalPolicy string

const (
	PolicyOnRequest ApprovalPolicy = "on-request"
	PolicyOnFailure ApprovalPolicy = "on-failure"
	PolicyAuto      ApprovalPolicy = "auto"
	PolicyAutoEdit  ApprovalPolicy = "auto-edit"
	PolicyNever     ApprovalPolicy = "never"
	PolicyYolo      ApprovalPolicy = "yolo"
)

// ApprovalContext is the classifier's input: everything about a single
// invocation the policy rules need, and nothing else. Classification is
// pure and stateless — identical inputs always produce the same decision.
type ApprovalContext struct {
	ToolName      string
	IsMutating    bool
	AffectedPaths []string
	Cwd           string
	Command       string
	IsDangerous   bool
}

// dangerousShellPrefixes are command prefixes that are always rejected,
// even under policy=yolo.
var dangerousShellPrefixes = []string{
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

// dangerousShellSubstrings are matched anywhere in the command, not just as
// a prefix, since a pipe can appear after arbitrary leading text.
var dangerousShellSubstrings = []string{
	"curl http://|sh",
	"| sh",
	"| bash",
	"curl -s",
}

// safeShellVerbs are read-only commands that never need approval, even
// under policy=never.
var safeShellVerbs = []string{
	"ls", "pwd", "git status", "git log", "git diff", "git show", "git branch",
	"ps", "cat", "head", "tail", "wc", "echo", "find", "grep", "which",
	"file", "du", "df", "whoami", "date", "env", "printenv",
}

// ApprovalChecker classifies tool invocations against a single policy.
type ApprovalChecker struct {
	policy ApprovalPolicy
}

// NewApprovalChecker returns a checker for the given policy. An empty
// policy defaults to on-request, the most conservative interactive mode.
func NewApprovalChecker(policy ApprovalPolicy) *ApprovalChecker {
	if policy == "" {
		policy = PolicyOnRequest
	}
	return &ApprovalChecker{policy: policy}
}

// SetPolicy replaces the active policy. Callers implement /approval.
func (c *ApprovalChecker) SetPolicy(policy ApprovalPolicy) {
	c.policy = policy
}

// Policy returns the active policy.
func (c *ApprovalChecker) Policy() ApprovalPolicy {
	return c.policy
}

// CheckApproval classifies a single invocation: mutation gating, then the
// shell-command classifier, then path-escape elevation, then the
// dangerous-flag override.
func (c *ApprovalChecker) CheckApproval(ctx ApprovalContext) (ApprovalDecision, string) {
	if !ctx.IsMutating {
		return ApprovalApproved, "non-mutating"
	}

	decision := ApprovalApproved
	reason := "mutating, policy allows"

	if ctx.Command != "" {
		decision, reason = c.classifyCommand(ctx.Command)
		if decision == ApprovalRejected {
			return decision, reason
		}
	}

	for _, path := range ctx.AffectedPaths {
		if pathEscapesCwd(ctx.Cwd, path) {
			decision = ApprovalNeedsConfirmation
			reason = "affected path escapes working directory: " + path
		}
	}

	if ctx.IsDangerous && c.policy != PolicyYolo {
		decision = ApprovalNeedsConfirmation
		reason = "invocation flagged dangerous"
	}

	return decision, reason
}

func (c *ApprovalChecker) classifyCommand(command string) (ApprovalDecision, string) {
	if c.policy == PolicyYolo {
		if isDangerousCommand(command) {
			return ApprovalRejected, "dangerous command pattern"
		}
		return ApprovalApproved, "policy yolo"
	}

	if isDangerousCommand(command) {
		return ApprovalRejected, "dangerous command pattern"
	}

	safe := isSafeCommand(command)

	switch c.policy {
	case PolicyNever:
		if safe {
			return ApprovalApproved, "safe read-only command"
		}
		return ApprovalRejected, "policy never, command not on safe allow-list"
	case PolicyAuto, PolicyOnFailure:
		return ApprovalApproved, "policy " + string(c.policy)
	case PolicyAutoEdit:
		if safe {
			return ApprovalApproved, "safe read-only command"
		}
		return ApprovalNeedsConfirmation, "policy auto-edit, command not safe"
	default: // PolicyOnRequest
		if safe {
			return ApprovalApproved, "safe read-only command"
		}
		return ApprovalNeedsConfirmation, "policy on-request, command not safe"
	}
}

func isDangerousCommand(command string) bool {
	trimmed := strings.TrimSpace(command)
	lower := strings.ToLower(trimmed)
	for _, prefix := range dangerousShellPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	for _, sub := range dangerousShellSubstrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func isSafeCommand(command string) bool {
	trimmed := strings.TrimSpace(command)
	lower := strings.ToLower(trimmed)
	for _, verb := range safeShellVerbs {
		if lower == verb || strings.HasPrefix(lower, verb+" ") {
			return true
		}
	}
	return false
}

// pathEscapesCwd reports whether path, taken relative to cwd, begins with
// "..". Absolute paths outside cwd also escape.
func pathEscapesCwd(cwd, path string) bool {
	if cwd == "" {
		return false
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
