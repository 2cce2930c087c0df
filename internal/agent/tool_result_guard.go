package agent

import (
	"regexp"
)

// DefaultMaxToolResultSize is the default maximum size for a persisted tool
// result (64KB), preventing an unbounded command output from bloating
// session storage.
const DefaultMaxToolResultSize = 64 * 1024

// builtinSecretPatterns detects common credential shapes in tool output
// before it is written to a session snapshot.
var builtinSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w\-.]+`),
	regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// SanitizeToolResult truncates result to DefaultMaxToolResultSize and
// redacts anything matching a builtin secret pattern. Applied to every
// tool result before it is appended to a ContextManager or written to a
// session snapshot.
func SanitizeToolResult(result string) string {
	if len(result) > DefaultMaxToolResultSize {
		result = result[:DefaultMaxToolResultSize] + "\n...[truncated]"
	}
	for _, re := range builtinSecretPatterns {
		result = re.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// DetectSecrets scans content and names the builtin patterns it matches,
// for logging or alerting rather than redaction.
func DetectSecrets(content string) []string {
	if content == "" {
		return nil
	}
	names := []string{"api_key", "bearer_token", "aws_key", "generic_secret", "private_key"}
	var matches []string
	for i, re := range builtinSecretPatterns {
		if re.MatchString(content) {
			matches = append(matches, names[i])
		}
	}
	return matches
}
