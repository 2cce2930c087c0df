package shell

import (
	"path"
	"sort"
	"strings"
)

// defaultExcludes are variable-name patterns stripped from a child
// process's environment unless the config opts out. Credentials leak into
// tool output far too easily for the shell tool to pass them through by
// default.
var defaultExcludes = []string{
	"*_API_KEY",
	"*_SECRET",
	"*_SECRET_*",
	"*_TOKEN",
	"*_PASSWORD",
	"API_KEY",
	"ANTHROPIC_*",
	"OPENAI_*",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"NPM_TOKEN",
}

// EnvPolicy controls what a shell-tool subprocess inherits. Patterns use
// glob-style * and ? against the variable name only.
type EnvPolicy struct {
	// IgnoreDefaultExcludes keeps variables the default exclude list
	// would strip.
	IgnoreDefaultExcludes bool

	// ExcludePatterns are additional name patterns to strip.
	ExcludePatterns []string

	// SetVars are forced into the environment after exclusion, so an
	// explicitly configured value always wins.
	SetVars map[string]string
}

// Sanitize filters environ (os.Environ() form, "KEY=value") per the
// policy and appends SetVars. The result is sorted for determinism.
func (p EnvPolicy) Sanitize(environ []string) []string {
	var patterns []string
	if !p.IgnoreDefaultExcludes {
		patterns = append(patterns, defaultExcludes...)
	}
	patterns = append(patterns, p.ExcludePatterns...)

	out := make([]string, 0, len(environ)+len(p.SetVars))
	for _, entry := range environ {
		name, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, forced := p.SetVars[name]; forced {
			continue
		}
		if matchesAny(patterns, name) {
			continue
		}
		out = append(out, entry)
	}

	names := make([]string, 0, len(p.SetVars))
	for name := range p.SetVars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, name+"="+p.SetVars[name])
	}

	sort.Strings(out)
	return out
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		// Variable names contain no path separators, so path.Match gives
		// exactly the * and ? glob semantics the config documents.
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
