// Package search implements the read-only workspace search tools: grep
// (regular-expression content search) and glob (pattern-based file
// listing). Both stay inside the workspace via the files resolver.
package search

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/internal/tools/files"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

// MaxMatches caps grep output; reaching the cap stops the search and sets
// the truncated flag.
const MaxMatches = 200

// MaxFileSize skips files grep would choke on.
const MaxFileSize = 4 << 20

var grepSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"pattern": {"type": "string", "description": "Regular expression to search for."},
		"path": {"type": "string", "description": "Directory to search, relative to workspace (default: workspace root)."},
		"include": {"type": "string", "description": "Glob filter on file names, e.g. *.go."}
	},
	"required": ["pattern"]
}`)

type grepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
	Include string `json:"include"`
}

// NewGrepTool returns the content-search tool.
func NewGrepTool(cfg files.Config) *agent.Tool {
	resolver := files.Resolver{Root: cfg.Workspace}

	return &agent.Tool{
		ToolName:        "grep",
		ToolDescription: "Search file contents in the workspace with a regular expression.",
		Kind:            agent.ToolKindRead,
		ParameterSchema: grepSchema,
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			return executeGrep(resolver, args)
		},
	}
}

func executeGrep(resolver files.Resolver, params json.RawMessage) (*models.ToolResult, error) {
	var input grepInput
	if err := json.Unmarshal(params, &input); err != nil {
		return fail("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return fail("pattern is required"), nil
	}
	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return fail("invalid pattern: %v", err), nil
	}

	searchPath := input.Path
	if searchPath == "" {
		searchPath = "."
	}
	root, err := resolver.Resolve(searchPath)
	if err != nil {
		return fail("%v", err), nil
	}

	var matches []string
	truncated := false
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if input.Include != "" {
			if ok, _ := filepath.Match(input.Include, d.Name()); !ok {
				return nil
			}
		}
		if info, err := d.Info(); err != nil || info.Size() > MaxFileSize {
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		found, hitCap := grepFile(path, rel, re, MaxMatches-len(matches))
		matches = append(matches, found...)
		if hitCap {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return fail("search: %v", walkErr), nil
	}

	if len(matches) == 0 {
		return &models.ToolResult{Success: true, Output: "no matches"}, nil
	}
	return &models.ToolResult{
		Success:   true,
		Output:    strings.Join(matches, "\n"),
		Truncated: truncated,
		Metadata:  map[string]any{"matches": len(matches)},
	}, nil
}

func grepFile(path, rel string, re *regexp.Regexp, budget int) ([]string, bool) {
	if budget <= 0 {
		return nil, true
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer file.Close()

	var out []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !re.MatchString(text) {
			continue
		}
		out = append(out, fmt.Sprintf("%s:%d:%s", rel, line, text))
		if len(out) >= budget {
			return out, true
		}
	}
	return out, false
}

var globSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"pattern": {"type": "string", "description": "Glob pattern, e.g. **/*.go or cmd/*.go."},
		"path": {"type": "string", "description": "Directory to search, relative to workspace (default: workspace root)."}
	},
	"required": ["pattern"]
}`)

type globInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
}

// NewGlobTool returns the file-listing tool. A pattern with a leading
// "**/" segment matches at any depth; everything else is a plain
// filepath.Match against the path relative to the search root.
func NewGlobTool(cfg files.Config) *agent.Tool {
	resolver := files.Resolver{Root: cfg.Workspace}

	return &agent.Tool{
		ToolName:        "glob",
		ToolDescription: "List workspace files matching a glob pattern.",
		Kind:            agent.ToolKindRead,
		ParameterSchema: globSchema,
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			return executeGlob(resolver, args)
		},
	}
}

func executeGlob(resolver files.Resolver, params json.RawMessage) (*models.ToolResult, error) {
	var input globInput
	if err := json.Unmarshal(params, &input); err != nil {
		return fail("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return fail("pattern is required"), nil
	}

	searchPath := input.Path
	if searchPath == "" {
		searchPath = "."
	}
	root, err := resolver.Resolve(searchPath)
	if err != nil {
		return fail("%v", err), nil
	}

	var names []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if matchGlob(input.Pattern, rel) {
			names = append(names, rel)
		}
		return nil
	})
	if walkErr != nil {
		return fail("glob: %v", walkErr), nil
	}

	sort.Strings(names)
	if len(names) == 0 {
		return &models.ToolResult{Success: true, Output: "no files matched"}, nil
	}
	return &models.ToolResult{
		Success:  true,
		Output:   strings.Join(names, "\n"),
		Metadata: map[string]any{"files": len(names)},
	}, nil
}

func matchGlob(pattern, rel string) bool {
	rel = filepath.ToSlash(rel)
	if after, ok := strings.CutPrefix(pattern, "**/"); ok {
		if ok, _ := filepath.Match(after, filepath.Base(rel)); ok {
			return true
		}
	}
	ok, _ := filepath.Match(pattern, rel)
	return ok
}

func fail(format string, args ...any) *models.ToolResult {
	return &models.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}
