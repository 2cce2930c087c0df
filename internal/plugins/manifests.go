// Package plugins discovers user-supplied tool plug-ins from well-known
// directories. A plug-in is declared by a descriptor file (JSON or TOML)
// pointing at an out-of-process tool server; nothing is ever hot-loaded
// into this process. Descriptor problems are accumulated per category
// (load, parse, instantiate) rather than aborting discovery.
package plugins

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/haasonsaas/ai-agent/pkg/pluginsdk"
)

// ErrPathTraversal marks a plug-in path containing a ".." segment.
var ErrPathTraversal = fmt.Errorf("path traversal detected")

// ValidatePluginPath rejects paths with traversal segments and returns the
// cleaned absolute path.
func ValidatePluginPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("plugin path is empty")
	}
	cleaned := filepath.Clean(path)
	if containsTraversalSegment(cleaned) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	if containsTraversalSegment(abs) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, abs)
	}
	return abs, nil
}

func containsTraversalSegment(path string) bool {
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// ManifestInfo pairs a decoded manifest with the descriptor file it came
// from.
type ManifestInfo struct {
	Manifest *pluginsdk.Manifest
	Path     string
}

// isDescriptorFilename reports whether a directory entry is a plug-in
// descriptor: a .json or .toml file not prefixed "__" (the conventional
// marker for helper files a descriptor directory may carry).
func isDescriptorFilename(name string) bool {
	if strings.HasPrefix(name, "__") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == ".json" || ext == ".toml"
}

func decodeDescriptorFile(path string) (*pluginsdk.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	var manifest pluginsdk.Manifest
	if filepath.Ext(path) == ".toml" {
		if err := toml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("decode descriptor: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("decode descriptor: %w", err)
		}
	}
	return &manifest, nil
}

// DiscoverManifests scans each path (file or directory) for descriptor
// files and returns them keyed by manifest id. Missing paths are skipped;
// a duplicate id across descriptor files is an error.
func DiscoverManifests(paths []string) (map[string]ManifestInfo, error) {
	manifests := make(map[string]ManifestInfo)
	for _, root := range normalizePaths(paths) {
		info, err := os.Stat(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat plugin path: %w", err)
		}

		if !info.IsDir() {
			entry, err := LoadManifestForPath(root)
			if err != nil {
				return nil, err
			}
			if err := registerManifest(manifests, entry); err != nil {
				return nil, err
			}
			continue
		}

		if err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isDescriptorFilename(d.Name()) {
				return nil
			}
			manifest, err := decodeDescriptorFile(path)
			if err != nil {
				return fmt.Errorf("load descriptor %s: %w", path, err)
			}
			return registerManifest(manifests, ManifestInfo{Manifest: manifest, Path: path})
		}); err != nil {
			return nil, fmt.Errorf("walk plugin path: %w", err)
		}
	}
	return manifests, nil
}

// LoadManifestForPath loads one descriptor from a file path, or from
// agent.plugin.json/.toml inside a directory path.
func LoadManifestForPath(path string) (ManifestInfo, error) {
	validated, err := ValidatePluginPath(path)
	if err != nil {
		return ManifestInfo{}, err
	}

	info, err := os.Stat(validated)
	if err != nil {
		return ManifestInfo{}, fmt.Errorf("stat descriptor path: %w", err)
	}
	if !info.IsDir() {
		manifest, err := decodeDescriptorFile(validated)
		if err != nil {
			return ManifestInfo{}, err
		}
		return ManifestInfo{Manifest: manifest, Path: validated}, nil
	}

	for _, name := range []string{pluginsdk.ManifestFilename, pluginsdk.ManifestFilenameTOML} {
		candidate := filepath.Join(validated, name)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		manifest, err := decodeDescriptorFile(candidate)
		if err != nil {
			return ManifestInfo{}, err
		}
		return ManifestInfo{Manifest: manifest, Path: candidate}, nil
	}
	return ManifestInfo{}, fmt.Errorf("no descriptor found at %s", validated)
}

func registerManifest(manifests map[string]ManifestInfo, entry ManifestInfo) error {
	if entry.Manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	if err := entry.Manifest.Validate(); err != nil {
		return fmt.Errorf("descriptor %s: %w", entry.Path, err)
	}
	id := entry.Manifest.ID
	if existing, ok := manifests[id]; ok {
		return fmt.Errorf("duplicate manifest id %q (%s, %s)", id, existing.Path, entry.Path)
	}
	manifests[id] = entry
	return nil
}

func normalizePaths(paths []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		validated, err := ValidatePluginPath(trimmed)
		if err != nil {
			continue
		}
		if _, ok := seen[validated]; ok {
			continue
		}
		seen[validated] = struct{}{}
		out = append(out, validated)
	}
	sort.Strings(out)
	return out
}
