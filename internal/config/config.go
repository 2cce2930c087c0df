// Package config loads and merges the agent's TOML configuration: decode
// into a raw map first so unknown/camelCase keys can be normalized, then
// apply defaults and validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the fully-resolved configuration for one agent run.
type Config struct {
	Model                 ModelConfig                `toml:"model"`
	APIKey                string                      `toml:"api_key"`
	BaseURL               string                      `toml:"base_url"`
	Cwd                   string                      `toml:"cwd"`
	Approval              string                      `toml:"approval"`
	MaxTurns              int                         `toml:"max_turns"`
	ShellEnvironment      ShellEnvironmentConfig      `toml:"shell_environment"`
	HooksEnabled          bool                        `toml:"hooks_enabled"`
	Hooks                 []HookConfig                `toml:"hooks"`
	MCPServers            map[string]MCPServerConfig  `toml:"mcp_servers"`
	Subagents             []SubagentConfig            `toml:"subagents"`
	AllowedTools          []string                    `toml:"allowed_tools"`
	DeveloperInstructions string                      `toml:"developer_instructions"`
	UserInstructions      string                      `toml:"user_instructions"`
	Debug                 bool                        `toml:"debug"`
	Plugins               PluginsConfig               `toml:"plugins"`
	Logging               LoggingConfig               `toml:"logging"`
}

// ModelConfig selects the LLM and its sampling/window parameters.
type ModelConfig struct {
	Name          string  `toml:"name"`
	Temperature   float64 `toml:"temperature"`
	ContextWindow int     `toml:"context_window"`
}

// ShellEnvironmentConfig controls environment sanitisation for the shell tool.
type ShellEnvironmentConfig struct {
	IgnoreDefaultExcludes bool              `toml:"ignore_default_excludes"`
	ExcludePatterns       []string          `toml:"exclude_patterns"`
	SetVars               map[string]string `toml:"set_vars"`
}

// HookConfig describes one external-subprocess lifecycle hook.
type HookConfig struct {
	Name    string `toml:"name"`
	Trigger string `toml:"trigger"` // before_agent | after_agent | before_tool | after_tool | on_error
	Command string `toml:"command"`
	Script  string `toml:"script"`
	Timeout int    `toml:"timeout_seconds"`
	Enabled *bool  `toml:"enabled"`
}

// IsEnabled reports whether the hook should run; a hook with no explicit
// enabled flag defaults to enabled.
func (h HookConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// MCPServerConfig configures one MCP server entry. Command and URL are
// mutually exclusive: command selects a stdio transport, URL an HTTP one.
type MCPServerConfig struct {
	Enabled           bool              `toml:"enabled"`
	Command           string            `toml:"command"`
	Args              []string          `toml:"args"`
	Env               map[string]string `toml:"env"`
	URL               string            `toml:"url"`
	StartupTimeoutSec int               `toml:"startup_timeout_sec"`
	Cwd               string            `toml:"cwd"`
}

// SubagentConfig describes a custom sub-agent definition surfaced as a
// tool. MaxTurns defaults to 20 and TimeoutSeconds to 600 when zero,
// matching the engine's bounded nested-run defaults.
type SubagentConfig struct {
	Name            string   `toml:"name"`
	Description     string   `toml:"description"`
	GoalPrompt      string   `toml:"goal_prompt"`
	AllowedTools    []string `toml:"allowed_tools"`
	MaxTurns        int      `toml:"max_turns"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
}

// PluginsConfig configures discovery and loading of tool plug-ins.
type PluginsConfig struct {
	Load      PluginLoadConfig             `toml:"load"`
	Entries   map[string]PluginEntryConfig `toml:"entries"`
	Isolation PluginIsolationConfig        `toml:"isolation"`
}

// PluginLoadConfig lists the directories searched for plug-in manifests.
type PluginLoadConfig struct {
	Paths []string `toml:"paths"`
}

// PluginEntryConfig configures one named plug-in.
type PluginEntryConfig struct {
	Enabled *bool          `toml:"enabled"`
	Path    string         `toml:"path"`
	Config  map[string]any `toml:"config"`
}

// IsEnabled reports whether the plug-in entry should load; absent means
// enabled.
func (e PluginEntryConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// PluginIsolationConfig configures an out-of-process sandbox backend for
// plug-in execution. No backend ships in this agent yet; see DESIGN.md.
type PluginIsolationConfig struct {
	Enabled bool   `toml:"enabled"`
	Backend string `toml:"backend"`
}

// LoggingConfig configures the ambient slog handler.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads path, applies environment overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	raw, err := loadNormalized(path)
	if err != nil {
		return nil, err
	}
	return finish(raw, "")
}

// LoadWithPrecedence merges the built-in defaults, the platform config
// directory's config.toml, and the project's .ai-agent/config.toml, in that
// order, each overriding keys the previous layer set. Missing files at any
// layer are skipped rather than treated as an error.
func LoadWithPrecedence(cwd string) (*Config, error) {
	merged := map[string]any{}

	if dir, err := PlatformConfigDir(); err == nil {
		if layer, err := loadNormalized(filepath.Join(dir, "config.toml")); err == nil {
			merged = mergeMaps(merged, layer)
		}
	}

	projectPath := filepath.Join(cwd, ".ai-agent", "config.toml")
	if layer, err := loadNormalized(projectPath); err == nil {
		merged = mergeMaps(merged, layer)
	}

	return finish(merged, cwd)
}

func finish(raw map[string]any, cwd string) (*Config, error) {
	reencoded, err := toml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: re-encode normalized document: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(reencoded, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	applyEnvOverrides(&cfg)
	if cfg.Cwd == "" && cwd != "" {
		cfg.Cwd = cwd
	}
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadNormalized reads one TOML file into a raw map with every key folded
// to snake_case, so a document can mix snake_case and camelCase freely.
func loadNormalized(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))

	var raw map[string]any
	if err := toml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	normalized, _ := normalizeKeys(raw).(map[string]any)
	return normalized, nil
}

func normalizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[toSnakeCase(k)] = normalizeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeKeys(val)
		}
		return out
	default:
		return v
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if existing, ok := out[k]; ok {
			if existingMap, ok1 := existing.(map[string]any); ok1 {
				if overrideMap, ok2 := v.(map[string]any); ok2 {
					out[k] = mergeMaps(existingMap, overrideMap)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.APIKey == "" {
		cfg.APIKey = firstNonEmptyEnv("API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = firstNonEmptyEnv("BASE_URL", "OPENAI_API_BASE_URL")
	}
}

func firstNonEmptyEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.Model.Name == "" {
		cfg.Model.Name = "claude-sonnet-4-5"
	}
	if cfg.Model.ContextWindow == 0 {
		cfg.Model.ContextWindow = ContextWindowForModel(cfg.Model.Name)
	}
	if cfg.Approval == "" {
		cfg.Approval = "on-request"
	}
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = 100
	}
	if cfg.Cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.Cwd = wd
		}
	}
	for i := range cfg.Hooks {
		if cfg.Hooks[i].Timeout == 0 {
			cfg.Hooks[i].Timeout = 30
		}
	}
	for name, server := range cfg.MCPServers {
		if server.StartupTimeoutSec == 0 {
			server.StartupTimeoutSec = 10
			cfg.MCPServers[name] = server
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// ConfigValidationError reports every problem found while validating a
// Config, rather than stopping at the first one.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var issues []string

	switch cfg.Approval {
	case "on-request", "on-failure", "auto", "auto-edit", "never", "yolo":
	default:
		issues = append(issues, fmt.Sprintf("approval must be one of on-request, on-failure, auto, auto-edit, never, yolo (got %q)", cfg.Approval))
	}
	if cfg.MaxTurns < 0 {
		issues = append(issues, "max_turns must be >= 0")
	}
	if cfg.Model.Temperature < 0 || cfg.Model.Temperature > 2 {
		issues = append(issues, "model.temperature must be between 0 and 2")
	}
	for id, server := range cfg.MCPServers {
		hasCommand := strings.TrimSpace(server.Command) != ""
		hasURL := strings.TrimSpace(server.URL) != ""
		if hasCommand == hasURL {
			issues = append(issues, fmt.Sprintf("mcp_servers.%s must set exactly one of command or url", id))
		}
	}
	for i, hook := range cfg.Hooks {
		hasCommand := strings.TrimSpace(hook.Command) != ""
		hasScript := strings.TrimSpace(hook.Script) != ""
		if hasCommand == hasScript {
			issues = append(issues, fmt.Sprintf("hooks[%d] must set exactly one of command or script", i))
		}
		switch hook.Trigger {
		case "before_agent", "after_agent", "before_tool", "after_tool", "on_error":
		default:
			issues = append(issues, fmt.Sprintf("hooks[%d].trigger must be before_agent, after_agent, before_tool, after_tool, or on_error (got %q)", i, hook.Trigger))
		}
	}

	if pluginIssues := pluginValidationIssues(cfg); len(pluginIssues) > 0 {
		issues = append(issues, pluginIssues...)
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

// pluginValidator is installed by internal/plugins at package init so
// config.Load can surface plugin manifest errors without this package
// importing the plugin discovery implementation.
var pluginValidator func(cfg *Config) []string

// SetPluginValidator installs the plugin-manifest validation hook.
func SetPluginValidator(fn func(cfg *Config) []string) {
	pluginValidator = fn
}

func pluginValidationIssues(cfg *Config) []string {
	if pluginValidator == nil {
		return nil
	}
	return pluginValidator(cfg)
}

// PlatformConfigDir returns the platform-specific config directory used for
// system config and tool discovery (distinct from the data directory used
// for persisted sessions).
func PlatformConfigDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "ai-agent"), nil
	case "windows":
		if dir := os.Getenv("APPDATA"); dir != "" {
			return filepath.Join(dir, "ai-agent"), nil
		}
		return "", fmt.Errorf("config: APPDATA not set")
	default:
		if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
			return filepath.Join(dir, "ai-agent"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "ai-agent"), nil
	}
}

// PlatformDataDir returns the platform-specific data directory used for
// persisted sessions, checkpoints, and user memory.
func PlatformDataDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "ai-agent"), nil
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, "ai-agent"), nil
		}
		return "", fmt.Errorf("config: LOCALAPPDATA not set")
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return filepath.Join(dir, "ai-agent"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "ai-agent"), nil
	}
}

// ResolveInstructions returns DeveloperInstructions/UserInstructions if set,
// falling back to an AGENT.MD file in cwd.
func ResolveInstructions(cfg *Config) (developer, user string) {
	developer, user = cfg.DeveloperInstructions, cfg.UserInstructions
	if developer != "" || user != "" {
		return developer, user
	}
	data, err := os.ReadFile(filepath.Join(cfg.Cwd, "AGENT.MD"))
	if err != nil {
		return developer, user
	}
	return string(data), user
}
