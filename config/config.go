// Package config loads the layered configuration that shapes an agent
// run: which LLM client and model to use, which toolsets are available,
// filesystem access rules, and the TOML-formatted hook and permission
// rule files that live under .amcp/.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/amcp-dev/amcp/errors"
	"github.com/amcp-dev/amcp/hooks"
	"github.com/amcp-dev/amcp/permission"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Config struct {
	LLMClient            string           `yaml:"llm"`
	Model                string           `yaml:"model"`
	Toolsets             []Toolset        `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	AllowedCommands      []string         `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`

	// PermissionRules and Hooks are loaded separately from TOML, since they
	// live in their own files rather than config.yaml.
	PermissionRules permissionRuleFile `toml:"-" yaml:"-"`
	Hooks           hooksFile          `toml:"-" yaml:"-"`
}

// permissionRuleFile mirrors the shape of .amcp/permissions.toml and
// ~/.config/amcp/config.toml: a flat list of rules under [[rule]].
type permissionRuleFile struct {
	Rule []tomlRule `toml:"rule"`
}

type tomlRule struct {
	Tool   string `toml:"tool"`
	Path   string `toml:"path"`
	Action string `toml:"action"`
}

// hooksFile mirrors .amcp/hooks.toml: one table per lifecycle event, each
// holding a list of handler entries.
type hooksFile struct {
	PreToolUse       []tomlHandler `toml:"pre_tool_use"`
	PostToolUse      []tomlHandler `toml:"post_tool_use"`
	UserPromptSubmit []tomlHandler `toml:"user_prompt_submit"`
	SessionStart     []tomlHandler `toml:"session_start"`
	SessionEnd       []tomlHandler `toml:"session_end"`
	Stop             []tomlHandler `toml:"stop"`
	PreCompact       []tomlHandler `toml:"pre_compact"`
	Notification     []tomlHandler `toml:"notification"`
}

type tomlHandler struct {
	Matcher string `toml:"matcher"`
	Command string `toml:"command"`
	Timeout int    `toml:"timeout_seconds"`
	Enabled *bool  `toml:"enabled"`
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence, then
// layers the TOML permission and hook files on top.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, ".amcp", ".amcp/**")

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".amcp", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadYAMLFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".amcp", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadYAMLFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if err := loadPermissionLayers(home, wd, cfg); err != nil {
		return nil, err
	}
	if err := loadHooksLayer(wd, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML; this gives a simple
	// merge where project-level config replaces user-level field by field.
	return yaml.Unmarshal(data, cfg)
}

// loadPermissionLayers reads ~/.config/amcp/config.toml then
// .amcp/permissions.toml, matching the original's config precedence
// (project rules are appended after, and therefore outrank, user rules).
func loadPermissionLayers(home, wd string, cfg *Config) error {
	if home != "" {
		userRulesPath := filepath.Join(home, ".config", "amcp", "config.toml")
		rules, err := loadPermissionFile(userRulesPath)
		if err != nil {
			return err
		}
		cfg.PermissionRules.Rule = append(cfg.PermissionRules.Rule, rules...)
	}

	projectRulesPath := filepath.Join(wd, ".amcp", "permissions.toml")
	rules, err := loadPermissionFile(projectRulesPath)
	if err != nil {
		return err
	}
	cfg.PermissionRules.Rule = append(cfg.PermissionRules.Rule, rules...)
	return nil
}

func loadPermissionFile(path string) ([]tomlRule, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error reading permission rules from '%s'", path)
	}
	var f permissionRuleFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "error parsing permission rules in '%s'", path)
	}
	return f.Rule, nil
}

func loadHooksLayer(wd string, cfg *Config) error {
	path := filepath.Join(wd, ".amcp", "hooks.toml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "error reading hooks from '%s'", path)
	}
	if err := toml.Unmarshal(data, &cfg.Hooks); err != nil {
		return errors.Wrapf(err, "error parsing hooks in '%s'", path)
	}
	return nil
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	return c.GetToolset("default")
}

// PermissionRulesFor converts the TOML-loaded project/user permission rule
// layer into permission.Rule values, preserving file order (and thus the
// last-match-wins semantics the engine applies within each layer).
func (c *Config) PermissionRulesFor(source string) []permission.Rule {
	rules := make([]permission.Rule, 0, len(c.PermissionRules.Rule))
	for _, r := range c.PermissionRules.Rule {
		rules = append(rules, permission.Rule{
			ToolPattern: r.Tool,
			PathPattern: r.Path,
			Action:      permission.Action(r.Action),
			Source:      source,
		})
	}
	return rules
}

// HookHandlers flattens the TOML hooks file into the map hooks.NewRunner
// expects.
func (c *Config) HookHandlers() map[hooks.Event][]hooks.Handler {
	convert := func(in []tomlHandler) []hooks.Handler {
		out := make([]hooks.Handler, 0, len(in))
		for _, h := range in {
			enabled := true
			if h.Enabled != nil {
				enabled = *h.Enabled
			}
			out = append(out, hooks.Handler{
				Matcher: h.Matcher,
				Command: h.Command,
				Timeout: time.Duration(h.Timeout) * time.Second,
				Enabled: enabled,
			})
		}
		return out
	}

	m := map[hooks.Event][]hooks.Handler{}
	if h := convert(c.Hooks.PreToolUse); len(h) > 0 {
		m[hooks.PreToolUse] = h
	}
	if h := convert(c.Hooks.PostToolUse); len(h) > 0 {
		m[hooks.PostToolUse] = h
	}
	if h := convert(c.Hooks.UserPromptSubmit); len(h) > 0 {
		m[hooks.UserPromptSubmit] = h
	}
	if h := convert(c.Hooks.SessionStart); len(h) > 0 {
		m[hooks.SessionStart] = h
	}
	if h := convert(c.Hooks.SessionEnd); len(h) > 0 {
		m[hooks.SessionEnd] = h
	}
	if h := convert(c.Hooks.Stop); len(h) > 0 {
		m[hooks.Stop] = h
	}
	if h := convert(c.Hooks.PreCompact); len(h) > 0 {
		m[hooks.PreCompact] = h
	}
	if h := convert(c.Hooks.Notification); len(h) > 0 {
		m[hooks.Notification] = h
	}
	return m
}
