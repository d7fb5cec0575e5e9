package config

import (
	"testing"

	"github.com/amcp-dev/amcp/hooks"
	"github.com/amcp-dev/amcp/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetToolsetFindsByNameOrFallsBackToDefault(t *testing.T) {
	cfg := &Config{Toolsets: []Toolset{
		{Name: "default", Tools: []string{"read_file"}},
		{Name: "reviewer", Tools: []string{"read_file", "grep"}},
	}}

	ts, err := cfg.GetToolset("reviewer")
	require.NoError(t, err)
	assert.Equal(t, []string{"read_file", "grep"}, ts.Tools)

	ts, err = cfg.GetToolset("")
	require.NoError(t, err)
	assert.Equal(t, "default", ts.Name)

	ts, err = cfg.GetToolset("does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, "default", ts.Name)
}

func TestGetToolsetErrorsWhenNoDefault(t *testing.T) {
	cfg := &Config{Toolsets: []Toolset{{Name: "reviewer"}}}
	_, err := cfg.GetToolset("does-not-exist")
	assert.Error(t, err)
}

func TestPermissionRulesForConvertsAndTagsSource(t *testing.T) {
	cfg := &Config{}
	cfg.PermissionRules.Rule = []tomlRule{
		{Tool: "bash", Path: "**/*.sh", Action: "ask"},
	}
	rules := cfg.PermissionRulesFor("project")
	require.Len(t, rules, 1)
	assert.Equal(t, "bash", rules[0].ToolPattern)
	assert.Equal(t, permission.Ask, rules[0].Action)
	assert.Equal(t, "project", rules[0].Source)
}

func TestHookHandlersFlattensConfiguredEventsOnly(t *testing.T) {
	cfg := &Config{}
	cfg.Hooks.PreToolUse = []tomlHandler{{Matcher: "bash", Command: "echo ok", Timeout: 5}}

	handlers := cfg.HookHandlers()
	require.Contains(t, handlers, hooks.PreToolUse)
	assert.Len(t, handlers[hooks.PreToolUse], 1)
	assert.NotContains(t, handlers, hooks.PostToolUse)
}

func TestHookHandlersDefaultsEnabledWhenUnset(t *testing.T) {
	cfg := &Config{}
	cfg.Hooks.Stop = []tomlHandler{{Matcher: "*", Command: "echo done"}}

	handlers := cfg.HookHandlers()
	require.Len(t, handlers[hooks.Stop], 1)
	assert.True(t, handlers[hooks.Stop][0].Enabled)
}
