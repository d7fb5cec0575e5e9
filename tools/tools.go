// Package tools implements the tool registry and the closed set of
// built-in tools the agent loop can call, plus registration of
// MCP-server-proxied tools discovered at startup.
package tools

import (
	"context"
	"strings"
	"sync"

	"github.com/amcp-dev/amcp/config"
	"github.com/amcp-dev/amcp/errors"
	"github.com/amcp-dev/amcp/tools/mcp"
	"github.com/bmatcuk/doublestar/v4"
)

// ToolResult is what Execute always returns: tools never panic or return a
// Go error to their caller, they report failure through Success/Content so
// the agent loop can feed it straight back to the model as a tool message.
type ToolResult struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

// Ok builds a successful result.
func Ok(content string) ToolResult { return ToolResult{Success: true, Content: content} }

// Fail builds a failed result from an error.
func Fail(err error) ToolResult { return ToolResult{Success: false, Content: err.Error()} }

// Tool is the interface every built-in and MCP-proxied tool satisfies.
type Tool interface {
	Name() string
	Description() string
	// Schema returns a JSON-schema-shaped description of the tool's
	// arguments, suitable for passing to any LLM provider's tool/function
	// calling parameter.
	Schema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) ToolResult
}

// ToolRegistry holds every built-in tool plus the tools discovered from
// configured MCP servers.
type ToolRegistry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	mcpClients map[string]*mcp.MCPClient
}

// NewToolRegistry builds a registry with the closed built-in set registered
// and every configured MCP server connected and introspected.
func NewToolRegistry(cfg *config.Config) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.MCPClient),
	}

	r.Register(&ReadFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&WriteFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&EditFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&ApplyPatchTool{baseDir: "."})
	r.Register(&GrepTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&BashTool{allowedCommands: cfg.AllowedCommands})
	r.Register(&ThinkTool{})
	r.Register(&TodoTool{store: newTodoStore()})

	for _, srv := range cfg.AdditionalMCPServers {
		client, err := mcp.NewMCPClient(srv.Name, srv.Command, srv.Args)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to initialize MCP server '%s'", srv.Name)
		}
		r.mcpClients[srv.Name] = client
	}

	return r, nil
}

// Register adds or replaces a tool under its own Name().
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// SetTaskDelegator wires the "task" built-in to a delegation callback; it
// is a no-op before the agent package finishes constructing the delegator,
// since the tool and the agent loop that runs delegated sub-agents have a
// natural dependency cycle that is broken here.
func (r *ToolRegistry) SetTaskDelegator(d Delegator) {
	r.Register(&TaskTool{delegator: d})
}

// GetTool looks up a registered tool, including MCP-proxied ones addressed
// as "<server>.<tool>".
func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		return t, true
	}
	if server, toolName, ok := strings.Cut(name, "."); ok {
		if client, ok := r.mcpClients[server]; ok {
			if t, ok := client.GetTool(toolName); ok {
				return adaptedMCPTool{server: server, tool: t}, true
			}
		}
	}
	return nil, false
}

// adaptedMCPTool adapts mcp.MCPTool's (string, error) Execute contract to
// the closed-tool ToolResult contract, and qualifies its name.
type adaptedMCPTool struct {
	server string
	tool   *mcp.MCPTool
}

func (a adaptedMCPTool) Name() string        { return a.server + "." + a.tool.Name() }
func (a adaptedMCPTool) Description() string { return a.tool.Description() }
func (a adaptedMCPTool) Schema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (a adaptedMCPTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	content, err := a.tool.Execute(ctx, args)
	if err != nil {
		return Fail(err)
	}
	return Ok(content)
}

// GetActiveTools resolves a toolset's name patterns into concrete tool
// instances. A pattern containing a dot with a trailing "*" (e.g.
// "gopls.*") matches every tool currently known from that MCP server; any
// other pattern must name an exact registered or MCP tool.
func (r *ToolRegistry) GetActiveTools(ts *config.Toolset) ([]Tool, error) {
	var active []Tool
	for _, pattern := range ts.Tools {
		if server, rest, ok := strings.Cut(pattern, "."); ok && strings.Contains(rest, "*") {
			matched, err := r.matchMCPWildcard(server, rest)
			if err != nil {
				return nil, err
			}
			active = append(active, matched...)
			continue
		}
		t, ok := r.GetTool(pattern)
		if !ok {
			return nil, errors.New("tool '%s' from toolset '%s' is not registered", pattern, ts.Name)
		}
		active = append(active, t)
	}
	return active, nil
}

func (r *ToolRegistry) matchMCPWildcard(server, toolPattern string) ([]Tool, error) {
	r.mu.RLock()
	client, ok := r.mcpClients[server]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New("MCP server '%s' is not configured", server)
	}

	var matched []Tool
	for _, name := range client.ToolNames() {
		ok, err := doublestar.Match(toolPattern, name)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid wildcard pattern '%s.%s'", server, toolPattern)
		}
		if !ok {
			continue
		}
		t, _ := client.GetTool(name)
		matched = append(matched, adaptedMCPTool{server: server, tool: t})
	}
	return matched, nil
}

// Close stops every configured MCP server subprocess.
func (r *ToolRegistry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.mcpClients {
		_ = c.Stop()
	}
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
