// Package permission implements the layered rule engine that decides
// whether a tool call may run without asking, must be confirmed, or is
// denied outright. Layering and matching semantics are grounded on the
// reference permission manager: process defaults are overridden by user
// config, then project config, then the active AgentSpec, with
// session-level "always allow" approvals checked first and independently.
package permission

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Action is the outcome of evaluating a tool call against the rule set.
type Action string

const (
	Allow Action = "allow"
	Ask   Action = "ask"
	Deny  Action = "deny"
)

// Mode is the session-wide permission posture.
type Mode string

const (
	ModeNormal Mode = "normal" // ask per the rule set
	ModeYolo   Mode = "yolo"   // auto-allow everything not denied, never ask
	ModeStrict Mode = "strict" // ask is never auto-approved, even via session always-allow
)

// Rule is one entry in a permission layer: if ToolPattern and (when set)
// PathPattern both match, Action applies. An empty PathPattern matches any
// call, including ones with no path-like argument.
type Rule struct {
	ToolPattern string `json:"tool" toml:"tool"`
	PathPattern string `json:"path,omitempty" toml:"path,omitempty"`
	Action      Action `json:"action" toml:"action"`
	Source      string `json:"source,omitempty" toml:"-"`
}

// DefaultRules is the process-default layer: read-only tools are allowed,
// dotfile/secret-shaped paths are denied, mutating tools ask, and MCP tools
// ask since their effects are opaque to the engine. The deny rules come last
// so that, with the last match winning, they override the tool rules above.
var DefaultRules = []Rule{
	{ToolPattern: "read_file", Action: Allow, Source: "default"},
	{ToolPattern: "grep", Action: Allow, Source: "default"},
	{ToolPattern: "think", Action: Allow, Source: "default"},
	{ToolPattern: "todo", Action: Allow, Source: "default"},
	{ToolPattern: "write_file", Action: Ask, Source: "default"},
	{ToolPattern: "edit_file", Action: Ask, Source: "default"},
	{ToolPattern: "apply_patch", Action: Ask, Source: "default"},
	{ToolPattern: "bash", Action: Ask, Source: "default"},
	{ToolPattern: "task", Action: Ask, Source: "default"},
	{ToolPattern: "mcp.*", Action: Ask, Source: "default"},
	{ToolPattern: "*", PathPattern: "**/.env", Action: Deny, Source: "default"},
	{ToolPattern: "*", PathPattern: "**/.env.*", Action: Deny, Source: "default"},
	{ToolPattern: "*", PathPattern: "**/.ssh/**", Action: Deny, Source: "default"},
}

// Request describes the tool call being evaluated.
type Request struct {
	SessionID string
	AgentName string
	ToolName  string
	Path      string // best-effort path-like argument extracted by the caller
	Mode      Mode
}

// Confirmer is invoked for an Ask decision to get an interactive answer
// from whatever client owns the session (CLI prompt, ACP request/response,
// WS round trip). A nil Confirmer means no interactive channel exists.
type Confirmer func(ctx context.Context, req Request) (Action, error)

// Engine evaluates permission requests against the layered rule set.
type Engine struct {
	mu          sync.RWMutex
	userRules   []Rule
	projectRules []Rule
	agentRules  map[string][]Rule
	sessionAllow map[string][]Rule // sessionID -> always-allow approvals, most recent last

	confirmer  Confirmer
	askTimeout time.Duration
}

// New creates an Engine. askTimeout bounds how long a missing-answer Ask
// blocks before defaulting to Deny (see Decide).
func New(askTimeout time.Duration) *Engine {
	return &Engine{
		agentRules:   make(map[string][]Rule),
		sessionAllow: make(map[string][]Rule),
		askTimeout:   askTimeout,
	}
}

// SetConfirmer installs the interactive callback used to resolve Ask.
func (e *Engine) SetConfirmer(c Confirmer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.confirmer = c
}

// SetUserRules replaces the user-config layer.
func (e *Engine) SetUserRules(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userRules = tagSource(rules, "user")
}

// SetProjectRules replaces the project-config layer.
func (e *Engine) SetProjectRules(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.projectRules = tagSource(rules, "project")
}

// SetAgentRules replaces the AgentSpec-provided layer for a named agent.
func (e *Engine) SetAgentRules(agentName string, rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agentRules[agentName] = tagSource(rules, "agent")
}

func tagSource(rules []Rule, source string) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.Source = source
		out[i] = r
	}
	return out
}

// ApproveAlways records a session-scoped "always allow" decision, generalized
// from a single call the way command-prefix generalization works for shell
// commands: callers pass the pattern they want to remember (exact tool name,
// or a prefix pattern like "git status*" for commands), not the raw call.
func (e *Engine) ApproveAlways(sessionID string, rule Rule) {
	rule.Action = Allow
	rule.Source = "session"
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionAllow[sessionID] = append(e.sessionAllow[sessionID], rule)
}

// ClearApprovals forgets every session-scoped always-allow rule for a
// session, used when a session resets its permission posture.
func (e *Engine) ClearApprovals(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessionAllow, sessionID)
}

func globMatch(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := doublestar.Match(strings.ToLower(pattern), strings.ToLower(value))
	return err == nil && ok
}

func ruleMatches(r Rule, req Request) bool {
	if !globMatch(r.ToolPattern, req.ToolName) {
		return false
	}
	if r.PathPattern == "" {
		return true
	}
	if req.Path == "" {
		return false
	}
	return globMatch(r.PathPattern, req.Path)
}

// evaluateConfigured applies the default/user/project/agent layers in order,
// keeping the last match (later layers override earlier ones). It reports
// whether any rule matched.
func (e *Engine) evaluateConfigured(req Request) (Action, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	layers := [][]Rule{DefaultRules, e.userRules, e.projectRules}
	if req.AgentName != "" {
		layers = append(layers, e.agentRules[req.AgentName])
	}

	action := Deny
	matched := false
	for _, layer := range layers {
		for _, r := range layer {
			if ruleMatches(r, req) {
				action = r.Action
				matched = true
			}
		}
	}
	return action, matched
}

// evaluateSessionAllow checks the session's always-allow approvals, most
// recently added first, so a narrower later approval shadows a broader
// earlier one.
func (e *Engine) evaluateSessionAllow(req Request) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	approvals := e.sessionAllow[req.SessionID]
	for i := len(approvals) - 1; i >= 0; i-- {
		if ruleMatches(approvals[i], req) {
			return true
		}
	}
	return false
}

// Decide evaluates req and returns the final Action. The base decision is
// computed first from the session always-allow layer (checked before the
// configured layers; ModeStrict disables it) and the configured default/
// user/project/agent layers, with an unmatched request defaulting to Deny.
// Mode is then applied as an upgrade on top of that base decision, never a
// downgrade: ModeYolo turns any non-Deny base into Allow, ModeStrict turns
// any non-Deny base into Ask, ModeNormal leaves it untouched. A Deny base
// decision always survives, in either mode. An Ask result is resolved via
// the installed Confirmer if one is set; if none is set, or it does not
// answer within askTimeout, the request is treated as Deny — a deliberately
// more conservative default than a non-interactive client silently
// proceeding.
func (e *Engine) Decide(ctx context.Context, req Request) (Action, error) {
	var action Action
	if req.Mode != ModeStrict && e.evaluateSessionAllow(req) {
		action = Allow
	} else {
		configured, matched := e.evaluateConfigured(req)
		if !matched {
			configured = Deny
		}
		action = configured
	}

	switch {
	case action == Deny:
		// Deny always survives, regardless of mode.
	case req.Mode == ModeYolo:
		action = Allow
	case req.Mode == ModeStrict:
		action = Ask
	}

	if action != Ask {
		return action, nil
	}

	e.mu.RLock()
	confirmer := e.confirmer
	timeout := e.askTimeout
	e.mu.RUnlock()

	if confirmer == nil {
		return Deny, nil
	}

	askCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		askCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		action Action
		err    error
	}
	done := make(chan result, 1)
	go func() {
		a, err := confirmer(askCtx, req)
		done <- result{a, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Deny, r.err
		}
		return r.action, nil
	case <-askCtx.Done():
		return Deny, nil
	}
}

// CommandPrefixArity maps a shell command's leading token to how many
// leading tokens should be remembered when generalizing a single
// "always allow" decision into a reusable pattern (e.g. "git status" rather
// than the exact invocation, "npm run" rather than "npm run build").
var CommandPrefixArity = map[string]int{
	"git":    2,
	"npm":    2,
	"yarn":   2,
	"go":     2,
	"cargo":  2,
	"docker": 2,
	"kubectl": 2,
}

// CommandPrefix generalizes a raw shell command into an always-allow glob
// pattern using CommandPrefixArity, falling back to the first token.
func CommandPrefix(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "*"
	}
	arity, ok := CommandPrefixArity[fields[0]]
	if !ok || arity > len(fields) {
		arity = 1
	}
	return strings.Join(fields[:arity], " ") + "*"
}
