package agent

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/amcp-dev/amcp/compaction"
	"github.com/amcp-dev/amcp/config"
	"github.com/amcp-dev/amcp/errors"
	"github.com/amcp-dev/amcp/eventbus"
	"github.com/amcp-dev/amcp/hooks"
	"github.com/amcp-dev/amcp/llm"
	"github.com/amcp-dev/amcp/permission"
	"github.com/amcp-dev/amcp/session"
	"github.com/amcp-dev/amcp/tools"
)

// Mode controls whether a tool call runs immediately or waits for the
// caller's ShouldExecuteTool callback to approve it.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

// ToolVerbosity controls how much detail about tool execution a caller's
// callbacks are expected to surface; the agent loop itself always reports
// everything to the callbacks, verbosity only tells callers what to do with
// it (see agent/terminal for the reference consumer).
type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// defaultAskTimeout bounds how long a permission Ask blocks waiting for a
// confirmer before the engine's own conservative default (Deny) applies.
const defaultAskTimeout = 2 * time.Minute

// Agent is the shared core behind both interaction modes: it owns the
// session, the active toolset, and the permission/hook/compaction/event
// machinery the processing loop drives on every turn.
type Agent struct {
	Config         *config.Config
	Session        *session.Session
	LLMClient      llm.LLMClient
	AvailableTools []tools.Tool
	Mode           Mode
	Verbosity      ToolVerbosity

	toolsetName string
	registry    *tools.ToolRegistry
	permissions *permission.Engine
	hookRunner  *hooks.Runner
	bus         *eventbus.Bus
	compactor   *compaction.Compactor
}

// New builds an Agent wired to cfg's permission rules, hook handlers, and
// the named toolset's active tools.
func New(cfg *config.Config, sess *session.Session, toolset string, mode Mode, client llm.LLMClient, verbosity ToolVerbosity) (*Agent, error) {
	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewToolRegistry(cfg)
	if err != nil {
		return nil, err
	}
	activeTools, err := registry.GetActiveTools(ts)
	if err != nil {
		return nil, err
	}

	engine := permission.New(defaultAskTimeout)
	engine.SetProjectRules(cfg.PermissionRulesFor("project"))

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	runner := hooks.NewRunner(wd, cfg.HookHandlers())

	bus := eventbus.New()

	a := &Agent{
		Config:         cfg,
		Session:        sess,
		LLMClient:      client,
		AvailableTools: activeTools,
		Mode:           mode,
		Verbosity:      verbosity,
		toolsetName:    ts.Name,
		registry:       registry,
		permissions:    engine,
		hookRunner:     runner,
		bus:            bus,
	}

	a.compactor = compaction.New(compaction.DefaultConfig(), cfg.Model, a.summarizeForCompaction, bus)
	registry.SetTaskDelegator(a)

	return a, nil
}

// Bus returns the agent's event bus, so a caller embedding the agent in a
// larger service (sessionmgr, the HTTP/WS server) can subscribe to its
// lifecycle events without the agent loop knowing anything about them.
func (a *Agent) Bus() *eventbus.Bus {
	return a.bus
}

// summarizeForCompaction is the compactor's LLM-backed Summarizer: it asks
// the agent's own LLM client to condense a block of transcript text, with
// no tool access, since a summary turn never needs to call tools.
func (a *Agent) summarizeForCompaction(ctx context.Context, text string, maxTokens int) (string, error) {
	words := maxTokens / 4
	if words <= 0 {
		words = 200
	}
	prompt := session.Message{
		Role: "user",
		Content: "Summarize the following conversation excerpt in at most " +
			strconv.Itoa(words) + " words, preserving concrete facts, decisions, and file paths:\n\n" + text,
	}
	resp, err := a.LLMClient.Chat(ctx, []session.Message{prompt}, nil, nil)
	if err != nil {
		return "", errors.Wrapf(err, "compaction summarizer call failed")
	}
	return resp.Content, nil
}
