// Package sessionmgr manages the set of concurrently active agent sessions
// behind the HTTP/WS/SSE server surface. The teacher never needed more than
// one session per process; this package generalizes its single Agent into a
// registry of many, each independently locked so a slow turn on one session
// never blocks another.
package sessionmgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amcp-dev/amcp/agent"
	"github.com/amcp-dev/amcp/config"
	"github.com/amcp-dev/amcp/errors"
	"github.com/amcp-dev/amcp/eventbus"
	"github.com/amcp-dev/amcp/llm"
	"github.com/amcp-dev/amcp/queue"
	"github.com/amcp-dev/amcp/session"
	"github.com/google/uuid"
)

// Status is a managed session's current activity state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusBusy      Status = "busy"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// TokenUsage holds a session's token counters. amcp's LLM clients do not
// surface provider-reported usage, and no turn adds to these counters, so
// every field reports zero.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ManagedSession pairs a live Agent with the bookkeeping the server surface
// needs: status, working directory, and usage counters. Access to the
// Session/Agent fields themselves is serialized by the Agent's own turn
// loop being driven one-at-a-time per session (see Manager.PromptSession).
type ManagedSession struct {
	ID        string
	Agent     *agent.Agent
	Cwd       string
	AgentName string
	CreatedAt time.Time
	UpdatedAt time.Time

	mu           sync.Mutex
	status       Status
	messageCount int
	usage        TokenUsage
	cancel       context.CancelFunc
}

// Status returns the session's current activity state.
func (m *ManagedSession) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *ManagedSession) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.UpdatedAt = time.Now()
	m.mu.Unlock()
}

// MessageCount returns how many completed turns this session has run.
func (m *ManagedSession) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messageCount
}

// Usage returns a copy of the session's accumulated token usage estimate.
func (m *ManagedSession) Usage() TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

func (m *ManagedSession) addUsage(promptTokens, completionTokens int) {
	m.mu.Lock()
	m.usage.PromptTokens += promptTokens
	m.usage.CompletionTokens += completionTokens
	m.usage.TotalTokens = m.usage.PromptTokens + m.usage.CompletionTokens
	m.UpdatedAt = time.Now()
	m.mu.Unlock()
}

// Config bounds the Manager's behavior: how many sessions may be alive at
// once and which agent/toolset new sessions default to.
type Config struct {
	MaxSessions    int
	DefaultAgent   string
	DefaultToolset string
	WorkDir        string
}

// DefaultConfig returns the same defaults as the teacher's single-session
// process: a generous session cap, the "default" toolset and the "default"
// agent name.
func DefaultConfig() Config {
	return Config{
		MaxSessions:    100,
		DefaultAgent:   "default",
		DefaultToolset: "default",
	}
}

// Manager owns every ManagedSession for the life of the server process.
// It is the Go counterpart to original_source's SessionManager: same
// create/get/list/delete/prompt/cancel surface, adapted to amcp's
// synchronous Agent.ProcessUserInput instead of an async generator.
type Manager struct {
	cfg    Config
	appCfg *config.Config

	mu       sync.Mutex
	sessions map[string]*ManagedSession
	queues   *queue.Manager

	// bus aggregates every managed session's own Agent.Bus() events (tool
	// calls, message chunks, permission decisions, hook runs, ...) plus the
	// manager's own session-lifecycle events, so a single subscription
	// (filtered with eventbus.WithSessionFilter) is the one real path a
	// server surface needs for live event delivery - no bespoke parallel
	// notification mechanism.
	bus *eventbus.Bus
}

// New creates a Manager that builds sessions against appCfg (toolsets,
// permission rules, hooks) using cfg's session-lifecycle policy.
func New(appCfg *config.Config, cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		appCfg:   appCfg,
		sessions: make(map[string]*ManagedSession),
		queues:   queue.NewManager(),
		bus:      eventbus.New(),
	}
}

// Bus returns the manager's aggregate event bus. Every managed session's
// own Agent.Bus() is forwarded onto it (see CreateSession), so subscribing
// here with eventbus.WithSessionFilter(id) is the single way to observe a
// session's full event stream, including tool-call and message-chunk
// payloads the agent loop itself produces.
func (mgr *Manager) Bus() *eventbus.Bus {
	return mgr.bus
}

// DefaultAgentName returns the toolset name new sessions use when the
// caller does not specify one.
func (mgr *Manager) DefaultAgentName() string {
	return mgr.cfg.DefaultAgent
}

// SessionCount returns the number of currently active sessions.
func (mgr *Manager) SessionCount() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.sessions)
}

// CreateSession starts a new managed session rooted at cwd (defaulting to
// the manager's configured work dir, then the process cwd) running
// agentName's toolset (defaulting to the manager's configured default).
func (mgr *Manager) CreateSession(ctx context.Context, cwd, agentName string) (*ManagedSession, error) {
	mgr.mu.Lock()
	if len(mgr.sessions) >= mgr.cfg.MaxSessions {
		mgr.mu.Unlock()
		return nil, errors.WithCode(errors.New("maximum sessions limit reached: %d", mgr.cfg.MaxSessions), errors.CodeBusy)
	}
	mgr.mu.Unlock()

	if cwd == "" {
		cwd = mgr.cfg.WorkDir
	}
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		cwd = wd
	}
	if agentName == "" {
		agentName = mgr.cfg.DefaultAgent
	}

	id := fmt.Sprintf("session-%s", uuid.NewString()[:12])

	sess, err := session.New(id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create session state")
	}
	sess.Toolset = mgr.cfg.DefaultToolset

	client, err := llm.NewClient(ctx, mgr.appCfg.LLMClient, mgr.appCfg.Model)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialize LLM client")
	}

	a, err := agent.New(mgr.appCfg, sess, sess.Toolset, agent.ModeAuto, client, agent.ToolVerbosityNone)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialize agent")
	}

	now := time.Now()
	managed := &ManagedSession{
		ID:        id,
		Agent:     a,
		Cwd:       cwd,
		AgentName: agentName,
		CreatedAt: now,
		UpdatedAt: now,
		status:    StatusIdle,
	}

	mgr.mu.Lock()
	mgr.sessions[id] = managed
	mgr.mu.Unlock()

	a.Bus().Subscribe("", func(ctx context.Context, ev eventbus.Event) {
		mgr.bus.EmitWithContext(ctx, ev)
	})

	mgr.emit(eventbus.SessionCreated, id, nil)
	return managed, nil
}

// GetSession looks up a managed session by id.
func (mgr *Manager) GetSession(id string) (*ManagedSession, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	s, ok := mgr.sessions[id]
	if !ok {
		return nil, errors.WithCode(errors.New("session not found: %s", id), errors.CodeNotFound)
	}
	return s, nil
}

// ListSessions returns every currently active managed session.
func (mgr *Manager) ListSessions() []*ManagedSession {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	out := make([]*ManagedSession, 0, len(mgr.sessions))
	for _, s := range mgr.sessions {
		out = append(out, s)
	}
	return out
}

// DeleteSession removes a session from the registry. It does not cancel an
// in-flight turn; callers should CancelSession first if one may be running.
func (mgr *Manager) DeleteSession(id string) error {
	mgr.mu.Lock()
	_, ok := mgr.sessions[id]
	if ok {
		delete(mgr.sessions, id)
	}
	mgr.mu.Unlock()
	if !ok {
		return errors.WithCode(errors.New("session not found: %s", id), errors.CodeNotFound)
	}
	mgr.emit(eventbus.SessionDeleted, id, nil)
	return nil
}

// ConflictStrategy controls what PromptSession does when the target
// session is already processing a turn.
type ConflictStrategy string

const (
	// ConflictQueue enqueues the prompt behind the in-flight turn, to be
	// picked up by StartQueueDrainer once the session goes idle. This is
	// the default when a caller does not specify one.
	ConflictQueue ConflictStrategy = "queue"
	// ConflictReject fails the call immediately with CodeBusy instead of
	// queuing, for a caller that would rather retry than wait.
	ConflictReject ConflictStrategy = "reject"
)

// PromptOptions carries the per-call knobs PromptSession needs beyond the
// bare content: the priority a queued message should carry if the session
// is busy, and which ConflictStrategy to apply in that case. The zero
// value (PriorityNormal-equivalent priority, ConflictQueue) matches the
// previous hardcoded behavior.
type PromptOptions struct {
	Priority         queue.Priority
	ConflictStrategy ConflictStrategy
}

// PromptSession runs one turn on the named session, forwarding
// agent.ProcessCallbacks straight through to the caller (a protocol
// adapter streaming chunks to its client). It serializes concurrent
// prompts to the same session using queue.Manager's Acquire as the gate: a
// second PromptSession call while one is already in flight either queues
// (opts.ConflictStrategy == ConflictQueue, the default) at opts.Priority —
// so QueueStatus reports how many callers are waiting, and
// StartQueueDrainer resubmits it once the session frees up — or is
// rejected outright (ConflictReject) with no queue or history mutation.
// Either way the call returns CodeBusy; draining a queued prompt is left
// to the caller/drainer, never to this call.
func (mgr *Manager) PromptSession(ctx context.Context, id, content string, opts PromptOptions, callbacks agent.ProcessCallbacks) error {
	managed, err := mgr.GetSession(id)
	if err != nil {
		return err
	}

	if !mgr.queues.Acquire(id) {
		if opts.ConflictStrategy == ConflictReject {
			mgr.emit("prompt.rejected", id, nil)
			return errors.WithCode(errors.New("session is busy: %s", id), errors.CodeBusy)
		}
		mgr.queues.EnqueueIfBusy(id, content, nil, opts.Priority, nil)
		mgr.emit("prompt.queued", id, nil)
		return errors.WithCode(errors.New("session is busy: %s (queued, position %d)", id, mgr.queues.QueuedCount(id)), errors.CodeBusy)
	}
	defer mgr.queues.Release(id)

	managed.mu.Lock()
	turnCtx, cancel := context.WithCancel(ctx)
	managed.cancel = cancel
	managed.status = StatusBusy
	managed.mu.Unlock()
	defer cancel()

	err = managed.Agent.ProcessUserInput(turnCtx, content, callbacks)

	managed.mu.Lock()
	managed.cancel = nil
	if err != nil {
		managed.status = StatusError
	} else {
		managed.status = StatusIdle
		managed.messageCount++
	}
	managed.UpdatedAt = time.Now()
	managed.mu.Unlock()

	if err != nil {
		mgr.emit("session.error", id, nil)
		return err
	}
	mgr.emit(eventbus.SessionModeChanged, id, nil)
	return nil
}

// QueueStatus reports how many prompts are queued behind id's current turn,
// for a caller (the server's session-detail endpoint) to surface as a
// "queued_count" hint alongside the session's busy/idle status.
func (mgr *Manager) QueueStatus(id string) queue.Status {
	return mgr.queues.GetStatus(id)
}

// DrainQueued pops the next queued prompt for id, if any, for a caller to
// resubmit via PromptSession once the session goes idle.
func (mgr *Manager) DrainQueued(id string) (queue.Message, bool) {
	return mgr.queues.Dequeue(id)
}

// StartQueueDrainer launches a background goroutine that periodically scans
// every session for a queued prompt and, if the session has gone idle since
// it was queued, dequeues and runs it automatically. It runs until ctx is
// canceled. Without this, a queued prompt just sits there until some client
// happens to poll QueueStatus and resubmit it by hand.
func (mgr *Manager) StartQueueDrainer(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mgr.drainOnce(ctx)
			}
		}
	}()
}

// Shutdown announces a server.shutdown event to every subscriber (so a
// connected SSE/WS client can tell the process is going away) and then
// blocks until no managed session is mid-turn, or ctx's deadline passes,
// whichever comes first; in the latter case it cancels every turn still
// running and returns an error. The caller is responsible for stopping the queue
// drainer and the HTTP listener around this call; Shutdown only concerns
// itself with draining in-flight agent turns.
func (mgr *Manager) Shutdown(ctx context.Context) error {
	mgr.emit(eventbus.Shutdown, "", nil)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for mgr.queues.AnyBusy() {
		select {
		case <-ctx.Done():
			for _, managed := range mgr.ListSessions() {
				managed.mu.Lock()
				if managed.cancel != nil {
					managed.cancel()
				}
				managed.mu.Unlock()
			}
			return fmt.Errorf("shutdown grace period expired with sessions still busy: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (mgr *Manager) drainOnce(ctx context.Context) {
	for _, managed := range mgr.ListSessions() {
		if mgr.queues.IsBusy(managed.ID) {
			continue
		}
		msg, ok := mgr.DrainQueued(managed.ID)
		if !ok {
			continue
		}
		id := managed.ID
		opts := PromptOptions{Priority: msg.Priority, ConflictStrategy: ConflictQueue}
		if err := mgr.PromptSession(ctx, id, msg.Prompt, opts, agent.ProcessCallbacks{}); err != nil {
			mgr.emit("session.error", id, nil)
		}
	}
}

// CancelSession cancels any in-flight turn on the named session. force is
// accepted for parity with the cancel request shape but does not change
// this implementation: cancellation always goes through the turn's
// context, same as a non-forced cancel (see SPEC_FULL.md's decision on
// force semantics).
func (mgr *Manager) CancelSession(id string, force bool) error {
	managed, err := mgr.GetSession(id)
	if err != nil {
		return err
	}
	managed.mu.Lock()
	if managed.cancel != nil {
		managed.cancel()
	}
	managed.status = StatusCancelled
	managed.mu.Unlock()
	mgr.emit(eventbus.AgentTurnCanceled, id, nil)
	return nil
}

// emit publishes a manager-originated lifecycle event (session created,
// deleted, errored, ...) on the aggregate bus, alongside every managed
// session's own forwarded agent-level events (see CreateSession).
func (mgr *Manager) emit(typ eventbus.Type, sessionID string, payload map[string]interface{}) {
	mgr.bus.Emit(eventbus.Event{Type: typ, SessionID: sessionID, Payload: payload})
}

// defaultSessionsRoot mirrors session.getSessionPath's ".amcp/sessions"
// convention, exposed here for callers that need to enumerate persisted
// sessions outside of an active Manager (e.g. a "resume" CLI listing).
func defaultSessionsRoot() string {
	return filepath.Join(".amcp", "sessions")
}

// ListPersistedSessionNames lists session names with a saved JSONL log on
// disk, regardless of whether they are currently active in this Manager.
func ListPersistedSessionNames() ([]string, error) {
	root := defaultSessionsRoot()
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to list sessions directory")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const ext = ".jsonl"
		if filepath.Ext(name) == ext {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}
