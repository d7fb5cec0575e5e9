// Package eventbus implements the typed publish/subscribe bus that fans
// lifecycle events out to the protocol adapters, the hook pipeline, and any
// other in-process observer. It is the seam between the agent loop and
// everything that needs to watch it without being called directly.
package eventbus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Priority controls dispatch ordering when more than one handler is
// registered for the same event: higher priorities run first.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 50
	PriorityHigh     Priority = 100
	PriorityCritical Priority = 200
)

// Type is a dotted event name, e.g. "tool.call.started".
type Type string

const (
	SessionCreated       Type = "session.created"
	SessionDeleted       Type = "session.deleted"
	SessionModeChanged   Type = "session.mode_changed"
	MessageUser          Type = "message.user"
	MessageChunk         Type = "message.chunk"
	MessageAssistant     Type = "message.assistant"
	ToolCallStarted      Type = "tool.call.started"
	ToolCallCompleted    Type = "tool.call.completed"
	ToolCallFailed       Type = "tool.call.failed"
	PermissionRequested  Type = "permission.requested"
	PermissionDecided    Type = "permission.decided"
	HookInvoked          Type = "hook.invoked"
	HookFailed           Type = "hook.failed"
	ContextCompacted     Type = "context.compacted"
	AgentTurnStarted     Type = "agent.turn.started"
	AgentTurnCompleted   Type = "agent.turn.completed"
	AgentTurnCanceled    Type = "agent.turn.canceled"
	QueueEnqueued        Type = "queue.enqueued"
	QueueDrained         Type = "queue.drained"
	Shutdown             Type = "server.shutdown"
	Error                Type = "error"
)

// Event is one occurrence published on the bus.
type Event struct {
	ID        string
	Type      Type
	SessionID string
	Payload   map[string]interface{}
	Time      time.Time
}

// Handler receives a dispatched event. It must not block indefinitely;
// Emit waits for every matching handler to return before returning
// itself.
type Handler func(ctx context.Context, ev Event)

type subscription struct {
	id        string
	eventType Type
	sessionID string
	priority  Priority
	once      bool
	handler   Handler
}

// SubscribeOption narrows a subscription's scope or ordering.
type SubscribeOption func(*subscription)

// WithSessionFilter restricts the subscription to events for sessionID.
func WithSessionFilter(sessionID string) SubscribeOption {
	return func(s *subscription) { s.sessionID = sessionID }
}

// WithPriority sets the subscription's dispatch priority (default Normal).
func WithPriority(p Priority) SubscribeOption {
	return func(s *subscription) { s.priority = p }
}

// Once unregisters the subscription after its first matching dispatch.
func Once() SubscribeOption {
	return func(s *subscription) { s.once = true }
}

// Bus is a process-wide, concurrency-safe event dispatcher. The zero value
// is not usable; construct with New.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers h to run for events of eventType (empty Type means
// "all types"), returning an id usable with Unsubscribe.
func (b *Bus) Subscribe(eventType Type, h Handler, opts ...SubscribeOption) string {
	sub := &subscription{
		id:        uuid.NewString(),
		eventType: eventType,
		priority:  PriorityNormal,
		handler:   h,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
	sort.SliceStable(b.subs, func(i, j int) bool { return b.subs[i].priority > b.subs[j].priority })
	return sub.id
}

// Unsubscribe removes a previously registered subscription. It is a no-op
// if id is unknown.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func matches(sub *subscription, ev Event) bool {
	if sub.eventType != "" && sub.eventType != ev.Type {
		return false
	}
	if sub.sessionID != "" && sub.sessionID != ev.SessionID {
		return false
	}
	return true
}

// snapshotMatching returns the subscriptions matching ev, in priority order,
// and the ids of any "once" subscriptions that should be removed.
func (b *Bus) snapshotMatching(ev Event) ([]*subscription, []string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []*subscription
	var onceIDs []string
	for _, s := range b.subs {
		if matches(s, ev) {
			matched = append(matched, s)
			if s.once {
				onceIDs = append(onceIDs, s.id)
			}
		}
	}
	return matched, onceIDs
}

func (b *Bus) stamp(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	return ev
}

// Emit dispatches ev to matching handlers in descending-priority order, in
// the calling goroutine, waiting for each to return before invoking the
// next. This is the default used throughout the agent loop, since other
// components rely on emission order (e.g. tool-call-started must be
// observed before tool-call-completed for the same call). It uses
// context.Background() internally; use EmitWithContext to thread a
// cancellation-aware context through to handlers instead.
func (b *Bus) Emit(ev Event) {
	b.EmitWithContext(context.Background(), ev)
}

// EmitWithContext is Emit with a caller-supplied context.
func (b *Bus) EmitWithContext(ctx context.Context, ev Event) {
	ev = b.stamp(ev)
	matched, onceIDs := b.snapshotMatching(ev)
	for _, id := range onceIDs {
		b.Unsubscribe(id)
	}
	for _, s := range matched {
		s.handler(ctx, ev)
	}
}

// EmitAsync dispatches ev to matching handlers asynchronously, one goroutine
// per handler, and returns immediately without any ordering guarantee
// between handlers or relative to other EmitAsync calls. Use this only for
// events no other component needs to observe in order, from a hot path that
// must never block on a slow observer (e.g. a stalled SSE client).
func (b *Bus) EmitAsync(ev Event) {
	ev = b.stamp(ev)
	matched, onceIDs := b.snapshotMatching(ev)
	for _, id := range onceIDs {
		b.Unsubscribe(id)
	}
	for _, s := range matched {
		go s.handler(context.Background(), ev)
	}
}
