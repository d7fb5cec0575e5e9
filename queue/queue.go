// Package queue implements the per-session message queue: a session
// processes one prompt at a time, and anything that arrives while it is
// busy is queued, highest priority and then FIFO, for the loop to drain once
// it frees up.
package queue

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Priority orders queued messages within a session: higher values are
// dequeued first; equal values are FIFO.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3
)

// Message is a prompt waiting for its session to become free.
type Message struct {
	ID          string
	SessionID   string
	Prompt      string
	Attachments []map[string]interface{}
	Priority    Priority
	CreatedAt   time.Time
	Metadata    map[string]interface{}
}

// sessionQueue is a priority-ordered FIFO: within a priority band, messages
// come out in the order they went in.
type sessionQueue struct {
	mu   sync.Mutex
	msgs *list.List // of Message
}

func newSessionQueue() *sessionQueue {
	return &sessionQueue{msgs: list.New()}
}

func (q *sessionQueue) enqueue(m Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.msgs.Front(); e != nil; e = e.Next() {
		if m.Priority > e.Value.(Message).Priority {
			q.msgs.InsertBefore(m, e)
			return
		}
	}
	q.msgs.PushBack(m)
}

func (q *sessionQueue) dequeue() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.msgs.Front()
	if front == nil {
		return Message{}, false
	}
	q.msgs.Remove(front)
	return front.Value.(Message), true
}

func (q *sessionQueue) peek() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.msgs.Front()
	if front == nil {
		return Message{}, false
	}
	return front.Value.(Message), true
}

func (q *sessionQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.msgs.Len()
	q.msgs.Init()
	return n
}

func (q *sessionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.msgs.Len()
}

func (q *sessionQueue) list() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, 0, q.msgs.Len())
	for e := q.msgs.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Message))
	}
	return out
}

// Manager tracks busy state and a queue per session. The zero value is not
// usable; construct with NewManager.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*sessionQueue
	busy   map[string]bool
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		queues: make(map[string]*sessionQueue),
		busy:   make(map[string]bool),
	}
}

func (m *Manager) queueFor(sessionID string) *sessionQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[sessionID]
	if !ok {
		q = newSessionQueue()
		m.queues[sessionID] = q
	}
	return q
}

// IsBusy reports whether sessionID currently has an in-flight turn.
func (m *Manager) IsBusy(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy[sessionID]
}

// AnyBusy reports whether any session is currently processing.
func (m *Manager) AnyBusy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.busy) > 0
}

// Acquire marks sessionID busy, returning false if it already was.
func (m *Manager) Acquire(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy[sessionID] {
		return false
	}
	m.busy[sessionID] = true
	return true
}

// Release marks sessionID free. It is a no-op if it was not busy.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.busy, sessionID)
}

// Enqueue appends a message to sessionID's queue unconditionally.
func (m *Manager) Enqueue(sessionID, prompt string, attachments []map[string]interface{}, priority Priority, metadata map[string]interface{}) Message {
	msg := Message{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Prompt:      prompt,
		Attachments: attachments,
		Priority:    priority,
		CreatedAt:   time.Now(),
		Metadata:    metadata,
	}
	m.queueFor(sessionID).enqueue(msg)
	return msg
}

// EnqueueIfBusy enqueues prompt only if sessionID is currently busy,
// reporting whether it did.
func (m *Manager) EnqueueIfBusy(sessionID, prompt string, attachments []map[string]interface{}, priority Priority, metadata map[string]interface{}) (bool, *Message) {
	if !m.IsBusy(sessionID) {
		return false, nil
	}
	msg := m.Enqueue(sessionID, prompt, attachments, priority, metadata)
	return true, &msg
}

// Dequeue removes and returns the next message for sessionID, if any.
func (m *Manager) Dequeue(sessionID string) (Message, bool) {
	return m.queueFor(sessionID).dequeue()
}

// Peek returns, without removing, the next message for sessionID.
func (m *Manager) Peek(sessionID string) (Message, bool) {
	return m.queueFor(sessionID).peek()
}

// QueuedCount reports how many messages are waiting for sessionID.
func (m *Manager) QueuedCount(sessionID string) int {
	return m.queueFor(sessionID).len()
}

// QueuedPrompts returns the prompt text of every queued message for
// sessionID, in dequeue order.
func (m *Manager) QueuedPrompts(sessionID string) []string {
	msgs := m.queueFor(sessionID).list()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Prompt
	}
	return out
}

// ClearQueue discards every queued message for sessionID, returning the
// count discarded.
func (m *Manager) ClearQueue(sessionID string) int {
	return m.queueFor(sessionID).clear()
}

// Status is a point-in-time summary of one session's queue state.
type Status struct {
	SessionID     string   `json:"session_id"`
	IsBusy        bool     `json:"is_busy"`
	QueuedCount   int      `json:"queued_count"`
	QueuedPrompts []string `json:"queued_prompts"`
}

// GetStatus reports sessionID's current busy/queue state.
func (m *Manager) GetStatus(sessionID string) Status {
	return Status{
		SessionID:     sessionID,
		IsBusy:        m.IsBusy(sessionID),
		QueuedCount:   m.QueuedCount(sessionID),
		QueuedPrompts: m.QueuedPrompts(sessionID),
	}
}

// BusySessions returns the ids of every session currently processing.
func (m *Manager) BusySessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.busy))
	for id := range m.busy {
		out = append(out, id)
	}
	return out
}
