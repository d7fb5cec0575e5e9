// Package session defines the conversation-history data model shared by the
// agent loop, the session manager, and the protocol adapters, and provides
// simple JSONL-backed persistence for it.
package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amcp-dev/amcp/errors"
	"github.com/google/uuid"
)

// ToolCall is a single tool invocation requested by the model within an
// assistant turn.
type ToolCall struct {
	ToolCallID string                 `json:"tool_call_id"`
	Name       string                 `json:"name"`
	Args       map[string]interface{} `json:"args"`
}

// Message is one entry in a session's linear history. Role is one of
// "user", "assistant", "tool", or "system".
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// AgentSpec describes a named, delegatable agent configuration: the model,
// system prompt, and toolset a "task" delegation should run with. The zero
// value is the session's own default agent.
type AgentSpec struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Model        string   `json:"model,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Toolset      string   `json:"toolset,omitempty"`
}

// Session is the unit of conversation state: its message history, the
// interaction mode it runs under, and the toolset/verbosity it was started
// with. A Session is not safe for concurrent use directly; sessionmgr
// serializes access per session id.
type Session struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Mode          string      `json:"mode"`
	Toolset       string      `json:"toolset"`
	ToolVerbosity string      `json:"tool_verbosity"`
	Acp           bool        `json:"acp"`
	AgentSpecs    []AgentSpec `json:"agent_specs,omitempty"`
	Messages      []Message   `json:"messages"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`

	mu   sync.Mutex
	path string
}

// New creates a new, empty session with a fresh id.
func New(name string) (*Session, error) {
	if name == "" {
		name = uuid.NewString()
	}
	path, err := getSessionPath(name)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:        name,
		Name:      name,
		Mode:      "normal",
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
		path:      path,
	}, nil
}

// Load loads an existing session from its JSONL log on disk.
func Load(name string) (*Session, error) {
	path, err := getSessionPath(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithCode(errors.Wrapf(err, "could not open session file %s", path), errors.CodeNotFound)
	}
	defer f.Close()

	s := &Session{ID: name, Name: name, path: path}
	first := true
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			// The first line is the session header.
			var header struct {
				ID            string      `json:"id"`
				Name          string      `json:"name"`
				Mode          string      `json:"mode"`
				Toolset       string      `json:"toolset"`
				ToolVerbosity string      `json:"tool_verbosity"`
				Acp           bool        `json:"acp"`
				AgentSpecs    []AgentSpec `json:"agent_specs,omitempty"`
				CreatedAt     time.Time   `json:"created_at"`
			}
			if err := json.Unmarshal(line, &header); err != nil {
				return nil, errors.Wrapf(err, "could not parse session header in %s", path)
			}
			s.ID, s.Name, s.Mode = header.ID, header.Name, header.Mode
			s.Toolset, s.ToolVerbosity, s.Acp = header.Toolset, header.ToolVerbosity, header.Acp
			s.AgentSpecs, s.CreatedAt = header.AgentSpecs, header.CreatedAt
			first = false
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, errors.Wrapf(err, "could not parse message in %s", path)
		}
		s.Messages = append(s.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "could not read session file %s", path)
	}
	s.UpdatedAt = time.Now()
	return s, nil
}

// Save writes the full session state to disk atomically: it writes to a
// temp file in the same directory and renames it into place, so a crash
// mid-write never corrupts the previously-saved state.
func (s *Session) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp session file")
	}
	tmpPath := tmp.Name()
	w := bufio.NewWriter(tmp)

	header := struct {
		ID            string      `json:"id"`
		Name          string      `json:"name"`
		Mode          string      `json:"mode"`
		Toolset       string      `json:"toolset"`
		ToolVerbosity string      `json:"tool_verbosity"`
		Acp           bool        `json:"acp"`
		AgentSpecs    []AgentSpec `json:"agent_specs,omitempty"`
		CreatedAt     time.Time   `json:"created_at"`
	}{s.ID, s.Name, s.Mode, s.Toolset, s.ToolVerbosity, s.Acp, s.AgentSpecs, s.CreatedAt}
	if err := writeJSONLine(w, header); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to serialize session header")
	}
	for _, msg := range s.Messages {
		if err := writeJSONLine(w, msg); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return errors.Wrapf(err, "failed to serialize session message")
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to flush session file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to close temp session file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to rename temp session file into place")
	}
	return nil
}

func writeJSONLine(w *bufio.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// AddMessage appends a message to the session history, stamping CreatedAt
// if the caller left it zero.
func (s *Session) AddMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the current message history, safe to read
// without holding the session lock while the LLM call is in flight.
func (s *Session) Snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Replace swaps the entire message history, used by the compactor to
// install a compacted transcript in place of the original.
func (s *Session) Replace(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = messages
	s.UpdatedAt = time.Now()
}

func getSessionPath(name string) (string, error) {
	sessionDir := filepath.Join(".amcp", "sessions")
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return "", errors.Wrapf(err, "could not create session directory")
	}
	return filepath.Join(sessionDir, name+".jsonl"), nil
}
