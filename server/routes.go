package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/amcp-dev/amcp/agent"
	"github.com/amcp-dev/amcp/eventbus"
	"github.com/amcp-dev/amcp/protocol"
	"github.com/amcp-dev/amcp/queue"
	"github.com/amcp-dev/amcp/sessionmgr"
	"github.com/google/uuid"
)

type sessionResponse struct {
	ID           string                `json:"id"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	Cwd          string                `json:"cwd"`
	AgentName    string                `json:"agent_name"`
	Status       sessionmgr.Status     `json:"status"`
	MessageCount int                   `json:"message_count"`
	TokenUsage   sessionmgr.TokenUsage `json:"token_usage"`
	QueuedCount  int                   `json:"queued_count"`
}

func (s *Server) toSessionResponse(managed *sessionmgr.ManagedSession) sessionResponse {
	return sessionResponse{
		ID:           managed.ID,
		CreatedAt:    managed.CreatedAt,
		UpdatedAt:    managed.UpdatedAt,
		Cwd:          managed.Cwd,
		AgentName:    managed.AgentName,
		Status:       managed.Status(),
		MessageCount: managed.MessageCount(),
		TokenUsage:   managed.Usage(),
		QueuedCount:  s.mgr.QueueStatus(managed.ID).QueuedCount,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	pe := protocol.WrapError(err)
	body, status := pe.ToHTTPResponse()
	writeJSON(w, status, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"sessionCount": s.mgr.SessionCount(),
	})
}

// handleInfo describes this amcpd instance: version, API prefix, and the
// LLM client/model it was started with, for a client deciding how to talk
// to it before creating any session.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":       "amcpd",
		"version":    serverVersion,
		"api":        apiPrefix,
		"llm_client": s.appCfg.LLMClient,
		"model":      s.appCfg.Model,
	})
}

// handleStatus reports runtime health: uptime and the current session/
// queue load, for a monitoring client polling instead of tailing /events.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessions := s.mgr.ListSessions()
	queued := 0
	busy := 0
	for _, managed := range sessions {
		queued += s.mgr.QueueStatus(managed.ID).QueuedCount
		if managed.Status() == sessionmgr.StatusBusy {
			busy++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"session_count":  len(sessions),
		"busy_sessions":  busy,
		"queued_total":   queued,
	})
}

// handleEvents streams every event published across every managed session
// as SSE, for a dashboard-style client watching the whole process rather
// than one session.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, protocol.NewError(protocol.ErrUnsupported, "streaming not supported by this transport"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID := s.mgr.Bus().Subscribe("", func(ctx context.Context, ev eventbus.Event) {
		data, err := s.adapter.ToSSEData(ev)
		if err != nil {
			return
		}
		_, _ = w.Write([]byte(data))
		flusher.Flush()
	})
	defer s.mgr.Bus().Unsubscribe(subID)

	<-r.Context().Done()
}

// handleSessionEvents streams one session's events as SSE without driving
// a turn itself, for a client that wants to watch a session another client
// (or a queue drain) is driving.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.mgr.GetSession(id); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, protocol.NewError(protocol.ErrUnsupported, "streaming not supported by this transport"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID := s.mgr.Bus().Subscribe("", func(ctx context.Context, ev eventbus.Event) {
		data, err := s.adapter.ToSSEData(ev)
		if err != nil {
			return
		}
		_, _ = w.Write([]byte(data))
		flusher.Flush()
	}, eventbus.WithSessionFilter(id))
	defer s.mgr.Bus().Unsubscribe(subID)

	<-r.Context().Done()
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cwd       string `json:"cwd"`
		AgentName string `json:"agent_name"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	managed, err := s.mgr.CreateSession(r.Context(), req.Cwd, req.AgentName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toSessionResponse(managed))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.mgr.ListSessions()
	out := make([]sessionResponse, 0, len(sessions))
	for _, managed := range sessions {
		out = append(out, s.toSessionResponse(managed))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": out,
		"total":    len(out),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	managed, err := s.mgr.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toSessionResponse(managed))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.mgr.DeleteSession(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "session_id": id})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force bool `json:"force"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	id := r.PathValue("id")
	if err := s.mgr.CancelSession(id, req.Force); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "cancelled", "session_id": id})
}

// promptRequest is the body shape both the plain and streaming prompt
// endpoints accept: content plus the spec's §8 queueing knobs. Priority
// defaults to "normal" and ConflictStrategy to "queue" when omitted,
// matching the previous hardcoded behavior.
type promptRequest struct {
	Content          string `json:"content"`
	Priority         string `json:"priority"`
	Stream           bool   `json:"stream"`
	ConflictStrategy string `json:"conflict_strategy"`
}

var promptPriorities = map[string]queue.Priority{
	"low":    queue.PriorityLow,
	"normal": queue.PriorityNormal,
	"high":   queue.PriorityHigh,
	"urgent": queue.PriorityUrgent,
}

func (req promptRequest) options() sessionmgr.PromptOptions {
	priority, ok := promptPriorities[req.Priority]
	if !ok {
		priority = queue.PriorityNormal
	}
	strategy := sessionmgr.ConflictQueue
	if req.ConflictStrategy == string(sessionmgr.ConflictReject) {
		strategy = sessionmgr.ConflictReject
	}
	return sessionmgr.PromptOptions{Priority: priority, ConflictStrategy: strategy}
}

func decodePromptRequest(r *http.Request) (promptRequest, error) {
	var req promptRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

// handlePrompt runs a session's turn to completion before responding,
// returning the full assistant reply. The reply text is read off the
// session's own event bus (the same MessageAssistant event the streaming
// and WebSocket surfaces forward live) rather than a side-channel
// callback, so every transport observes the same event. Use
// handlePromptStream for incremental delivery.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	req, err := decodePromptRequest(r)
	if err != nil {
		writeError(w, protocol.NewError(protocol.ErrBadRequest, "invalid request body"))
		return
	}

	id := r.PathValue("id")
	messageID := "msg-" + uuid.NewString()[:12]

	var finalText string
	subID := s.mgr.Bus().Subscribe(eventbus.MessageAssistant, func(ctx context.Context, ev eventbus.Event) {
		if content, ok := ev.Payload["content"].(string); ok {
			finalText = content
		}
	}, eventbus.WithSessionFilter(id))
	defer s.mgr.Bus().Unsubscribe(subID)

	if err := s.mgr.PromptSession(r.Context(), id, req.Content, req.options(), agent.ProcessCallbacks{}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"message_id": messageID,
		"status":     "complete",
		"content":    finalText,
	})
}

// handlePromptStream runs a session's turn while relaying every event the
// session's agent publishes on its own bus (tool calls, message content,
// permission decisions, hook runs, ...) to the client as an SSE frame,
// using the protocol Adapter so the wire shape matches the WS surface's
// events exactly. The subscription is scoped to this session for the
// duration of the turn, so a slow or disconnected SSE client never affects
// another session's delivery.
func (s *Server) handlePromptStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodePromptRequest(r)
	if err != nil {
		writeError(w, protocol.NewError(protocol.ErrBadRequest, "invalid request body"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, protocol.NewError(protocol.ErrUnsupported, "streaming not supported by this transport"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := r.PathValue("id")
	subID := s.mgr.Bus().Subscribe("", func(ctx context.Context, ev eventbus.Event) {
		data, err := s.adapter.ToSSEData(ev)
		if err != nil {
			return
		}
		_, _ = w.Write([]byte(data))
		flusher.Flush()
	}, eventbus.WithSessionFilter(id))
	defer s.mgr.Bus().Unsubscribe(subID)

	if err := s.mgr.PromptSession(r.Context(), id, req.Content, req.options(), agent.ProcessCallbacks{}); err != nil {
		data, encErr := s.adapter.ToSSEData(eventbus.Event{Type: "message.error", SessionID: id, Payload: map[string]interface{}{"error": err.Error()}})
		if encErr == nil {
			_, _ = w.Write([]byte(data))
			flusher.Flush()
		}
	}
}
