package server

import (
	"context"
	"log"
	"net/http"

	"github.com/amcp-dev/amcp/agent"
	"github.com/amcp-dev/amcp/eventbus"
	"github.com/amcp-dev/amcp/protocol"
	"github.com/amcp-dev/amcp/sessionmgr"
	"github.com/gorilla/websocket"
)

// wsRequest is the envelope every inbound WebSocket frame uses; which
// fields matter depends on Type, mirroring the request/response shape of
// the REST surface rather than inventing a separate protocol.
type wsRequest struct {
	Type             string `json:"type"`
	ID               string `json:"id"`
	SessionID        string `json:"session_id"`
	Cwd              string `json:"cwd"`
	AgentName        string `json:"agent_name"`
	Content          string `json:"content"`
	Force            bool   `json:"force"`
	Priority         string `json:"priority"`
	ConflictStrategy string `json:"conflict_strategy"`
}

func (req wsRequest) options() sessionmgr.PromptOptions {
	return promptRequest{Priority: req.Priority, ConflictStrategy: req.ConflictStrategy}.options()
}

// handleWebSocket upgrades the connection and serves one client for its
// lifetime, same single-goroutine-per-connection shape as cmd/ws_bridge,
// except frames are structured session requests instead of raw subprocess
// bytes, routed through the same Manager the REST handlers use.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ws upgrade error:", err)
		return
	}
	defer conn.Close()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		switch req.Type {
		case "create_session":
			managed, err := s.mgr.CreateSession(r.Context(), req.Cwd, req.AgentName)
			if err != nil {
				s.wsWriteError(conn, req.ID, err)
				continue
			}
			_ = conn.WriteJSON(map[string]interface{}{
				"type":       "session_created",
				"id":         req.ID,
				"session_id": managed.ID,
			})

		case "prompt":
			subID := s.mgr.Bus().Subscribe("", func(ctx context.Context, ev eventbus.Event) {
				_ = conn.WriteJSON(s.adapter.ToWSMessage(ev, req.ID))
			}, eventbus.WithSessionFilter(req.SessionID))
			err := s.mgr.PromptSession(r.Context(), req.SessionID, req.Content, req.options(), agent.ProcessCallbacks{})
			s.mgr.Bus().Unsubscribe(subID)
			if err != nil {
				s.wsWriteError(conn, req.ID, err)
				continue
			}
			_ = conn.WriteJSON(map[string]interface{}{
				"type": "message.complete",
				"id":   req.ID,
			})

		case "cancel":
			if err := s.mgr.CancelSession(req.SessionID, req.Force); err != nil {
				s.wsWriteError(conn, req.ID, err)
				continue
			}
			_ = conn.WriteJSON(map[string]interface{}{"type": "cancelled", "id": req.ID})

		default:
			_ = conn.WriteJSON(map[string]interface{}{
				"type":  "error",
				"id":    req.ID,
				"error": "unknown request type: " + req.Type,
			})
		}
	}
}

func (s *Server) wsWriteError(conn *websocket.Conn, id string, err error) {
	pe := protocol.WrapError(err)
	_ = conn.WriteJSON(pe.ToWSMessage(id))
}
