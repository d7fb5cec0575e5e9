package server

import (
	"encoding/json"
	"net/http"

	"github.com/amcp-dev/amcp/protocol"
)

// toolResponse describes one tool the way a client needs to render a tool
// picker or a permission prompt: name, description, and its schema.
type toolResponse struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Schema      map[string]interface{} `json:"schema"`
}

// handleListTools lists the tools active in an arbitrary session, since the
// registry itself is only reachable through a live Agent; without a
// session_id query parameter no registry is reachable, so it reports an
// empty list.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"tools": []toolResponse{}, "total": 0})
		return
	}
	managed, err := s.mgr.GetSession(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]toolResponse, 0, len(managed.Agent.AvailableTools))
	for _, t := range managed.Agent.AvailableTools {
		out = append(out, toolResponse{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": out, "total": len(out)})
}

// handleExecuteTool invokes a single named tool directly, outside of a
// conversation turn, still subject to the session's permission engine and
// hooks (see Agent.ExecuteTool).
func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string                 `json:"session_id"`
		Args      map[string]interface{} `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, protocol.NewError(protocol.ErrBadRequest, "invalid request body"))
		return
	}

	managed, err := s.mgr.GetSession(req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := managed.Agent.ExecuteTool(r.Context(), r.PathValue("name"), req.Args)
	if err != nil {
		writeError(w, protocol.NewError(protocol.ErrBadRequest, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": result.Success,
		"content": result.Content,
	})
}

// agentResponse describes one configured agent/toolset pairing a client can
// pass as CreateSession's agent_name.
type agentResponse struct {
	Name    string   `json:"name"`
	Tools   []string `json:"tools"`
	Default bool     `json:"default"`
}

// handleListAgents surfaces the configured toolsets as selectable agents,
// mirroring original_source's /agents route without needing a separate
// agent-registry concept: amcp's "agent" is just a name plus a toolset.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	out := make([]agentResponse, 0, len(s.appCfg.Toolsets))
	for _, ts := range s.appCfg.Toolsets {
		out = append(out, agentResponse{
			Name:    ts.Name,
			Tools:   ts.Tools,
			Default: ts.Name == s.mgr.DefaultAgentName(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": out, "total": len(out)})
}

// handleGetAgent looks up one configured toolset by name, 404ing if it is
// not defined in the app config.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, ts := range s.appCfg.Toolsets {
		if ts.Name == name {
			writeJSON(w, http.StatusOK, agentResponse{
				Name:    ts.Name,
				Tools:   ts.Tools,
				Default: ts.Name == s.mgr.DefaultAgentName(),
			})
			return
		}
	}
	writeError(w, protocol.NewError(protocol.ErrAgentNotFound, "agent not found: "+name))
}
