// Package server hosts the HTTP/WebSocket/SSE surface in front of
// sessionmgr: REST endpoints for session and tool management, a streaming
// prompt endpoint, and a WebSocket feed for real-time event delivery,
// grounded in original_source's FastAPI app and routes and using
// gorilla/websocket and net/http's Go 1.22+ pattern routing in place of a
// router framework, matching the teacher's own dependency-light style.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"time"

	"github.com/amcp-dev/amcp/config"
	"github.com/amcp-dev/amcp/protocol"
	"github.com/amcp-dev/amcp/sessionmgr"
	"github.com/gorilla/websocket"
)

// serverVersion is amcpd's own wire-visible version, independent of any
// LLM provider SDK version.
const serverVersion = "0.1.0"

// Server wires the session manager and protocol adapter to a net/http
// mux. The zero value is not usable; construct with New.
type Server struct {
	cfg       Config
	appCfg    *config.Config
	mgr       *sessionmgr.Manager
	adapter   *protocol.Adapter
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
	startedAt time.Time
	http      *http.Server
}

// New builds a Server over mgr, ready to have its Handler mounted or run
// directly via ListenAndServe.
func New(appCfg *config.Config, mgr *sessionmgr.Manager, cfg Config) *Server {
	s := &Server{
		cfg:     cfg,
		appCfg:  appCfg,
		mgr:     mgr,
		adapter: protocol.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

const apiPrefix = "/api/v1"

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET "+apiPrefix+"/health", s.handleHealth)
	s.mux.HandleFunc("GET "+apiPrefix+"/info", s.handleInfo)
	s.mux.HandleFunc("GET "+apiPrefix+"/status", s.handleStatus)

	s.mux.HandleFunc("POST "+apiPrefix+"/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET "+apiPrefix+"/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET "+apiPrefix+"/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE "+apiPrefix+"/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST "+apiPrefix+"/sessions/{id}/cancel", s.handleCancelSession)
	s.mux.HandleFunc("POST "+apiPrefix+"/sessions/{id}/prompt", s.handlePrompt)
	s.mux.HandleFunc("POST "+apiPrefix+"/sessions/{id}/prompt/stream", s.handlePromptStream)
	s.mux.HandleFunc("GET "+apiPrefix+"/sessions/{id}/events", s.handleSessionEvents)

	s.mux.HandleFunc("GET "+apiPrefix+"/tools", s.handleListTools)
	s.mux.HandleFunc("POST "+apiPrefix+"/tools/{name}/execute", s.handleExecuteTool)
	s.mux.HandleFunc("GET "+apiPrefix+"/agents", s.handleListAgents)
	s.mux.HandleFunc("GET "+apiPrefix+"/agents/{name}", s.handleGetAgent)

	s.mux.HandleFunc("GET "+apiPrefix+"/events", s.handleEvents)

	s.mux.HandleFunc("/ws", s.handleWebSocket)

	s.mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"name":   "amcpd",
			"api":    apiPrefix,
			"health": apiPrefix + "/health",
		})
	})
}

// Handler returns the server's http.Handler, with CORS applied per cfg: an
// Origin is echoed back only when it matches one of CORS.AllowOrigins. The
// allowed methods and headers are a fixed list, not taken from cfg.
func (s *Server) Handler() http.Handler {
	if !s.cfg.CORS.Enabled {
		return s.mux
	}
	return s.withCORS(s.mux)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, pattern := range s.cfg.CORS.AllowOrigins {
				if ok, _ := path.Match(pattern, origin); ok || pattern == "*" {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if s.cfg.CORS.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP server and blocks until it exits, either
// from a listener error or a call to Shutdown from another goroutine.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{Addr: addr, Handler: s.Handler()}
	log.Printf("amcpd listening on http://%s", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops accepting new connections and waits for
// in-flight requests (including open SSE streams) to finish, up to ctx's
// deadline. Upgraded WebSocket connections are not tracked by it. It is a no-op if the server was never started.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
