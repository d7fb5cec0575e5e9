package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amcp-dev/amcp/config"
	"github.com/amcp-dev/amcp/sessionmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *Server {
	appCfg := &config.Config{
		LLMClient: "mock",
		Model:     "mock-model",
		Toolsets: []config.Toolset{
			{Name: "default", Tools: []string{}},
		},
	}
	mgr := sessionmgr.New(appCfg, sessionmgr.DefaultConfig())
	return New(appCfg, mgr, DefaultConfig())
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestCreateAndGetSession(t *testing.T) {
	s := testServer()

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(`{}`))
	createRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusOK, createRec.Code, createRec.Body.String())

	var created map[string]interface{}
	require.NoError(t, json.NewDecoder(createRec.Body).Decode(&created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil)
	getRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestListSessions(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(`{}`))
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	listRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(listRec, listReq)

	var body struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(listRec.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
}

func TestGetUnknownSessionReturnsNotFound(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSession(t *testing.T) {
	s := testServer()
	createRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(createRec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(`{}`)))
	var created map[string]interface{}
	require.NoError(t, json.NewDecoder(createRec.Body).Decode(&created))
	id := created["id"].(string)

	delRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(delRec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil))
	assert.Equal(t, http.StatusOK, delRec.Code)

	getRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListAgents(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Agents []struct {
			Name string `json:"name"`
		} `json:"agents"`
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Agents, 1)
	assert.Equal(t, "default", body.Agents[0].Name)
	assert.Equal(t, 1, body.Total)
}

func TestGetAgentByName(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agents/default", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agents/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListToolsReportsTotal(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 0, body.Total)
}

func TestInfoEndpoint(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "amcpd", body["name"])
	assert.Equal(t, "mock", body["llm_client"])
}

func TestStatusEndpoint(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		SessionCount int `json:"session_count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 0, body.SessionCount)
}
