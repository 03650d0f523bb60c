package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hrm-reasoner/agent"
	"hrm-reasoner/config"
	"hrm-reasoner/session"
)

// brokenBackend fails every write.
type brokenBackend struct {
	session.Backend
}

func (brokenBackend) Save(context.Context, *session.State) error {
	return errors.New("disk full")
}

func newTestServer(t *testing.T, cfg *config.Config, backend session.Backend) *Server {
	t.Helper()
	if backend == nil {
		mem, err := session.NewMemoryBackend(100)
		require.NoError(t, err)
		backend = mem
	}
	if cfg == nil {
		cfg = &config.Config{RateLimitBurstSize: 1}
	}
	logger := zap.NewNop()
	mgr, err := session.NewManager(backend, session.DefaultOptions(), logger)
	require.NoError(t, err)
	engine, err := agent.NewEngine(mgr, agent.DefaultOptions(), logger)
	require.NoError(t, err)

	s := NewServer(engine, logger, cfg)
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) agent.Response {
	t.Helper()
	var resp agent.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestReasonEndpointStatuses(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		isError bool
	}{
		{name: "plan", body: `{"operation": "h_plan", "problem": "Build a login flow"}`, status: http.StatusOK},
		{name: "validation", body: `{"operation": "evaluate", "confidence_score": 2}`, status: http.StatusUnprocessableEntity, isError: true},
		{name: "unsupported", body: `{"operation": "dance"}`, status: http.StatusBadRequest, isError: true},
		{name: "malformed", body: `{"operation": `, status: http.StatusBadRequest, isError: true},
		{name: "wrong_type", body: `{"operation": 7}`, status: http.StatusBadRequest, isError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, nil)

			w := do(t, s, http.MethodPost, "/v1/reason", tt.body)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.Equal(t, tt.isError, resp.IsError)
			require.NotNil(t, resp.CurrentState)
			if tt.isError {
				assert.Equal(t, agent.StatusDiverging, resp.CurrentState.ConvergenceStatus)
			}
		})
	}
}

func TestReasonEndpointReportsValidationFields(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodPost, "/v1/reason", `{"operation": "evaluate", "max_l_cycles_per_h": 0, "complexity_estimate": 11}`)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeResponse(t, w)
	fields := make([]string, 0, len(resp.ValidationErrors))
	for _, fe := range resp.ValidationErrors {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"max_l_cycles_per_h", "complexity_estimate"}, fields)
}

func TestReasonEndpointStoreFailure(t *testing.T) {
	mem, err := session.NewMemoryBackend(10)
	require.NoError(t, err)
	s := newTestServer(t, nil, brokenBackend{Backend: mem})

	w := do(t, s, http.MethodPost, "/v1/reason", `{"operation": "h_plan"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, decodeResponse(t, w).IsError)
}

func TestSessionEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodPost, "/v1/reason", `{"operation": "auto_reason", "problem": "Build a login flow"}`)
	require.Equal(t, http.StatusOK, w.Code)
	created := decodeResponse(t, w)
	require.NotEmpty(t, created.SessionID)
	path := "/v1/sessions/" + created.SessionID

	w = do(t, s, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		SessionID       string               `json:"session_id"`
		LastTrace       []session.TraceEntry `json:"last_trace"`
		LastHaltTrigger session.HaltTrigger  `json:"last_halt_trigger"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, created.SessionID, view.SessionID)
	assert.Len(t, view.LastTrace, len(created.Trace))
	assert.Equal(t, created.HaltTrigger, view.LastHaltTrigger)

	w = do(t, s, http.MethodGet, path+"/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), created.SessionID)
	assert.Contains(t, w.Body.String(), "<table>")

	w = do(t, s, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, s, http.MethodGet, path+"/report", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil, nil)
	do(t, s, http.MethodPost, "/v1/reason", `{"operation": "h_plan"}`)

	w := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Sessions)

	w = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hrm_engine_operations_total")
	assert.Contains(t, w.Body.String(), "hrm_sessions_created_total")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &config.Config{RateLimitRequestsPerMin: 1, RateLimitBurstSize: 2}, nil)

	for i := 0; i < 2; i++ {
		w := do(t, s, http.MethodPost, "/v1/reason", `{"operation": "h_plan"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := do(t, s, http.MethodPost, "/v1/reason", `{"operation": "h_plan"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// health checks are not limited
	w = do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartReturnsOnCancel(t *testing.T) {
	s := newTestServer(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
