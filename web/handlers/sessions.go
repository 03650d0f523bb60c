package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hrm-reasoner/agent"
	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/session"
	"hrm-reasoner/web/format"
)

// SessionView is the inspection payload of one stored session.
type SessionView struct {
	SessionID        string               `json:"session_id"`
	CurrentState     *agent.StateSnapshot `json:"current_state"`
	ReasoningMetrics session.Metrics      `json:"reasoning_metrics"`
	LastTrace        []session.TraceEntry `json:"last_trace,omitempty"`
	LastHaltTrigger  session.HaltTrigger  `json:"last_halt_trigger,omitempty"`
}

// SessionsHandler serves inspection and deletion of stored sessions.
type SessionsHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

func NewSessionsHandler(sessions *session.Manager, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, logger: logger}
}

func (h *SessionsHandler) load(c *gin.Context) (*session.State, bool) {
	id := c.Param("id")
	st, err := h.sessions.Get(c.Request.Context(), id)
	if apperrors.IsNotFound(err) {
		respondWithClientError(c, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "failed to load session", h.logger,
			zap.String("session_id", id))
		return nil, false
	}
	return st, true
}

// Get returns the state snapshot of a session.
func (h *SessionsHandler) Get(c *gin.Context) {
	st, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, SessionView{
		SessionID:        st.ID,
		CurrentState:     agent.Snapshot(st, ""),
		ReasoningMetrics: st.Metrics,
		LastTrace:        st.LastTrace,
		LastHaltTrigger:  st.LastHaltTrigger,
	})
}

// Report renders a session and its last automatic trace as HTML.
func (h *SessionsHandler) Report(c *gin.Context) {
	st, ok := h.load(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(format.ReportHTML(st)))
}

// Delete forgets a session. Unknown ids are not an error.
func (h *SessionsHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "failed to delete session", h.logger,
			zap.String("session_id", id))
		return
	}
	c.Status(http.StatusNoContent)
}

// Health reports liveness and the number of stored sessions.
func (h *SessionsHandler) Health(c *gin.Context) {
	n, err := h.sessions.Count(c.Request.Context())
	if err != nil {
		respondWithError(c, http.StatusServiceUnavailable, err, "session store unavailable", h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": n})
}
