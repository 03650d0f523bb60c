package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hrm-reasoner/agent"
	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/web/middleware"
)

// ReasonHandler exposes the reasoning engine over HTTP.
type ReasonHandler struct {
	engine *agent.Engine
	locks  *middleware.SessionLocks
	logger *zap.Logger
}

func NewReasonHandler(engine *agent.Engine, locks *middleware.SessionLocks, logger *zap.Logger) *ReasonHandler {
	return &ReasonHandler{engine: engine, locks: locks, logger: logger}
}

// Reason runs one operation. The body is always a Response, also on failure.
func (h *ReasonHandler) Reason(c *gin.Context) {
	var req agent.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		err = apperrors.WrapErrorf(apperrors.ErrInvalidInput, "decode request body: %v", err)
		c.JSON(http.StatusBadRequest, agent.NewErrorResponse(err))
		return
	}

	// requests naming the same session run one at a time
	unlock := h.locks.Lock(req.SessionID)
	defer unlock()

	resp := h.engine.Process(c.Request.Context(), req)
	status := statusFor(resp.Err())
	if status >= http.StatusInternalServerError {
		h.logger.Error("Reasoning request failed",
			zap.String("session_id", resp.SessionID),
			zap.String("operation", req.Operation),
			zap.Error(resp.Err()))
	}
	c.JSON(status, resp)
}
