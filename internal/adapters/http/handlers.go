package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/Dial/internal/app"
	"github.com/dkeye/Dial/internal/app/orch"
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	ctx    context.Context
	calls  CallController
	users  Directory
	policy app.Policy
}

type initiateRequest struct {
	TargetID domain.UserID `json:"targetId" binding:"required"`
	CallType string        `json:"callType"`
}

func (h *handlers) me(c *gin.Context) {
	c.JSON(http.StatusOK, h.calls.Self())
}

func (h *handlers) listUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.users.List()})
}

func (h *handlers) capability(c *gin.Context) {
	c.JSON(http.StatusOK, h.calls.Capability())
}

func (h *handlers) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.calls.Snapshot())
}

func (h *handlers) initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "targetId is required"})
		return
	}
	if req.CallType == "" {
		req.CallType = string(domain.CallTypeVoice)
	}
	t, err := domain.ParseCallType(req.CallType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	if err := h.calls.InitiateCall(c.Request.Context(), req.TargetID, t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.calls.Snapshot())
}

// intent adapts a no-argument orchestrator intent to a POST handler that
// replies with the resulting snapshot.
func (h *handlers) intent(fn func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, h.calls.Snapshot())
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrSelfCall):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, core.ErrPeerUnreachable):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCallInProgress), errors.Is(err, core.ErrDeviceBusy):
		return http.StatusConflict
	case errors.Is(err, core.ErrNegotiationFailed):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrTransportUnavailable),
		errors.Is(err, core.ErrCapabilityUnavailable),
		errors.Is(err, core.ErrDeviceUnavailable),
		errors.Is(err, orch.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	alert := core.AlertFor(err)
	log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Int("status", status).Msg("intent failed")
	c.JSON(status, gin.H{"error": alert.Kind, "message": alert.Message})
}
