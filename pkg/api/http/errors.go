package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/internal/application/orchestrator"
	"github.com/aescanero/dago-editor/internal/application/session"
	"github.com/aescanero/dago-editor/internal/graph"
	"github.com/aescanero/dago-editor/pkg/ports"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func badRequest(c *gin.Context, err error) {
	abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
}

// respondError maps engine errors to HTTP responses. Errors it does not
// recognize get fallback status and code.
func (s *Server) respondError(c *gin.Context, err error, fallback int, fallbackCode string) {
	var validation *orchestrator.ValidationError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		abortWithError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	case errors.Is(err, graph.ErrNodeNotFound):
		abortWithError(c, http.StatusNotFound, "NODE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ports.ErrWorkflowNotFound):
		abortWithError(c, http.StatusNotFound, "WORKFLOW_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, orchestrator.ErrUnknownInput):
		abortWithError(c, http.StatusNotFound, "INPUT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, orchestrator.ErrRunInProgress):
		abortWithError(c, http.StatusConflict, "RUN_IN_PROGRESS", err.Error(), nil)
	case errors.Is(err, orchestrator.ErrClosed):
		abortWithError(c, http.StatusGone, "SESSION_CLOSED", err.Error(), nil)
	case errors.As(err, &validation):
		abortWithError(c, http.StatusUnprocessableEntity, "INVALID_INPUTS", err.Error(), validation.Violations)
	default:
		s.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", fallbackCode),
			zap.Error(err))
		abortWithError(c, fallback, fallbackCode, err.Error(), nil)
	}
}
