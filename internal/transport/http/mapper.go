package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/proto"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps domain error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as JSON. Unexpected errors are logged and hidden.
func writeError(c *gin.Context, logger *zerolog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(status, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: core.CodeOf(err)})
}

// errorEnvelope renders err for a websocket client.
func errorEnvelope(err error) proto.Envelope {
	if statusFor(err) == http.StatusInternalServerError {
		return proto.Errorf("internal", "internal server error")
	}
	code := core.CodeOf(err)
	if code == "" {
		code = core.ErrCodeBadRequest
	}
	return proto.Errorf(code, err.Error())
}
