// Package handlers implements the read-only stats API of the ops server.
//
// Every failure is written as an ErrorResponse with a stable code from
// errors.go; 5xx failures are also logged through the request-scoped logger.
// Successful responses are the domain read models serialized as JSON.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-gif-bot/internal/http/middleware"
)

// ErrorResponse is the error envelope of the stats API.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching a client error to server logs.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Machine-readable code, see errors.go.
	Code string `json:"code" example:"not_found"`
	// Human-readable message.
	Message string `json:"message" example:"user not found"`
}

func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("route", c.FullPath()).
			Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail writes the error envelope from outside the package, e.g. for the
// router's 404 and 405 fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }
