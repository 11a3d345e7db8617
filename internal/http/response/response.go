// Package response writes the JSON bodies shared by every handler. Errors
// always use the {"error":{"message","code"}} envelope.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// StatusFunc maps an aggregate error code to an HTTP status.
type StatusFunc func(domainagg.ErrorCode) int

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func Fail(c *gin.Context, status int, code domainagg.ErrorCode, message string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: message, Code: string(code)}})
}

// Invalid rejects malformed request input before it reaches a service.
func Invalid(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, domainagg.CodeValidation, message)
}

// DomainError writes err with the status its code maps to. Uncoded and
// internal errors are attached to the context for the request log and
// answered with a generic message.
func DomainError(c *gin.Context, status StatusFunc, err error) {
	code := domainagg.CodeOf(err)
	if code == "" || code == domainagg.CodeInternal {
		_ = c.Error(err)
		Fail(c, http.StatusInternalServerError, domainagg.CodeInternal, "internal error")
		return
	}
	Fail(c, status(code), code, domainagg.MessageOf(err))
}
