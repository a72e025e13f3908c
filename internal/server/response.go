package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/backend"
)

// APIError is the body of every failed request.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps an APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// fail maps err to a status by its error code.
func fail(c *gin.Context, err error) {
	if errors.Is(err, backend.ErrNoDatabase) {
		respondError(c, http.StatusServiceUnavailable, "NO_DATABASE", err)
		return
	}
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeInvalidInput:
		status = http.StatusBadRequest
	case apperr.CodePermissionDenied:
		status = http.StatusForbidden
	case apperr.CodeMalformedContent:
		status = http.StatusUnprocessableEntity
	case apperr.CodeBusy:
		status = http.StatusConflict
	case apperr.CodeNetwork:
		status = http.StatusBadGateway
	}
	respondError(c, status, string(code), err)
}

func badRequest(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, string(apperr.CodeInvalidInput), err)
}
