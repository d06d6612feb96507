// Package apperror holds the error taxonomy shared by use cases and HTTP delivery.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	// Request errors
	ErrUnauthorized  = errors.New("unauthorized")
	ErrValidation    = errors.New("validation error")
	ErrInvalidInput  = fmt.Errorf("%w: invalid input", ErrValidation)
	ErrNoValidFields = fmt.Errorf("%w: no valid fields to update", ErrValidation)
	ErrNotFound      = errors.New("not found")

	// OAuth callback errors, reported through a redirect
	ErrExpiredAuthorization = errors.New("authorization expired, please try again")
	ErrInvalidCallback      = errors.New("invalid authorization callback")

	// Upstream provider errors
	ErrUpstream       = errors.New("upstream provider error")
	ErrUpstreamAuth   = fmt.Errorf("%w: token exchange failed", ErrUpstream)
	ErrUpstreamLookup = fmt.Errorf("%w: mailbox lookup failed", ErrUpstream)
)

// HTTPStatus maps an error chain to the status code returned to clients.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidCallback), errors.Is(err, ErrExpiredAuthorization):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes {error: message} with the mapped status. Internal errors are logged.
func Respond(c *gin.Context, logger *zap.Logger, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
