package apperror

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"wrapped validation", fmt.Errorf("merchant: %w", ErrInvalidInput), http.StatusBadRequest},
		{"no valid fields", ErrNoValidFields, http.StatusBadRequest},
		{"not found", fmt.Errorf("connection: %w", ErrNotFound), http.StatusNotFound},
		{"upstream auth", ErrUpstreamAuth, http.StatusInternalServerError},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestUpstreamErrorsShareParent(t *testing.T) {
	assert.ErrorIs(t, ErrUpstreamAuth, ErrUpstream)
	assert.ErrorIs(t, ErrUpstreamLookup, ErrUpstream)
	assert.ErrorIs(t, ErrNoValidFields, ErrValidation)
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/notifications", nil)

	Respond(c, zap.NewNop(), fmt.Errorf("load: %w", ErrNotFound))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"load: not found"}`, w.Body.String())
}
