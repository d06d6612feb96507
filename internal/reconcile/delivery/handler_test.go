package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	conndomain "keepr-backend/internal/connection/domain"
	mailsync "keepr-backend/internal/mailsync/usecase"
	"keepr-backend/internal/reconcile/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type okSyncer struct{}

func (okSyncer) SyncAccount(context.Context, string) (*mailsync.SyncStats, error) {
	return &mailsync.SyncStats{}, nil
}

type noExpiry struct{}

func (noExpiry) CheckExpiries(context.Context, string) (int, error) { return 0, nil }

type oneConnection struct{}

func (oneConnection) ListSyncEnabled(context.Context, string) ([]conndomain.Connection, error) {
	return []conndomain.Connection{{UserID: "u1"}}, nil
}

type oneUser struct{}

func (oneUser) ListIDs(context.Context) ([]string, error) { return []string{"u1"}, nil }

func newTestRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := usecase.NewReconciler(okSyncer{}, noExpiry{}, oneConnection{}, oneUser{}, usecase.Config{}, zap.NewNop())
	h := NewReconcileHandler(r, secret, zap.NewNop())

	router := gin.New()
	router.POST("/api/cron/reconcile", h.RunBatch)
	router.GET("/api/cron/reconcile", h.Health)
	return router
}

func TestRunBatchRequiresSecret(t *testing.T) {
	router := newTestRouter("s3cret")

	for _, header := range []string{"", "Bearer wrong", "s3cret"} {
		req := httptest.NewRequest(http.MethodPost, "/api/cron/reconcile", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/cron/reconcile", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["users_processed"])
	assert.Equal(t, float64(1), body["syncs_completed"])
	assert.Equal(t, []interface{}{}, body["errors"])
}

func TestRunBatchWithoutSecretConfigured(t *testing.T) {
	router := newTestRouter("")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/cron/reconcile", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cron/reconcile", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
