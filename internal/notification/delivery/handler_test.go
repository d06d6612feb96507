package delivery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authdelivery "keepr-backend/internal/auth/delivery"
	"keepr-backend/internal/notification/domain"
	"keepr-backend/internal/notification/repository"
	"keepr-backend/internal/notification/usecase"
	"keepr-backend/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) (*gin.Engine, usecase.NotificationUsecase) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewSQLiteConnection(":memory:", gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Notification{}, &domain.NotificationSettings{}))

	uc := usecase.NewNotificationUsecase(
		repository.NewNotificationRepository(db),
		repository.NewSettingsRepository(db),
		nil, nil, zap.NewNop(),
	)
	h := NewNotificationHandler(uc, zap.NewNop())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(authdelivery.ContextUserID, "u1")
		c.Next()
	})
	r.GET("/api/notifications", h.GetNotifications)
	r.PATCH("/api/notifications", h.MarkRead)
	r.DELETE("/api/notifications", h.DeleteNotifications)
	r.GET("/api/notifications/settings", h.GetSettings)
	r.PATCH("/api/notifications/settings", h.UpdateSettings)
	return r, uc
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNotificationEndpoints(t *testing.T) {
	r, uc := newTestRouter(t)
	_, err := uc.Raise(t.Context(), "u1", domain.Fact{Type: domain.TypeConnectionEstablished, Title: "Gmail connected"})
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/api/notifications?unread=true&limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Notifications []domain.Notification `json:"notifications"`
		UnreadCount   int64                 `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Notifications, 1)
	assert.Equal(t, int64(1), list.UnreadCount)

	w = do(r, http.MethodPatch, "/api/notifications", `{"mark_all":true}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPatch, "/api/notifications", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodDelete, "/api/notifications", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodDelete, "/api/notifications?all=true", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"deleted":1}`, w.Body.String())
}

func TestSettingsEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPatch, "/api/notifications/settings", `{"unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no valid fields")

	w = do(r, http.MethodPatch, "/api/notifications/settings", `{"warranty_expiring_days":45}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/notifications/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var settings domain.NotificationSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, 45, settings.WarrantyExpiringDays)
	assert.Equal(t, 3, settings.ReturnDeadlineDays)
}
