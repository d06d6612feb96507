package delivery

import (
	"net/http"
	"strconv"

	authdelivery "keepr-backend/internal/auth/delivery"
	"keepr-backend/internal/notification/domain"
	"keepr-backend/internal/notification/usecase"
	"keepr-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// NotificationHandler handles notification and settings requests
type NotificationHandler struct {
	notificationUsecase usecase.NotificationUsecase
	logger              *zap.Logger
}

func NewNotificationHandler(notificationUsecase usecase.NotificationUsecase, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationUsecase: notificationUsecase,
		logger:              logger,
	}
}

// MarkReadRequest is the PATCH body; mark_all wins over notification_ids
type MarkReadRequest struct {
	NotificationIDs []string `json:"notification_ids"`
	MarkAll         bool     `json:"mark_all"`
}

// GetNotifications returns the caller's notifications
// GET /api/notifications?unread=true&limit=20
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID := authdelivery.UserID(c)

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))

	items, unread, err := h.notificationUsecase.List(c.Request.Context(), userID, domain.ListFilter{
		UnreadOnly: unreadOnly,
		Limit:      limit,
	})
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": items,
		"unread_count":  unread,
	})
}

// MarkRead marks notifications as read
// PATCH /api/notifications
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updated, err := h.notificationUsecase.MarkRead(c.Request.Context(), authdelivery.UserID(c), req.NotificationIDs, req.MarkAll)
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

// DeleteNotifications deletes one notification or all of them
// DELETE /api/notifications?id=<id> | ?all=true
func (h *NotificationHandler) DeleteNotifications(c *gin.Context) {
	all, _ := strconv.ParseBool(c.DefaultQuery("all", "false"))

	deleted, err := h.notificationUsecase.Delete(c.Request.Context(), authdelivery.UserID(c), c.Query("id"), all)
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": deleted})
}

// GetSettings returns the caller's notification settings
// GET /api/notifications/settings
func (h *NotificationHandler) GetSettings(c *gin.Context) {
	settings, err := h.notificationUsecase.GetSettings(c.Request.Context(), authdelivery.UserID(c))
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

// UpdateSettings changes any of the recognized settings fields
// PATCH /api/notifications/settings
func (h *NotificationHandler) UpdateSettings(c *gin.Context) {
	var partial map[string]interface{}
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	settings, err := h.notificationUsecase.UpdateSettings(c.Request.Context(), authdelivery.UserID(c), partial)
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}
