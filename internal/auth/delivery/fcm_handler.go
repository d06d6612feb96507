package delivery

import (
	"net/http"

	authdto "keepr-backend/internal/auth/dto"
	"keepr-backend/internal/auth/repository"
	"keepr-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FCMHandler registers the devices that receive push notifications
type FCMHandler struct {
	repo   repository.FCMTokenRepository
	logger *zap.Logger
}

func NewFCMHandler(repo repository.FCMTokenRepository, logger *zap.Logger) *FCMHandler {
	return &FCMHandler{repo: repo, logger: logger}
}

// RegisterToken handles POST /api/fcm/register
func (h *FCMHandler) RegisterToken(c *gin.Context) {
	var req authdto.RegisterFCMTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if err := h.repo.SaveToken(c.Request.Context(), UserID(c), req.Token, req.DeviceInfo); err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "FCM token registered successfully"})
}

// UnregisterToken handles DELETE /api/fcm/:token
func (h *FCMHandler) UnregisterToken(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if err := h.repo.DeleteToken(c.Request.Context(), UserID(c), token); err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "FCM token unregistered successfully"})
}
