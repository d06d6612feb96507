package delivery

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	authdelivery "keepr-backend/internal/auth/delivery"
	"keepr-backend/internal/connection/usecase"
	"keepr-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConnectionHandler serves the mailbox OAuth endpoints
type ConnectionHandler struct {
	connectionUsecase usecase.ConnectionUsecase
	settingsURL       string
	logger            *zap.Logger
}

// NewConnectionHandler creates the handler. OAuth callbacks redirect to appURL + settingsPath.
func NewConnectionHandler(connectionUsecase usecase.ConnectionUsecase, appURL, settingsPath string, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connectionUsecase: connectionUsecase,
		settingsURL:       strings.TrimRight(appURL, "/") + settingsPath,
		logger:            logger.Named("connection"),
	}
}

// Connect starts the OAuth flow
// GET /api/integrations/gmail/connect
func (h *ConnectionHandler) Connect(c *gin.Context) {
	authURL, err := h.connectionUsecase.InitiateConnection(c.Request.Context(), authdelivery.UserID(c))
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}

	// XHR clients cannot follow a cross-origin redirect, they navigate to the URL themselves
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.JSON(http.StatusOK, gin.H{"url": authURL})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the OAuth flow and always redirects back to the settings page
// GET /api/integrations/gmail/callback?code=...&state=...
func (h *ConnectionHandler) Callback(c *gin.Context) {
	if providerErr := c.Query("error"); providerErr != "" {
		h.logger.Info("authorization denied by provider", zap.String("error", providerErr))
		h.redirectWithError(c, "Gmail access was not granted")
		return
	}

	_, err := h.connectionUsecase.CompleteConnection(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		h.logger.Warn("oauth callback failed", zap.Error(err))
		h.redirectWithError(c, callbackMessage(err))
		return
	}

	c.Redirect(http.StatusFound, h.settingsURL+"?gmail=connected")
}

// Disconnect removes the caller's connection
// POST /api/integrations/gmail/disconnect
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	if err := h.connectionUsecase.Disconnect(c.Request.Context(), authdelivery.UserID(c)); err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Status reports the caller's connection
// GET /api/integrations/gmail/sync
func (h *ConnectionHandler) Status(c *gin.Context) {
	status, err := h.connectionUsecase.Status(c.Request.Context(), authdelivery.UserID(c))
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *ConnectionHandler) redirectWithError(c *gin.Context, message string) {
	c.Redirect(http.StatusFound, h.settingsURL+"?error="+url.QueryEscape(message))
}

// callbackMessage is the human-readable text shown on the settings page
func callbackMessage(err error) string {
	switch {
	case errors.Is(err, apperror.ErrExpiredAuthorization):
		return apperror.ErrExpiredAuthorization.Error()
	case errors.Is(err, apperror.ErrInvalidCallback):
		return apperror.ErrInvalidCallback.Error()
	case errors.Is(err, apperror.ErrUpstreamAuth):
		return "Could not authorize Gmail, please try again"
	case errors.Is(err, apperror.ErrUpstreamLookup):
		return "Could not read your Gmail address, please try again"
	default:
		return "Failed to connect Gmail, please try again"
	}
}
