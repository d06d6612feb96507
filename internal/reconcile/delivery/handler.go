package delivery

import (
	"crypto/subtle"
	"net/http"
	"strings"

	authdelivery "keepr-backend/internal/auth/delivery"
	"keepr-backend/internal/reconcile/usecase"
	"keepr-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReconcileHandler exposes the batch trigger and the per-user manual sync
type ReconcileHandler struct {
	reconciler *usecase.Reconciler
	cronSecret string
	logger     *zap.Logger
}

func NewReconcileHandler(reconciler *usecase.Reconciler, cronSecret string, logger *zap.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		reconciler: reconciler,
		cronSecret: cronSecret,
		logger:     logger.Named("reconcile"),
	}
}

// RunBatch runs one reconciliation over all users
// POST /api/cron/reconcile  (Authorization: Bearer <CRON_SECRET>)
func (h *ReconcileHandler) RunBatch(c *gin.Context) {
	if !h.authorized(c.GetHeader("Authorization")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	result, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Health is a static payload for uptime checks of the cron route
// GET /api/cron/reconcile
func (h *ReconcileHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"job":     "reconcile",
		"message": "POST with the cron secret to run a reconciliation",
	})
}

// SyncNow runs one reconciliation unit for the caller
// POST /api/integrations/gmail/sync
func (h *ReconcileHandler) SyncNow(c *gin.Context) {
	unit, err := h.reconciler.RunUnit(c.Request.Context(), authdelivery.UserID(c))
	if err != nil {
		apperror.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":               true,
		"messages_scanned":      unit.MessagesScanned,
		"purchases_created":     unit.PurchasesCreated,
		"notifications_created": unit.NotificationsCreated,
	})
}

// authorized accepts any request when no secret is configured
func (h *ReconcileHandler) authorized(header string) bool {
	if h.cronSecret == "" {
		return true
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}
