package api

import (
	"net/http"

	authDelivery "keepr-backend/internal/auth/delivery"
	authUsecase "keepr-backend/internal/auth/usecase"
	connectionDelivery "keepr-backend/internal/connection/delivery"
	notificationDelivery "keepr-backend/internal/notification/delivery"
	reconcileDelivery "keepr-backend/internal/reconcile/delivery"
	serviceInfoDelivery "keepr-backend/internal/serviceinfo/delivery"

	"github.com/gin-gonic/gin"
)

// Handlers groups the delivery handlers mounted by SetupRoutes
type Handlers struct {
	// Auth serves development sign-in; nil outside development
	Auth         *authDelivery.AuthHandler
	FCM          *authDelivery.FCMHandler
	Connection   *connectionDelivery.ConnectionHandler
	Notification *notificationDelivery.NotificationHandler
	Reconcile    *reconcileDelivery.ReconcileHandler
	ServiceInfo  *serviceInfoDelivery.ServiceInfoHandler
}

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, h Handlers) {
	requireUser := authDelivery.AuthMiddleware(authUsecase)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		if h.Auth != nil {
			api.POST("/auth/dev-token", h.Auth.DevToken)
		}

		// Batch trigger, authenticated by the cron secret
		cron := api.Group("/cron")
		{
			cron.POST("/reconcile", h.Reconcile.RunBatch)
			cron.GET("/reconcile", h.Reconcile.Health)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(requireUser)
		{
			fcm.POST("/register", h.FCM.RegisterToken)
			fcm.DELETE("/:token", h.FCM.UnregisterToken)
		}

		// Gmail integration; the OAuth callback is reached by the provider redirect without a session
		gmail := api.Group("/integrations/gmail")
		{
			gmail.GET("/callback", h.Connection.Callback)
			gmail.GET("/connect", requireUser, h.Connection.Connect)
			gmail.POST("/disconnect", requireUser, h.Connection.Disconnect)
			gmail.GET("/sync", requireUser, h.Connection.Status)
			gmail.POST("/sync", requireUser, h.Reconcile.SyncNow)
		}

		notifications := api.Group("/notifications")
		notifications.Use(requireUser)
		{
			notifications.GET("", h.Notification.GetNotifications)
			notifications.PATCH("", h.Notification.MarkRead)
			notifications.DELETE("", h.Notification.DeleteNotifications)
			notifications.GET("/settings", h.Notification.GetSettings)
			notifications.PATCH("/settings", h.Notification.UpdateSettings)
		}

		api.GET("/service-info", requireUser, h.ServiceInfo.GetServiceInfo)
	}
}
