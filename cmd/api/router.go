package api

import (
	"net/http"

	"mailsync-backend/internal/auth/delivery"
	emailDelivery "mailsync-backend/internal/email/delivery"
	notificationDelivery "mailsync-backend/internal/notification/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	authHandler := delivery.NewAuthHandler(h.authUsecase)
	emailHandler := emailDelivery.NewEmailHandler(h.emailUsecase)
	opsHandler := notificationDelivery.NewOpsHandler(h.queue, h.submitter)
	requireUser := delivery.AuthMiddleware(h.authUsecase)
	requireAdmin := delivery.AdminMiddleware(h.authUsecase, h.config)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Pub/Sub push endpoint; authenticated by the subscription's push config
		if h.intake != nil {
			api.POST("/pubsub/push", notificationDelivery.NewPushHandler(h.intake).Receive)
		}

		// Mailbox owner routes (protected)
		auth := api.Group("/auth")
		auth.Use(requireUser)
		{
			auth.GET("/me", authHandler.Me)
			auth.POST("/watch", authHandler.WatchMailbox)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(requireUser)
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Email routes (protected)
		emails := api.Group("/emails")
		emails.Use(requireUser)
		{
			emails.GET("", emailHandler.ListEmails)
			emails.GET("/search", emailHandler.SemanticSearch)
			emails.GET("/:id", emailHandler.GetEmail)
		}

		// Ops routes (admin)
		notifications := api.Group("/notifications")
		notifications.Use(requireAdmin)
		{
			notifications.GET("", opsHandler.List)
			notifications.GET("/:id", opsHandler.Get)
			notifications.POST("/:id/retry", opsHandler.Retry)
		}

		admin := api.Group("/admin")
		admin.Use(requireAdmin)
		{
			admin.POST("/mailboxes", authHandler.RegisterMailbox)
			admin.PUT("/users/:id/cursor", authHandler.ResetCursor)
		}
	}
}
