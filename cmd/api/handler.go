package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	authUsecase "mailsync-backend/internal/auth/usecase"
	emailUsecase "mailsync-backend/internal/email/usecase"
	"mailsync-backend/internal/notification"
	notificationUsecase "mailsync-backend/internal/notification/usecase"
	"mailsync-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase  authUsecase.AuthUsecase
	emailUsecase emailUsecase.EmailUsecase
	queue        notificationUsecase.NotificationQueue
	submitter    notification.Submitter
	intake       *notification.Intake
	config       *config.Config
}

func NewHandler(authUc authUsecase.AuthUsecase, emailUc emailUsecase.EmailUsecase, queue notificationUsecase.NotificationQueue, submitter notification.Submitter, intake *notification.Intake, cfg *config.Config) *Handler {
	return &Handler{
		authUsecase:  authUc,
		emailUsecase: emailUc,
		queue:        queue,
		submitter:    submitter,
		intake:       intake,
		config:       cfg,
	}
}

// Engine builds the Gin engine with middleware and routes
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h)
	return r
}

// Start serves until ctx is cancelled, then drains in-flight requests
func (h *Handler) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
