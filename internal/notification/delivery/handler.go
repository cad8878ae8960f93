package delivery

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strconv"

	emaildomain "mailsync-backend/internal/email/domain"
	"mailsync-backend/internal/notification"
	notificationdomain "mailsync-backend/internal/notification/domain"
	"mailsync-backend/internal/notification/usecase"
	"mailsync-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// pushEnvelope is the body Pub/Sub POSTs to a push endpoint
type pushEnvelope struct {
	Message struct {
		Data       string            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type PushHandler struct {
	intake *notification.Intake
}

func NewPushHandler(intake *notification.Intake) *PushHandler {
	return &PushHandler{intake: intake}
}

// Receive acks malformed payloads with 204 so Pub/Sub drops them, and
// answers 500 when the store is unreachable so Pub/Sub redelivers.
func (h *PushHandler) Receive(c *gin.Context) {
	var envelope pushEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		log.Printf("[PubSub] Dropping push with unreadable envelope: %v", err)
		c.Status(http.StatusNoContent)
		return
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		log.Printf("[PubSub] Dropping push %s with undecodable data: %v", envelope.Message.MessageID, err)
		c.Status(http.StatusNoContent)
		return
	}

	if _, err := h.intake.Accept(c.Request.Context(), data); err != nil {
		if errors.Is(err, emaildomain.ErrValidation) {
			log.Printf("[PubSub] Dropping malformed push %s: %v", envelope.Message.MessageID, err)
			c.Status(http.StatusNoContent)
			return
		}
		log.Printf("[PubSub] Failed to store push %s: %v", envelope.Message.MessageID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store notification"})
		return
	}

	c.Status(http.StatusNoContent)
}

// OpsHandler exposes the notification queue to operators
type OpsHandler struct {
	queue     usecase.NotificationQueue
	submitter notification.Submitter
}

func NewOpsHandler(queue usecase.NotificationQueue, submitter notification.Submitter) *OpsHandler {
	return &OpsHandler{queue: queue, submitter: submitter}
}

type notificationsResponse struct {
	Notifications []notificationdomain.PendingNotification `json:"notifications"`
	Status        notificationdomain.Status                `json:"status"`
	Limit         int                                      `json:"limit"`
}

func (h *OpsHandler) List(c *gin.Context) {
	status := notificationdomain.Status(c.DefaultQuery("status", string(notificationdomain.StatusError)))

	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	items, err := h.queue.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, notificationsResponse{Notifications: items, Status: status, Limit: limit})
}

func (h *OpsHandler) Get(c *gin.Context) {
	n, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, n)
}

// Retry re-drives an error or pending notification regardless of its kind
// or attempt count.
func (h *OpsHandler) Retry(c *gin.Context) {
	n, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if n.Status != notificationdomain.StatusError && n.Status != notificationdomain.StatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "notification is " + string(n.Status)})
		return
	}
	if !h.submitter.Submit(n.ID, n.UserEmail) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification already queued or workers busy"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "notification resubmitted", "id": n.ID})
}
