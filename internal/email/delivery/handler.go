package delivery

import (
	"errors"
	"net/http"
	"strconv"

	emaildto "mailsync-backend/internal/email/dto"
	"mailsync-backend/internal/email/usecase"
	"mailsync-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type EmailHandler struct {
	emailUsecase usecase.EmailUsecase
}

func NewEmailHandler(emailUsecase usecase.EmailUsecase) *EmailHandler {
	return &EmailHandler{
		emailUsecase: emailUsecase,
	}
}

func queryInt(c *gin.Context, key string, defaultValue int) int {
	if s := c.Query(key); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}

func (h *EmailHandler) ListEmails(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	emails, total, err := h.emailUsecase.ListEmails(c.Request.Context(), c.GetString("userID"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, emaildto.EmailsResponse{
		Emails: emails,
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

func (h *EmailHandler) GetEmail(c *gin.Context) {
	email, err := h.emailUsecase.GetEmail(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, email)
}

func (h *EmailHandler) SemanticSearch(c *gin.Context) {
	query := c.Query("q")
	results, err := h.emailUsecase.SemanticSearch(c.Request.Context(), c.GetString("userID"), query, queryInt(c, "limit", 10))
	if err != nil {
		if errors.Is(err, usecase.ErrSearchUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, emaildto.SearchResponse{Query: query, Results: results})
}
