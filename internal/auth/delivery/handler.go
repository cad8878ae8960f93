package delivery

import (
	"net/http"

	authdomain "mailsync-backend/internal/auth/domain"
	authdto "mailsync-backend/internal/auth/dto"
	"mailsync-backend/internal/auth/usecase"
	"mailsync-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authUsecase usecase.AuthUsecase
}

func NewAuthHandler(authUsecase usecase.AuthUsecase) *AuthHandler {
	return &AuthHandler{
		authUsecase: authUsecase,
	}
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, _ := c.Get("user")
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) RegisterMailbox(c *gin.Context) {
	var req authdto.RegisterMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.authUsecase.RegisterMailbox(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

type resetCursorRequest struct {
	Cursor string `json:"history_cursor"`
}

func (h *AuthHandler) ResetCursor(c *gin.Context) {
	var req resetCursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authUsecase.ResetCursor(c.Request.Context(), c.Param("id"), req.Cursor); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cursor reset"})
}

func (h *AuthHandler) WatchMailbox(c *gin.Context) {
	historyID, err := h.authUsecase.WatchMailbox(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, authdto.WatchResponse{HistoryID: historyID})
}

func (h *AuthHandler) RegisterFCMToken(c *gin.Context) {
	var req authdto.RegisterFCMTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := c.MustGet("user").(*authdomain.User)
	if err := h.authUsecase.RegisterFCMToken(c.Request.Context(), user.ID, &req); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token registered"})
}

func (h *AuthHandler) UnregisterFCMToken(c *gin.Context) {
	if err := h.authUsecase.UnregisterFCMToken(c.Request.Context(), c.GetString("userID"), c.Param("token")); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token unregistered"})
}
