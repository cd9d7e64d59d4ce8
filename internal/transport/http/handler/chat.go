package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"zerocode-chat/internal/app"
	"zerocode-chat/internal/conversation"
	"zerocode-chat/internal/transport/http/middleware"
	"zerocode-chat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type RecallRequest struct {
	Direction string `json:"direction" binding:"required"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) State(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	state, err := h.chatService.State(userID)
	if err != nil {
		writeChatError(c, err, "fetch chat state failed")
		return
	}
	response.OK(c, state)
}

// SendMessage accepts the message and returns before the reply exists.
// Clients follow the reply through GET /state or the websocket stream.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.Send(userID, req.Content)
	if err != nil {
		writeChatError(c, err, "send message failed")
		return
	}
	response.Status(c, http.StatusAccepted, result)
}

func (h *ChatHandler) Clear(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	if err := h.chatService.Clear(userID); err != nil {
		writeChatError(c, err, "clear chat failed")
		return
	}
	state, err := h.chatService.State(userID)
	if err != nil {
		writeChatError(c, err, "fetch chat state failed")
		return
	}
	response.OK(c, state)
}

func (h *ChatHandler) Recall(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req RecallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	text, err := h.chatService.Recall(userID, req.Direction)
	if err != nil {
		writeChatError(c, err, "recall input failed")
		return
	}
	state, err := h.chatService.State(userID)
	if err != nil {
		writeChatError(c, err, "fetch chat state failed")
		return
	}
	response.OK(c, gin.H{
		"input":         text,
		"historyCursor": state.HistoryCursor,
	})
}

func (h *ChatHandler) Export(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	doc, filename, err := h.chatService.Export(userID)
	if err != nil {
		writeChatError(c, err, "export chat failed")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.IndentedJSON(http.StatusOK, doc)
}

// Archive lists archived messages. limit defaults to 100 and is capped at 500.
func (h *ChatHandler) Archive(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	messages, err := h.chatService.Archive(userID, limit)
	if err != nil {
		writeChatError(c, err, "list archive failed")
		return
	}
	response.OK(c, gin.H{"messages": messages})
}

func writeChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		response.Error(c, http.StatusBadRequest, response.CodeEmptyMessage, err.Error())
	case errors.Is(err, app.ErrInvalidDirection):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidDirection, err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, conversation.ErrReplyPending):
		response.Error(c, http.StatusConflict, response.CodeReplyPending, err.Error())
	case errors.Is(err, conversation.ErrClosed):
		response.Error(c, http.StatusConflict, response.CodeSessionClosed, err.Error())
	case errors.Is(err, app.ErrArchiveDisabled):
		response.Error(c, http.StatusServiceUnavailable, response.CodeArchiveDisabled, err.Error())
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
