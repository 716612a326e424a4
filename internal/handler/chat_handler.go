package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/policyrag/internal/pkg/errcode"
	"github.com/xxxsen/policyrag/internal/pkg/response"
	"github.com/xxxsen/policyrag/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

type askRequest struct {
	TenantID string `json:"tenant_id" form:"tenant_id"`
	UserID   string `json:"user_id" form:"user_id"`
	Question string `json:"question" form:"question"`
	TopK     int    `json:"top_k" form:"top_k"`
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Ask reads a JSON body, or form and query parameters otherwise.
func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.chat.Ask(c.Request.Context(), service.AskInput{
		TenantID: req.TenantID,
		UserID:   req.UserID,
		Question: req.Question,
		TopK:     req.TopK,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}
