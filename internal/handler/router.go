package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/policyrag/internal/middleware"
)

type RouterDeps struct {
	Health    *HealthHandler
	Uploads   *UploadHandler
	Chat      *ChatHandler
	Documents *DocumentHandler
	// AskLimiter throttles /chat/ask per tenant. Nil disables it.
	AskLimiter gin.HandlerFunc
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.Use(middleware.RequestID())
	api.GET("/health", deps.Health.Get)

	api.POST("/uploads", deps.Uploads.Create)
	api.GET("/uploads/:task_id", deps.Uploads.Status)

	chat := api.Group("/chat")
	if deps.AskLimiter != nil {
		chat.Use(deps.AskLimiter)
	}
	chat.POST("/ask", deps.Chat.Ask)

	api.DELETE("/documents/:doc_id", deps.Documents.Delete)
}
