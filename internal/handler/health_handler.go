package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/policyrag/internal/pkg/response"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Get(c *gin.Context) {
	response.Success(c, gin.H{"status": "OK"})
}
