package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/policyrag/internal/pkg/response"
	"github.com/xxxsen/policyrag/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	docID := c.Param("doc_id")
	n, err := h.documents.Delete(c.Request.Context(), c.Query("tenant_id"), docID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"doc_id": docID, "deleted": n})
}
