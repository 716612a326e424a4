package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/policyrag/internal/pkg/errcode"
	"github.com/xxxsen/policyrag/internal/pkg/response"
	"github.com/xxxsen/policyrag/internal/service"
)

type UploadHandler struct {
	uploads *service.UploadService
}

func NewUploadHandler(uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// Create accepts multipart fields file, tenant_id and user_id.
func (h *UploadHandler) Create(c *gin.Context) {
	if limit := h.uploads.MaxBytes(); limit > 0 {
		c.Request.Body = limitBody(c, limit)
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required, max "+formatUploadLimit(h.uploads.MaxBytes()))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	res, err := h.uploads.Upload(c.Request.Context(), service.UploadInput{
		TenantID:    c.PostForm("tenant_id"),
		UserID:      c.PostForm("user_id"),
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
		Body:        opened,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *UploadHandler) Status(c *gin.Context) {
	st, err := h.uploads.TaskStatus(c.Request.Context(), c.Query("tenant_id"), c.Param("task_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, st)
}
