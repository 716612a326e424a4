package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// multipartOverhead is the room left for boundaries and form fields on top
// of the file itself.
const multipartOverhead = 1 << 20

// formatUploadLimit renders a byte limit as whole MB, or KB below 1MB.
func formatUploadLimit(bytes int64) string {
	const kb, mb = 1024, 1024 * 1024
	switch {
	case bytes <= 0:
		return "0KB"
	case bytes < mb:
		return strconv.FormatInt((bytes+kb-1)/kb, 10) + "KB"
	default:
		return strconv.FormatInt(bytes/mb, 10) + "MB"
	}
}

func limitBody(c *gin.Context, fileLimit int64) io.ReadCloser {
	return http.MaxBytesReader(c.Writer, c.Request.Body, fileLimit+multipartOverhead)
}
