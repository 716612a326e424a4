package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/ai"
	"github.com/xxxsen/policyrag/internal/middleware"
	"github.com/xxxsen/policyrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
	"github.com/xxxsen/policyrag/internal/pkg/response"
	"github.com/xxxsen/policyrag/internal/service"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := c.GetString(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	code, msg := classify(err)
	response.Error(c, code, msg)
}

// classify maps an error to its business code. Input errors carry their
// message to the client, dependency failures do not.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, appErr.ErrUnsupportedType):
		return errcode.ErrUnsupportedType, err.Error()
	case appErr.IsInput(err):
		return errcode.ErrInvalid, err.Error()
	case appErr.IsNotFound(err):
		return errcode.ErrNotFound, "not found"
	case appErr.IsConflict(err):
		return errcode.ErrConflict, "conflict"
	case errors.Is(err, appErr.ErrTooMany):
		return errcode.ErrTooMany, "too many requests"
	case errors.Is(err, appErr.ErrForbidden):
		return errcode.ErrForbidden, "forbidden"
	case errors.Is(err, appErr.ErrRetrievalFailed):
		if stage := appErr.StageOf(err); stage != "" {
			return errcode.ErrRetrievalFailed, "retrieval failed at " + stage
		}
		return errcode.ErrRetrievalFailed, "retrieval failed"
	case errors.Is(err, service.ErrAnswerFailed), errors.Is(err, ai.ErrUnavailable):
		return errcode.ErrAIUnavailable, "answer generation unavailable"
	case errors.Is(err, service.ErrStoreFailed):
		return errcode.ErrUploadFailed, "failed to store file"
	case errors.Is(err, service.ErrEnqueueFailed):
		return errcode.ErrEnqueueFailed, "failed to queue ingestion"
	default:
		return errcode.ErrInternal, "internal error"
	}
}
