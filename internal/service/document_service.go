package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

type DocumentDeleter interface {
	DeleteDocument(ctx context.Context, tenantID, docID string) (int64, error)
}

type DocumentService struct {
	index DocumentDeleter
}

func NewDocumentService(index DocumentDeleter) *DocumentService {
	return &DocumentService{index: index}
}

// Delete removes every record of the document. Deleting a document that has
// no records reports not found.
func (s *DocumentService) Delete(ctx context.Context, tenantID, docID string) (int64, error) {
	if err := validateTenant(tenantID); err != nil {
		return 0, err
	}
	if strings.TrimSpace(docID) == "" {
		return 0, appErr.Invalid("doc_id is required")
	}
	n, err := s.index.DeleteDocument(ctx, tenantID, docID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, appErr.ErrNotFound
	}
	logutil.GetLogger(ctx).Info("document deleted",
		zap.String("tenant_id", tenantID),
		zap.String("doc_id", docID),
		zap.Int64("records", n),
	)
	return n, nil
}
