package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const NoContextAnswer = "I could not find this in the policy documents available to you."

var ErrAnswerFailed = errors.New("answer generation failed")

type Retriever interface {
	Retrieve(ctx context.Context, tenantID, question string, topK int) ([]model.RetrievalCandidate, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string, passages []model.RetrievalCandidate) (string, error)
}

type ChatService struct {
	retriever Retriever
	answerer  Answerer
	topK      int
}

type AskInput struct {
	TenantID string
	UserID   string
	Question string
	TopK     int
}

type Source struct {
	ChunkID       string  `json:"chunk_id"`
	DocID         string  `json:"doc_id"`
	TenantID      string  `json:"tenant_id"`
	SourceLocator string  `json:"source_locator"`
	Score         float64 `json:"score"`
}

type AskResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

func NewChatService(retriever Retriever, answerer Answerer, topK int) *ChatService {
	return &ChatService{retriever: retriever, answerer: answerer, topK: topK}
}

// Ask answers from the tenant's own documents. With no matching passage the
// model is not called.
func (s *ChatService) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	if strings.TrimSpace(in.TenantID) == "" || strings.TrimSpace(in.UserID) == "" {
		return nil, appErr.Invalid("tenant_id and user_id are required")
	}
	topK := in.TopK
	if topK <= 0 {
		topK = s.topK
	}
	logger := logutil.GetLogger(ctx).With(zap.String("tenant_id", in.TenantID), zap.String("user_id", in.UserID))
	passages, err := s.retriever.Retrieve(ctx, in.TenantID, in.Question, topK)
	if err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, Source{
			ChunkID:       p.ID,
			DocID:         p.Metadata.DocID,
			TenantID:      p.Metadata.TenantID,
			SourceLocator: p.Metadata.SourceLocator,
			Score:         p.Score,
		})
	}
	if len(passages) == 0 {
		logger.Info("no passages for question")
		return &AskResult{Answer: NoContextAnswer, Sources: sources}, nil
	}
	answer, err := s.answerer.Answer(ctx, in.Question, passages)
	if err != nil {
		logger.Error("generate answer failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrAnswerFailed, err)
	}
	return &AskResult{Answer: answer, Sources: sources}, nil
}
