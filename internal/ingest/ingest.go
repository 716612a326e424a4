// Package ingest turns one stored document into tenant scoped vector records.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/ai"
	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageChunk   = "chunk"
	StageEmbed   = "embed"
	StageBuild   = "build"
	StageUpsert  = "upsert"
)

// Fetcher loads the raw document bytes behind a locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

type FetcherFunc func(ctx context.Context, locator string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}

type Extractor interface {
	Extract(data []byte, contentType string) (string, error)
}

type Splitter interface {
	Split(text string) []model.Chunk
}

type Writer interface {
	Upsert(ctx context.Context, tenantID string, records []model.VectorRecord) error
}

type Request struct {
	TenantID    string
	DocID       string
	UserID      string
	Locator     string
	ContentType string
	// Metadata is logged with the run. It is not stored on the records.
	Metadata map[string]string
}

type Result struct {
	DocID      string   `json:"doc_id"`
	ChunkCount int      `json:"chunk_count"`
	RecordIDs  []string `json:"record_ids"`
}

type Pipeline struct {
	fetcher   Fetcher
	extractor Extractor
	chunker   Splitter
	embedder  ai.IEmbedder
	index     Writer
}

func New(fetcher Fetcher, extractor Extractor, chunker Splitter, embedder ai.IEmbedder, index Writer) (*Pipeline, error) {
	if fetcher == nil || extractor == nil || chunker == nil || embedder == nil || index == nil {
		return nil, appErr.Config("ingestion pipeline requires fetcher, extractor, chunker, embedder and index")
	}
	return &Pipeline{
		fetcher:   fetcher,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
	}, nil
}

// Ingest runs every step for one document. Record ids depend only on tenant,
// document and chunk position, so running it again overwrites the previous
// records. A failed upsert may leave part of the document indexed; a retry
// repairs it.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("tenant_id", req.TenantID),
		zap.String("doc_id", req.DocID),
	)
	start := time.Now()
	fail := func(stage string, err error) error {
		logger.Error("ingestion stage failed", zap.String("stage", stage), zap.Error(err))
		return appErr.IngestionStage(stage, req.TenantID, req.DocID, err)
	}
	logger.Info("ingestion started", zap.String("locator", req.Locator), zap.Any("metadata", req.Metadata))

	data, err := p.fetcher.Fetch(ctx, req.Locator)
	if err != nil {
		return nil, fail(StageFetch, err)
	}
	text, err := p.extractor.Extract(data, req.ContentType)
	if err != nil {
		return nil, fail(StageExtract, err)
	}
	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, fail(StageChunk, appErr.ErrEmptyDocument)
	}
	logger.Debug("document chunked", zap.Int("bytes", len(data)), zap.Int("chunks", len(chunks)))

	texts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		texts = append(texts, ch.Text)
	}
	vectors, err := p.embedder.Embed(ctx, texts, ai.TaskRetrievalDocument)
	if err == nil && len(vectors) != len(chunks) {
		err = fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))
	}
	if err != nil {
		return nil, fail(StageEmbed, err)
	}

	records, err := buildRecords(req, chunks, vectors)
	if err != nil {
		return nil, fail(StageBuild, err)
	}
	if err := p.index.Upsert(ctx, req.TenantID, records); err != nil {
		return nil, fail(StageUpsert, err)
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	logger.Info("ingestion finished",
		zap.Int("chunks", len(records)),
		zap.String("embed_model", p.embedder.ModelName()),
		zap.Duration("cost", time.Since(start)),
	)
	return &Result{DocID: req.DocID, ChunkCount: len(records), RecordIDs: ids}, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.TenantID) == "" {
		return appErr.Invalid("tenant_id is required")
	}
	if strings.TrimSpace(req.DocID) == "" {
		return appErr.Invalid("doc_id is required")
	}
	if strings.TrimSpace(req.Locator) == "" {
		return appErr.Invalid("locator is required")
	}
	return nil
}

func buildRecords(req Request, chunks []model.Chunk, vectors [][]float32) ([]model.VectorRecord, error) {
	records := make([]model.VectorRecord, 0, len(chunks))
	for i, ch := range chunks {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("empty embedding for %s", ch.ID)
		}
		records = append(records, model.VectorRecord{
			ID:        model.RecordID(req.TenantID, req.DocID, ch.ID),
			Embedding: vectors[i],
			Text:      ch.Text,
			Metadata: model.RecordMetadata{
				TenantID:      req.TenantID,
				DocID:         req.DocID,
				UserID:        req.UserID,
				ChunkIndex:    ch.Index,
				SourceLocator: req.Locator,
			},
		})
	}
	return records, nil
}
