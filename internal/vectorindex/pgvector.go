package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

// pgvectorIndex stores records in a Postgres table with an HNSW cosine
// index. The *sql.DB is shared with the rest of the process and is not
// closed here.
type pgvectorIndex struct {
	db        *sql.DB
	table     string
	dimension int
}

func NewPGVector(db *sql.DB, table string, dimension int) (Index, error) {
	if db == nil {
		return nil, appErr.Config("pgvector index requires a database")
	}
	if dimension <= 0 {
		return nil, appErr.Config("pgvector index requires a positive dimension")
	}
	if err := validateTable(table); err != nil {
		return nil, err
	}
	return &pgvectorIndex{db: db, table: table, dimension: dimension}, nil
}

func (p *pgvectorIndex) EnsureCollection(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL,
			source_locator TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			mtime BIGINT NOT NULL
		)`, p.table, p.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tenant_doc ON %s (tenant_id, doc_id)`, p.table, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_hnsw ON %s USING hnsw (embedding vector_cosine_ops)`, p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	logutil.GetLogger(ctx).Info("vector collection ready", zap.String("table", p.table), zap.Int("dimension", p.dimension))
	return nil
}

// Upsert writes all records in one transaction. An id collision with
// another tenant's record rolls the whole batch back.
func (p *pgvectorIndex) Upsert(ctx context.Context, tenantID string, records []model.VectorRecord) error {
	if err := validateRecords(tenantID, p.dimension, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertSQL(p.table, func(n int) string { return fmt.Sprintf("$%d", n) }))
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().Unix()
	for _, rec := range records {
		if err := execUpsert(ctx, stmt, rec,
			rec.ID,
			rec.Metadata.TenantID,
			rec.Metadata.DocID,
			rec.Metadata.UserID,
			rec.Metadata.ChunkIndex,
			rec.Metadata.SourceLocator,
			rec.Text,
			pgvector.NewVector(rec.Embedding),
			now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *pgvectorIndex) Query(ctx context.Context, tenantID string, vector []float32, k int) ([]model.RetrievalCandidate, error) {
	if err := validateQuery(tenantID, vector, k); err != nil {
		return nil, err
	}
	if len(vector) != p.dimension {
		return nil, appErr.Invalid("query vector has dimension %d, index expects %d", len(vector), p.dimension)
	}
	query := fmt.Sprintf(`
		SELECT id, tenant_id, doc_id, user_id, chunk_index, source_locator, text, embedding <=> $1 AS distance
		FROM %s
		WHERE tenant_id = $2
		ORDER BY embedding <=> $1, id
		LIMIT $3
	`, p.table)
	rows, err := p.db.QueryContext(ctx, query, pgvector.NewVector(vector), tenantID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.RetrievalCandidate, 0, k)
	for rows.Next() {
		var c model.RetrievalCandidate
		if err := rows.Scan(&c.ID, &c.Metadata.TenantID, &c.Metadata.DocID, &c.Metadata.UserID, &c.Metadata.ChunkIndex, &c.Metadata.SourceLocator, &c.Text, &c.Distance); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *pgvectorIndex) DeleteDocument(ctx context.Context, tenantID, docID string) (int64, error) {
	if tenantID == "" || docID == "" {
		return 0, appErr.Invalid("tenant id and doc id are required")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1 AND doc_id = $2`, p.table)
	res, err := p.db.ExecContext(ctx, query, tenantID, docID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *pgvectorIndex) Close() error {
	return nil
}

func init() {
	Register("pgvector", func(_ context.Context, opts Options) (Index, error) {
		return NewPGVector(opts.DB, opts.Table, opts.Dimension)
	})
}
