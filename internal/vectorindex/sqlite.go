package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

var sqliteColumns = []string{"id", "tenant_id", "doc_id", "user_id", "chunk_index", "source_locator", "text", "embedding"}

// sqliteIndex keeps vectors as BLOBs and scans the tenant's rows on query.
// It suits single node deployments and tests.
type sqliteIndex struct {
	db        *sql.DB
	table     string
	dimension int
}

func NewSQLite(ctx context.Context, path string, table string, dimension int) (Index, error) {
	if path == "" {
		return nil, appErr.Config("sqlite path is required")
	}
	if err := validateTable(table); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteIndex{db: db, table: table, dimension: dimension}, nil
}

func (s *sqliteIndex) EnsureCollection(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL,
			source_locator TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			embedding BLOB NOT NULL,
			mtime INTEGER NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tenant_doc ON %s (tenant_id, doc_id)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteIndex) Upsert(ctx context.Context, tenantID string, records []model.VectorRecord) error {
	if err := validateRecords(tenantID, s.dimension, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	// One statement per record keeps large documents under the bind
	// variable limit of sqlite.
	stmt, err := tx.PrepareContext(ctx, upsertSQL(s.table, func(int) string { return "?" }))
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
			encodeEmbedding(rec.Embedding),
			now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteIndex) Query(ctx context.Context, tenantID string, vector []float32, k int) ([]model.RetrievalCandidate, error) {
	if err := validateQuery(tenantID, vector, k); err != nil {
		return nil, err
	}
	where := map[string]interface{}{"tenant_id": tenantID}
	sqlStr, args, err := builder.BuildSelect(s.table, where, sqliteColumns)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.RetrievalCandidate, 0)
	for rows.Next() {
		var c model.RetrievalCandidate
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Metadata.TenantID, &c.Metadata.DocID, &c.Metadata.UserID, &c.Metadata.ChunkIndex, &c.Metadata.SourceLocator, &c.Text, &blob); err != nil {
			return nil, err
		}
		emb, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", c.ID, err)
		}
		dist, err := cosineDistance(vector, emb)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip record with mismatched dimension", zap.String("id", c.ID), zap.Error(err))
			continue
		}
		c.Distance = dist
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			return out[i].ID < out[j].ID
		}
		return out[i].Distance < out[j].Distance
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *sqliteIndex) DeleteDocument(ctx context.Context, tenantID, docID string) (int64, error) {
	if tenantID == "" || docID == "" {
		return 0, appErr.Invalid("tenant id and doc id are required")
	}
	sqlStr, args, err := builder.BuildDelete(s.table, map[string]interface{}{"tenant_id": tenantID, "doc_id": docID})
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteIndex) Close() error {
	return s.db.Close()
}

func init() {
	Register("sqlite", func(ctx context.Context, opts Options) (Index, error) {
		return NewSQLite(ctx, opts.SQLitePath, opts.Table, opts.Dimension)
	})
}
