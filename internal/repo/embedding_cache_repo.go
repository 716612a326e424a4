package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/policyrag/internal/model"
)

const upsertEmbeddingCacheSQL = `
	INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
		embedding = EXCLUDED.embedding,
		ctime = EXCLUDED.ctime
`

type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

// GetMany looks up a batch of hashes in one round trip. Missing hashes are
// absent from the result.
func (r *EmbeddingCacheRepo) GetMany(ctx context.Context, modelName, taskType string, contentHashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(contentHashes))
	if len(contentHashes) == 0 {
		return out, nil
	}
	const query = `
		SELECT content_hash, embedding
		FROM embedding_cache
		WHERE model_name = $1 AND task_type = $2 AND content_hash = ANY($3)
	`
	rows, err := r.db.QueryContext(ctx, query, modelName, taskType, pq.Array(contentHashes))
	if err != nil {
		return nil, fmt.Errorf("query embedding cache: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hash string
		var vec pgvector.Vector
		if err := rows.Scan(&hash, &vec); err != nil {
			return nil, err
		}
		out[hash] = vec.Slice()
	}
	return out, rows.Err()
}

// SaveMany upserts items in a single transaction, so a document's batch is
// cached entirely or not at all.
func (r *EmbeddingCacheRepo) SaveMany(ctx context.Context, items []model.EmbeddingCache) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, upsertEmbeddingCacheSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, item.ModelName, item.TaskType, item.ContentHash, pgvector.NewVector(item.Vector), item.CreatedAt); err != nil {
			return fmt.Errorf("save embedding cache %s: %w", item.ContentHash, err)
		}
	}
	return tx.Commit()
}

// DeleteBefore drops entries created before cutoff (unix seconds).
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE ctime < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
