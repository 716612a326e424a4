// Package vectorindex stores chunk embeddings and answers tenant scoped
// nearest neighbour queries.
package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

// Index is a tenant filtered kNN store keyed by record id. There is no
// unfiltered query.
type Index interface {
	// EnsureCollection creates the backing collection (cosine metric) when
	// missing. Calling it again is a no-op.
	EnsureCollection(ctx context.Context) error
	// Upsert writes records by id. Every record must belong to tenantID.
	Upsert(ctx context.Context, tenantID string, records []model.VectorRecord) error
	// Query returns up to k records of tenantID, closest first.
	Query(ctx context.Context, tenantID string, vector []float32, k int) ([]model.RetrievalCandidate, error)
	DeleteDocument(ctx context.Context, tenantID, docID string) (int64, error)
	Close() error
}

type Options struct {
	DB         *sql.DB
	Table      string
	Dimension  int
	SQLitePath string
}

type Factory func(ctx context.Context, opts Options) (Index, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

// New builds the named backend and makes sure its collection exists.
func New(ctx context.Context, name string, opts Options) (Index, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, appErr.Config("unsupported vector index: %s", name)
	}
	idx, err := factory(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return idx, nil
}

// upsertSQL inserts one record, or overwrites the row with the same id when
// it belongs to the same tenant and document. A row owned by someone else is
// left untouched and the statement affects no rows. placeholder renders the
// n-th (1 based) bind variable of the backend.
func upsertSQL(table string, placeholder func(n int) string) string {
	binds := make([]string, len(recordColumns))
	updates := make([]string, 0, len(recordColumns)-1)
	for i, col := range recordColumns {
		binds[i] = placeholder(i + 1)
		if col != "id" {
			updates = append(updates, col+" = excluded."+col)
		}
	}
	return fmt.Sprintf(`INSERT INTO %[1]s (%[2]s) VALUES (%[3]s)
		ON CONFLICT (id) DO UPDATE SET %[4]s
		WHERE %[1]s.tenant_id = excluded.tenant_id AND %[1]s.doc_id = excluded.doc_id`,
		table, strings.Join(recordColumns, ", "), strings.Join(binds, ", "), strings.Join(updates, ", "))
}

var recordColumns = []string{"id", "tenant_id", "doc_id", "user_id", "chunk_index", "source_locator", "text", "embedding", "mtime"}

// execUpsert runs stmt once per record. args must follow recordColumns. A
// record whose id is already taken by another tenant or document surfaces
// as ErrConflict.
func execUpsert(ctx context.Context, stmt *sql.Stmt, rec model.VectorRecord, args ...interface{}) error {
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: record id %s is owned by another document", appErr.ErrConflict, rec.ID)
	}
	return nil
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func validateTable(name string) error {
	if !tableNamePattern.MatchString(name) {
		return appErr.Config("invalid vector index table name %q", name)
	}
	return nil
}

func validateRecords(tenantID string, dimension int, records []model.VectorRecord) error {
	if strings.TrimSpace(tenantID) == "" {
		return appErr.Invalid("tenant id is required")
	}
	for i, rec := range records {
		if rec.ID == "" {
			return appErr.Invalid("record %d has no id", i)
		}
		if rec.Metadata.TenantID != tenantID {
			return appErr.Invalid("record %s belongs to tenant %q, not %q", rec.ID, rec.Metadata.TenantID, tenantID)
		}
		if len(rec.Embedding) == 0 {
			return appErr.Invalid("record %s has no embedding", rec.ID)
		}
		if dimension > 0 && len(rec.Embedding) != dimension {
			return appErr.Invalid("record %s has dimension %d, index expects %d", rec.ID, len(rec.Embedding), dimension)
		}
	}
	return nil
}

func validateQuery(tenantID string, vector []float32, k int) error {
	if strings.TrimSpace(tenantID) == "" {
		return appErr.Invalid("tenant id is required")
	}
	if len(vector) == 0 {
		return appErr.Invalid("query vector is empty")
	}
	if k <= 0 {
		return appErr.Invalid("k must be positive, got %d", k)
	}
	return nil
}
