package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/policyrag/internal/db"
	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
	"github.com/xxxsen/policyrag/internal/pkg/pgtest"
)

func TestIngestJobRepoLifecycle(t *testing.T) {
	conn := pgtest.Open(t)
	ctx := context.Background()
	require.NoError(t, db.ApplyMigrations(ctx, conn))
	r := NewIngestJobRepo(conn)

	now := time.Now().Unix()
	job := &model.IngestJob{
		ID:          "job-1",
		TenantID:    "t1",
		DocID:       "d1",
		Locator:     "t1/abc_leave.pdf",
		ContentType: "application/pdf",
		Status:      model.IngestJobStatusPending,
		MaxAttempts: 4,
		NextRunAt:   now,
		Ctime:       now,
		Mtime:       now,
	}
	require.NoError(t, r.Create(ctx, job))
	require.ErrorIs(t, r.Create(ctx, job), appErr.ErrConflict)

	claimed, err := r.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, model.IngestJobStatusProcessing, claimed[0].Status)
	require.Equal(t, 1, claimed[0].Attempts)

	again, err := r.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Empty(t, again)

	require.NoError(t, r.MarkRetry(ctx, "job-1", "boom", now+60, now))
	notDue, err := r.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Empty(t, notDue)

	claimed, err = r.ClaimDue(ctx, now+60, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, 2, claimed[0].Attempts)

	n, err := r.ResetStale(ctx, now+120, now+120)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	claimed, err = r.ClaimDue(ctx, now+120, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, r.MarkSucceeded(ctx, "job-1", 12, now+130))

	got, err := r.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, model.IngestJobStatusSucceeded, got.Status)
	require.Equal(t, 12, got.ChunkCount)
	require.Empty(t, got.LastError)

	_, err = r.Get(ctx, "missing")
	require.True(t, appErr.IsNotFound(err))
	require.True(t, appErr.IsNotFound(r.MarkFailed(ctx, "missing", "x", now)))
}

func TestEmbeddingCacheRepo(t *testing.T) {
	conn := pgtest.Open(t)
	ctx := context.Background()
	require.NoError(t, db.ApplyMigrations(ctx, conn))
	r := NewEmbeddingCacheRepo(conn)

	many, err := r.GetMany(ctx, "m", "RETRIEVAL_QUERY", []string{"h"})
	require.NoError(t, err)
	require.Empty(t, many)

	require.NoError(t, r.SaveMany(ctx, []model.EmbeddingCache{
		{ModelName: "m", TaskType: "RETRIEVAL_QUERY", ContentHash: "h", Vector: []float32{9, 9}, CreatedAt: 5},
		{ModelName: "m", TaskType: "RETRIEVAL_QUERY", ContentHash: "h", Vector: []float32{1, 2}, CreatedAt: 10},
		{ModelName: "m", TaskType: "RETRIEVAL_DOCUMENT", ContentHash: "h", Vector: []float32{3, 4}, CreatedAt: 20},
	}))
	require.NoError(t, r.SaveMany(ctx, nil))

	many, err = r.GetMany(ctx, "m", "RETRIEVAL_QUERY", []string{"h", "absent"})
	require.NoError(t, err)
	require.Equal(t, map[string][]float32{"h": {1, 2}}, many)

	n, err := r.DeleteBefore(ctx, 11)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
