package dbutil

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalizeRebinds(t *testing.T) {
	query, args := Finalize("SELECT * FROM ingest_jobs WHERE id=? AND tenant_id=?", []interface{}{"j1", "acme"})
	require.Equal(t, "SELECT * FROM ingest_jobs WHERE id=$1 AND tenant_id=$2", query)
	require.Equal(t, []interface{}{"j1", "acme"}, args)
}

func TestFinalizeRewritesLimit(t *testing.T) {
	query, args := Finalize("SELECT * FROM ingest_jobs WHERE status=? LIMIT ?,?", []interface{}{"pending", 20, 10})
	require.Equal(t, "SELECT * FROM ingest_jobs WHERE status=$1 LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"pending", 10, 20}, args)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: uniqueViolation}))
	require.True(t, IsConflict(fmt.Errorf("insert job: %w", &pq.Error{Code: uniqueViolation})))
	require.False(t, IsConflict(&pq.Error{Code: "23503"}))
	require.False(t, IsConflict(fmt.Errorf("boom")))
	require.False(t, IsConflict(nil))
}
