package model

import "strings"

type RecordMetadata struct {
	TenantID      string `json:"tenant_id"`
	DocID         string `json:"doc_id"`
	UserID        string `json:"user_id"`
	ChunkIndex    int    `json:"chunk_index"`
	SourceLocator string `json:"source_locator"`
}

type VectorRecord struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Text      string         `json:"text"`
	Metadata  RecordMetadata `json:"metadata"`
}

// RecordID is deterministic so that re-ingesting the same document overwrites
// its records instead of duplicating them.
func RecordID(tenantID, docID, chunkID string) string {
	return strings.Join([]string{tenantID, docID, chunkID}, "_")
}
