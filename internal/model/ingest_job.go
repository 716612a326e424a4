package model

const (
	IngestJobStatusPending    = "pending"
	IngestJobStatusProcessing = "processing"
	IngestJobStatusSucceeded  = "succeeded"
	IngestJobStatusFailed     = "failed"
)

type IngestJob struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	DocID       string `json:"doc_id"`
	UserID      string `json:"user_id"`
	Locator     string `json:"locator"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error"`
	ChunkCount  int    `json:"chunk_count"`
	NextRunAt   int64  `json:"next_run_at"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}

func (j *IngestJob) Finished() bool {
	return j.Status == IngestJobStatusSucceeded || j.Status == IngestJobStatusFailed
}
