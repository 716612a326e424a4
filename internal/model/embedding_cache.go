package model

// EmbeddingCache is one persisted vector, keyed by the embedding model, the
// task type it was requested with and the sha256 of the input text.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Vector      []float32 `json:"vector"`
	CreatedAt   int64     `json:"created_at"`
}
