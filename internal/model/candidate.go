package model

// RetrievalCandidate is produced by the recall stage (Distance, lower is
// closer) and annotated by the rerank stage (Score, higher is better).
type RetrievalCandidate struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata RecordMetadata `json:"metadata"`
	Distance float64        `json:"distance"`
	Score    float64        `json:"score"`
}
