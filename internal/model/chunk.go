package model

import "fmt"

type Chunk struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Index int    `json:"index"`
	// Offset is the rune offset of Text inside the source document.
	Offset int `json:"offset"`
}

func ChunkID(index int) string {
	return fmt.Sprintf("chunk_%d", index)
}
