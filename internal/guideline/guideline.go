// Package guideline stores clinical guideline chunks with vector
// embeddings and retrieves the passages most relevant to a condition
// under assessment.
package guideline

import (
	"github.com/google/uuid"
)

// Chunk is one embedded guideline passage.
type Chunk struct {
	ID      uuid.UUID `json:"id"`
	Source  string    `json:"source"`
	Section string    `json:"section"`
	Content string    `json:"content"`
}

// Scored pairs a chunk with its similarity to a query. Similarity is
// cosine similarity in [0, 1], possibly boosted during reranking.
type Scored struct {
	Chunk
	Similarity float64 `json:"similarity"`
}
