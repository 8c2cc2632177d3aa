package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/boganlabs/bogan/internal/llm"
)

// HashEmbedder produces deterministic, normalized embeddings derived
// from a SHA-256 of the input text. Identical inputs always map to
// identical vectors, which makes similarity assertions stable without
// a real embedding model.
type HashEmbedder struct {
	// Dimension of produced vectors. Zero means llm.EmbeddingDimension.
	Dimension int
}

// Embed implements llm.Embedder.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := h.Dimension
	if dim == 0 {
		dim = llm.EmbeddingDimension
	}

	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		// Re-hash the digest with the index to stretch 32 bytes across
		// the full dimension.
		var buf [40]byte
		copy(buf[:32], sum[:])
		binary.LittleEndian.PutUint64(buf[32:], uint64(i))
		d := sha256.Sum256(buf[:])
		v := float64(int64(binary.LittleEndian.Uint64(d[:8]))) / math.MaxInt64
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}
