package guideline_test

import (
	"testing"

	"github.com/boganlabs/bogan/internal/guideline"
	"github.com/boganlabs/bogan/internal/llm"
	"github.com/boganlabs/bogan/internal/testutil"
)

func TestStore_NearestOrdersByDistance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed store test in short mode")
	}
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	ctx := t.Context()
	store := guideline.NewStore(db.Pool)
	embedder := &testutil.HashEmbedder{Dimension: llm.EmbeddingDimension}

	texts := []string{
		"Malaria diagnosis requires parasitological confirmation.",
		"Typhoid fever presents with sustained fever and abdominal pain.",
		"Dengue warning signs include mucosal bleeding.",
	}
	for i, text := range texts {
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			t.Fatalf("Embed = %v", err)
		}
		chunk := &guideline.Chunk{Source: "WHO 2023", Section: "Diagnosis", Content: text}
		if err := store.Add(ctx, chunk, vec); err != nil {
			t.Fatalf("Add chunk %d = %v", i, err)
		}
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count = %v", err)
	}
	if n != int64(len(texts)) {
		t.Errorf("Count = %d, want %d", n, len(texts))
	}

	// Querying with a stored chunk's own embedding must rank that chunk
	// first with similarity 1 up to float rounding.
	query, err := embedder.Embed(ctx, texts[1])
	if err != nil {
		t.Fatalf("Embed = %v", err)
	}
	results, err := store.Nearest(ctx, query, 3)
	if err != nil {
		t.Fatalf("Nearest = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].Content != texts[1] {
		t.Errorf("nearest chunk = %q, want the exact-match text", results[0].Content)
	}
	if results[0].Similarity < 0.999 {
		t.Errorf("exact-match similarity = %v, want ~1", results[0].Similarity)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results out of order at %d", i)
		}
	}
}
