package guideline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/llm"
	"github.com/boganlabs/bogan/internal/log"
)

// Retrieval parameters.
const (
	// TopN is the number of chunks returned per condition.
	TopN = 5

	// MinSimilarity is the relevance floor; chunks scoring below it are
	// discarded even if fewer than TopN remain.
	MinSimilarity = 0.50

	// FindingBoost is added to a chunk's similarity once per distinct
	// finding value that appears in its content.
	FindingBoost = 0.01

	// candidateLimit is how many chunks each embedding query fetches
	// before merging and reranking.
	candidateLimit = 10
)

// Searcher answers nearest-neighbor queries. *Store implements it.
type Searcher interface {
	Nearest(ctx context.Context, embedding []float32, limit int) ([]Scored, error)
}

// Retriever finds the guideline passages most relevant to a condition,
// biased toward what was actually observed in the interview.
type Retriever struct {
	searcher Searcher
	embedder llm.Embedder
	logger   log.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(searcher Searcher, embedder llm.Embedder, logger log.Logger) *Retriever {
	return &Retriever{searcher: searcher, embedder: embedder, logger: logger}
}

// Retrieve runs two embedding queries, one for the condition alone and
// one for the condition in the context of the findings, merges the
// candidates keeping the higher similarity per chunk, boosts chunks
// that mention recorded finding values, applies the relevance floor,
// and returns the top results.
func (r *Retriever) Retrieve(ctx context.Context, condition string, findings []conversation.Finding) ([]Scored, error) {
	queries := []string{condition}
	if len(findings) > 0 {
		queries = append(queries, contextualQuery(condition, findings))
	}

	merged := make(map[string]Scored)
	for _, q := range queries {
		vec, err := r.embedder.Embed(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("embedding retrieval query: %w", err)
		}
		candidates, err := r.searcher.Nearest(ctx, vec, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("searching guideline chunks: %w", err)
		}
		for _, c := range candidates {
			key := c.ID.String()
			if prev, ok := merged[key]; !ok || c.Similarity > prev.Similarity {
				merged[key] = c
			}
		}
	}

	results := make([]Scored, 0, len(merged))
	for _, c := range merged {
		c.Similarity += boost(c.Content, findings)
		if c.Similarity < MinSimilarity {
			continue
		}
		results = append(results, c)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID.String() < results[j].ID.String()
	})

	if len(results) > TopN {
		results = results[:TopN]
	}

	r.logger.Debug("retrieved guideline chunks",
		"condition", condition, "candidates", len(merged), "returned", len(results))
	return results, nil
}

// contextualQuery renders the condition together with the findings as
// "category: value" lines so the embedding reflects the presentation.
func contextualQuery(condition string, findings []conversation.Finding) string {
	var sb strings.Builder
	sb.WriteString(condition)
	sb.WriteString("\n")
	for _, f := range findings {
		sb.WriteString(f.Category)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
		sb.WriteString("\n")
	}
	return sb.String()
}

// boost counts distinct finding values mentioned in the content. Each
// distinct match adds FindingBoost once, regardless of how many times
// the value appears.
func boost(content string, findings []conversation.Finding) float64 {
	lower := strings.ToLower(content)
	seen := make(map[string]struct{})
	var total float64
	for _, f := range findings {
		val := strings.ToLower(strings.TrimSpace(f.Value))
		if val == "" {
			continue
		}
		if _, dup := seen[val]; dup {
			continue
		}
		seen[val] = struct{}{}
		if strings.Contains(lower, val) {
			total += FindingBoost
		}
	}
	return total
}
