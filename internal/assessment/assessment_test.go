package assessment

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/guideline"
	"github.com/boganlabs/bogan/internal/llm"
	"github.com/boganlabs/bogan/internal/log"
)

type fixedGenerator struct {
	out     string
	lastReq llm.Request
}

func (f *fixedGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.lastReq = req
	return f.out, nil
}

func scored(id uuid.UUID, source string, similarity float64) guideline.Scored {
	return guideline.Scored{
		Chunk:      guideline.Chunk{ID: id, Source: source, Section: "s1", Content: "content"},
		Similarity: similarity,
	}
}

func TestCitations_DedupeFirstWins(t *testing.T) {
	shared := uuid.New()
	evidence := []Evidence{
		{
			Condition:  "malaria",
			Confidence: conversation.ConfidenceModerate,
			Chunks:     []guideline.Scored{scored(shared, "who-malaria", 0.8)},
		},
		{
			Condition:  "typhoid",
			Confidence: conversation.ConfidenceHigh,
			Chunks:     []guideline.Scored{scored(shared, "who-malaria", 0.9)},
		},
	}

	citations := Citations(evidence)
	if len(citations) != 1 {
		t.Fatalf("got %d citations, want 1", len(citations))
	}
	// First occurrence wins even though the duplicate ranks higher.
	if citations[0].Condition != "malaria" {
		t.Errorf("condition = %q, want malaria", citations[0].Condition)
	}
}

func TestCitations_SortedByConfidenceThenSimilarity(t *testing.T) {
	evidence := []Evidence{
		{
			Condition:  "gastritis",
			Confidence: conversation.ConfidenceLow,
			Chunks:     []guideline.Scored{scored(uuid.New(), "low-src", 0.99)},
		},
		{
			Condition:  "malaria",
			Confidence: conversation.ConfidenceHigh,
			Chunks: []guideline.Scored{
				scored(uuid.New(), "high-weak", 0.6),
				scored(uuid.New(), "high-strong", 0.9),
			},
		},
	}

	citations := Citations(evidence)
	if len(citations) != 3 {
		t.Fatalf("got %d citations, want 3", len(citations))
	}
	if citations[0].Source != "high-strong" || citations[1].Source != "high-weak" {
		t.Errorf("high-confidence citations should lead, sorted by similarity: %v", citations)
	}
	if citations[2].Source != "low-src" {
		t.Errorf("low confidence should sort last despite higher similarity: %v", citations)
	}
}

func TestSynthesize_PromptContents(t *testing.T) {
	gen := &fixedGenerator{out: "ASSESSMENT: ...\nPLAN: ..."}
	syn := NewSynthesizer(gen, "test-model", 1024, log.NewNop())

	profile := &conversation.Profile{Age: 34, BiologicalSex: "female"}
	findings := []conversation.Finding{
		{Category: conversation.CategorySymptom, Value: "fever"},
		{Category: conversation.CategoryDuration, Value: "three days"},
	}
	diagnoses := []conversation.Diagnosis{
		{Condition: "malaria", Confidence: conversation.ConfidenceHigh, Position: 0},
	}
	evidence := []Evidence{
		{
			Condition:  "malaria",
			Confidence: conversation.ConfidenceHigh,
			Chunks:     []guideline.Scored{scored(uuid.New(), "who-malaria", 0.8)},
		},
	}

	result, err := syn.Synthesize(context.Background(), profile, findings, diagnoses, evidence)
	if err != nil {
		t.Fatalf("Synthesize() = %v", err)
	}
	if result.Text == "" {
		t.Error("result text should not be empty")
	}
	if len(result.Citations) != 1 {
		t.Errorf("got %d citations, want 1", len(result.Citations))
	}

	prompt := gen.lastReq.Messages[0].Text
	for _, want := range []string{
		"34-year-old female",
		"symptom: fever",
		"1. malaria (high confidence)",
		"GUIDELINES FOR MALARIA (high confidence):",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.Contains(gen.lastReq.System, "Do not invent") {
		t.Error("system prompt should forbid fabricated references")
	}
}

func TestSynthesize_NoEvidence(t *testing.T) {
	gen := &fixedGenerator{out: "ASSESSMENT: ...\nPLAN: ..."}
	syn := NewSynthesizer(gen, "test-model", 1024, log.NewNop())

	result, err := syn.Synthesize(context.Background(), nil, nil,
		[]conversation.Diagnosis{{Condition: "viral illness", Confidence: conversation.ConfidenceLow}}, nil)
	if err != nil {
		t.Fatalf("Synthesize() = %v", err)
	}
	if len(result.Citations) != 0 {
		t.Errorf("got %d citations, want 0", len(result.Citations))
	}
}
