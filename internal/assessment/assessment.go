// Package assessment synthesizes the final clinical assessment from
// the interview's findings, differentials, and retrieved guideline
// passages, and assembles the citations that support it.
package assessment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/guideline"
	"github.com/boganlabs/bogan/internal/llm"
	"github.com/boganlabs/bogan/internal/log"
)

// confidenceRank orders citations by diagnostic confidence.
var confidenceRank = map[string]int{
	conversation.ConfidenceHigh:     0,
	conversation.ConfidenceModerate: 1,
	conversation.ConfidenceLow:      2,
}

// Evidence is the guideline support retrieved for one condition.
type Evidence struct {
	Condition  string
	Confidence string
	Chunks     []guideline.Scored
}

// Result is a synthesized assessment with its supporting citations.
type Result struct {
	Text      string
	Citations []conversation.Citation
}

// Generator is the model call the synthesizer needs.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Synthesizer produces the end-of-interview assessment.
type Synthesizer struct {
	generator Generator
	model     string
	maxTokens int
	logger    log.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(generator Generator, model string, maxTokens int, logger log.Logger) *Synthesizer {
	return &Synthesizer{generator: generator, model: model, maxTokens: maxTokens, logger: logger}
}

// Synthesize generates the assessment text and collects citations from
// the evidence. The model is instructed to ground its plan in the
// provided guideline passages only.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	profile *conversation.Profile,
	findings []conversation.Finding,
	diagnoses []conversation.Diagnosis,
	evidence []Evidence,
) (*Result, error) {
	prompt := buildPrompt(profile, findings, diagnoses, evidence)

	text, err := s.generator.Generate(ctx, llm.Request{
		Model:     s.model,
		System:    synthesisSystem,
		Messages:  []llm.Message{{Role: llm.RoleUser, Text: prompt}},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesizing assessment: %w", err)
	}

	citations := Citations(evidence)
	s.logger.Debug("synthesized assessment",
		"length", len(text), "citations", len(citations))
	return &Result{Text: text, Citations: citations}, nil
}

// Citations flattens evidence into citations, deduplicated by chunk ID
// with first occurrence winning, then sorted by confidence rank and
// descending similarity.
func Citations(evidence []Evidence) []conversation.Citation {
	seen := make(map[string]struct{})
	var citations []conversation.Citation
	for _, ev := range evidence {
		for _, chunk := range ev.Chunks {
			key := chunk.ID.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			citations = append(citations, conversation.Citation{
				ChunkID:    chunk.ID,
				Source:     chunk.Source,
				Section:    chunk.Section,
				Condition:  ev.Condition,
				Confidence: ev.Confidence,
				Similarity: chunk.Similarity,
			})
		}
	}

	sort.SliceStable(citations, func(i, j int) bool {
		ri, rj := confidenceRank[citations[i].Confidence], confidenceRank[citations[j].Confidence]
		if ri != rj {
			return ri < rj
		}
		return citations[i].Similarity > citations[j].Similarity
	})
	return citations
}

const synthesisSystem = "You are an experienced clinician writing a patient assessment. " +
	"Write in clear, plain language the patient can understand. " +
	"Structure your response with an ASSESSMENT: section summarizing what was found, " +
	"followed by a PLAN: section with recommended next steps. " +
	"Base your plan ONLY on the guideline excerpts provided. " +
	"Do not invent or cite any references beyond those excerpts."

// buildPrompt renders the patient picture and the retrieved guideline
// evidence for the synthesis call.
func buildPrompt(
	profile *conversation.Profile,
	findings []conversation.Finding,
	diagnoses []conversation.Diagnosis,
	evidence []Evidence,
) string {
	var sb strings.Builder

	if profile != nil {
		fmt.Fprintf(&sb, "PATIENT: %d-year-old %s\n\n", profile.Age, profile.BiologicalSex)
	}

	sb.WriteString("CLINICAL FINDINGS:\n")
	if len(findings) == 0 {
		sb.WriteString("(none recorded)\n")
	}
	for _, f := range findings {
		fmt.Fprintf(&sb, "- %s: %s\n", f.Category, f.Value)
	}

	sb.WriteString("\nDIFFERENTIAL DIAGNOSES:\n")
	for _, d := range diagnoses {
		fmt.Fprintf(&sb, "%d. %s (%s confidence)\n", d.Position+1, d.Condition, d.Confidence)
	}

	for _, ev := range evidence {
		if len(ev.Chunks) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\nGUIDELINES FOR %s (%s confidence):\n", strings.ToUpper(ev.Condition), ev.Confidence)
		for _, chunk := range ev.Chunks {
			fmt.Fprintf(&sb, "[%s", chunk.Source)
			if chunk.Section != "" {
				fmt.Fprintf(&sb, ", %s", chunk.Section)
			}
			sb.WriteString("]\n")
			sb.WriteString(chunk.Content)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nWrite the assessment and plan for this patient.")
	return sb.String()
}
