package interview

import (
	"context"
	"fmt"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/llm"
)

// extractFindings runs the independent forced-tool extraction pass over
// the most recent user message. The system prompt lists what is
// already recorded so the extractor does not re-emit it. Entries with
// an invalid category are dropped, not fatal; their categories come
// back for logging. The caller decides persistence and swallows
// failures.
func extractFindings(
	ctx context.Context,
	generator llm.TextGenerator,
	model string,
	userText string,
	existing []conversation.Finding,
) ([]conversation.Finding, []string, error) {
	call, err := generator.ForcedTool(ctx, llm.Request{
		Model:    model,
		System:   buildExtractionPrompt(existing),
		Messages: []llm.Message{{Role: llm.RoleUser, Text: userText}},
	}, recordFindingSchema())
	if err != nil {
		return nil, nil, fmt.Errorf("extraction call: %w", err)
	}

	findings, dropped, err := parseFindingArgsLenient(call.Arguments)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing extraction output: %w", err)
	}
	return findings, dropped, nil
}
