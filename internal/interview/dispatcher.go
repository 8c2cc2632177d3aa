package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/boganlabs/bogan/internal/llm"
)

// dispatchResult is one completed generation turn before
// classification: the full response text and the finalized tool calls
// in stream order.
type dispatchResult struct {
	Text  string
	Calls []llm.ToolCall
}

// toolAccum buffers one tool call's fragments during streaming.
// Arguments are not valid JSON until the stream ends.
type toolAccum struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// dispatch drives one streaming generation call. Text deltas are
// forwarded through onText as they arrive; tool-invocation fragments
// are buffered per call index and parsed only at end-of-stream. On any
// stream error nothing is returned, so the caller persists no partial
// assistant turn.
//
// Cancellation policy: ctx follows the transport connection, so a
// client disconnect aborts the underlying generation rather than
// letting it finish. The caller persists nothing in that case.
func dispatch(
	ctx context.Context,
	generator llm.TextGenerator,
	req llm.Request,
	onText func(string) error,
) (*dispatchResult, error) {
	var text strings.Builder
	accums := make(map[int]*toolAccum)

	for ev, err := range generator.Stream(ctx, req) {
		if err != nil {
			return nil, fmt.Errorf("streaming generation: %w", err)
		}

		if ev.TextDelta != "" {
			text.WriteString(ev.TextDelta)
			if onText != nil {
				if err := onText(ev.TextDelta); err != nil {
					return nil, fmt.Errorf("forwarding text delta: %w", err)
				}
			}
		}

		if ev.Tool != nil {
			acc, ok := accums[ev.Tool.Index]
			if !ok {
				acc = &toolAccum{index: ev.Tool.Index}
				accums[ev.Tool.Index] = acc
			}
			if ev.Tool.ID != "" {
				acc.id = ev.Tool.ID
			}
			if ev.Tool.Name != "" {
				acc.name = ev.Tool.Name
			}
			acc.args.WriteString(ev.Tool.Arguments)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generation canceled: %w", err)
	}

	calls, err := finalizeCalls(accums)
	if err != nil {
		return nil, err
	}

	return &dispatchResult{Text: text.String(), Calls: calls}, nil
}

// finalizeCalls orders accumulated calls by index and parses their
// arguments. Partial JSON mid-stream is expected; invalid JSON after
// end-of-stream is ErrMalformedToolArgs.
func finalizeCalls(accums map[int]*toolAccum) ([]llm.ToolCall, error) {
	ordered := make([]*toolAccum, 0, len(accums))
	for _, acc := range accums {
		ordered = append(ordered, acc)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	calls := make([]llm.ToolCall, 0, len(ordered))
	for i, acc := range ordered {
		args := acc.args.String()
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return nil, fmt.Errorf("%w: tool %q arguments are not valid JSON", ErrMalformedToolArgs, acc.name)
		}
		id := acc.id
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		calls = append(calls, llm.ToolCall{
			ID:        id,
			Name:      acc.name,
			Arguments: json.RawMessage(args),
		})
	}
	return calls, nil
}
