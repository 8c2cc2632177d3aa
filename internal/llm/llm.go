// Package llm defines provider-neutral types for streaming text
// generation, tool calling, and embeddings, plus adapters for the
// Gemini and OpenAI APIs.
//
// The adapters normalize the two providers' streaming shapes into a
// single event sequence: OpenAI emits tool-call argument fragments
// keyed by index, while Gemini delivers complete function calls as
// parts. Consumers see the same ToolDelta either way and accumulate
// fragments until the stream ends.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
)

var (
	// ErrNoToolCall indicates a forced tool call produced no tool invocation.
	ErrNoToolCall = errors.New("model returned no tool call")

	// ErrEmptyResponse indicates the model returned no usable output.
	ErrEmptyResponse = errors.New("model returned empty response")
)

// Message roles in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn as seen by the model.
type Message struct {
	Role string
	Text string
}

// ToolSchema describes a tool offered to the model. Parameters is a
// JSON Schema object.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolDelta is an incremental piece of a tool invocation. Index
// distinguishes parallel calls within one response; ID and Name arrive
// on the first delta for a call, Arguments accumulates across deltas.
type ToolDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// StreamEvent is one increment of a model response. Exactly one of
// TextDelta or Tool is set.
type StreamEvent struct {
	TextDelta string
	Tool      *ToolDelta
}

// ToolCall is a complete tool invocation with fully accumulated arguments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Request describes a single model call.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSchema
	MaxTokens int
}

// TextGenerator produces model output. Stream yields incremental
// events; iteration stops at the first error. Generate returns the
// complete text of a non-streaming call. ForcedTool constrains the
// model to invoke the given tool and returns the parsed call.
type TextGenerator interface {
	Stream(ctx context.Context, req Request) iter.Seq2[StreamEvent, error]
	Generate(ctx context.Context, req Request) (string, error)
	ForcedTool(ctx context.Context, req Request, tool ToolSchema) (*ToolCall, error)
}

// Embedder converts text into a vector embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
