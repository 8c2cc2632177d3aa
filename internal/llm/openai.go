package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAI adapts the OpenAI chat completions API to TextGenerator and
// Embedder.
type OpenAI struct {
	client        openai.Client
	embedderModel string
}

// NewOpenAI creates an OpenAI adapter.
func NewOpenAI(apiKey, embedderModel string) *OpenAI {
	return &OpenAI{
		client:        openai.NewClient(option.WithAPIKey(apiKey)),
		embedderModel: embedderModel,
	}
}

// Stream yields incremental response events. OpenAI streams tool-call
// arguments as fragments keyed by index; each fragment surfaces as its
// own ToolDelta and the consumer accumulates them.
func (o *OpenAI) Stream(ctx context.Context, req Request) iter.Seq2[StreamEvent, error] {
	params := o.chatParams(req)

	return func(yield func(StreamEvent, error) bool) {
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				if !yield(StreamEvent{TextDelta: delta.Content}, nil) {
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				ev := StreamEvent{Tool: &ToolDelta{
					Index:     int(tc.Index),
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				}}
				if !yield(ev, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(StreamEvent{}, fmt.Errorf("openai stream: %w", err))
		}
	}
}

// Generate returns the complete text of a non-streaming call.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	completion, err := o.client.Chat.Completions.New(ctx, o.chatParams(req))
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return completion.Choices[0].Message.Content, nil
}

// ForcedTool constrains the model to call the given tool and returns
// the parsed invocation.
func (o *OpenAI) ForcedTool(ctx context.Context, req Request, tool ToolSchema) (*ToolCall, error) {
	req.Tools = []ToolSchema{tool}
	params := o.chatParams(req)
	params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
		OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
			Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: tool.Name},
		},
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai forced tool: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, ErrNoToolCall
	}
	for _, tc := range completion.Choices[0].Message.ToolCalls {
		if tc.Function.Name != tool.Name {
			continue
		}
		return &ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}, nil
	}
	return nil, ErrNoToolCall
}

// Embed produces a vector for the given text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embedderModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResponse
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (o *OpenAI) chatParams(req Request) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Text))
		default:
			msgs = append(msgs, openai.UserMessage(m.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		})
	}
	return params
}
