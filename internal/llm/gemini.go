package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"google.golang.org/genai"
)

// EmbeddingDimension is the vector size stored in guideline_chunks.
// Both providers are configured to produce vectors of this size.
const EmbeddingDimension = 1536

// Gemini adapts the Google Gemini API to TextGenerator and Embedder.
type Gemini struct {
	client        *genai.Client
	embedderModel string
}

// NewGemini creates a Gemini adapter using the Gemini Developer API backend.
func NewGemini(ctx context.Context, apiKey, embedderModel string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client, embedderModel: embedderModel}, nil
}

// Stream yields incremental response events. Gemini delivers complete
// function calls as parts, so each tool call surfaces as a single
// ToolDelta carrying the full argument JSON.
func (g *Gemini) Stream(ctx context.Context, req Request) iter.Seq2[StreamEvent, error] {
	contents := geminiContents(req.Messages)
	cfg := g.generateConfig(req)

	return func(yield func(StreamEvent, error) bool) {
		toolIndex := 0
		for resp, err := range g.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				yield(StreamEvent{}, fmt.Errorf("gemini stream: %w", err))
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" {
					if !yield(StreamEvent{TextDelta: part.Text}, nil) {
						return
					}
				}
				if part.FunctionCall != nil {
					args, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						yield(StreamEvent{}, fmt.Errorf("encoding function call args: %w", err))
						return
					}
					ev := StreamEvent{Tool: &ToolDelta{
						Index:     toolIndex,
						ID:        part.FunctionCall.ID,
						Name:      part.FunctionCall.Name,
						Arguments: string(args),
					}}
					toolIndex++
					if !yield(ev, nil) {
						return
					}
				}
			}
		}
	}
}

// Generate returns the complete text of a non-streaming call.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, req.Model, geminiContents(req.Messages), g.generateConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ForcedTool constrains the model to call the given tool and returns
// the parsed invocation.
func (g *Gemini) ForcedTool(ctx context.Context, req Request, tool ToolSchema) (*ToolCall, error) {
	req.Tools = []ToolSchema{tool}
	cfg := g.generateConfig(req)
	cfg.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{tool.Name},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, geminiContents(req.Messages), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini forced tool: %w", err)
	}

	for _, call := range resp.FunctionCalls() {
		if call.Name != tool.Name {
			continue
		}
		args, err := json.Marshal(call.Args)
		if err != nil {
			return nil, fmt.Errorf("encoding function call args: %w", err)
		}
		return &ToolCall{ID: call.ID, Name: call.Name, Arguments: args}, nil
	}
	return nil, ErrNoToolCall
}

// Embed produces a vector for the given text, truncated to
// EmbeddingDimension via Matryoshka representation.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(EmbeddingDimension)
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := g.client.Models.EmbedContent(ctx, g.embedderModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp.Embeddings[0].Values, nil
}

func (g *Gemini) generateConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

// geminiContents converts neutral messages to Gemini contents. The
// assistant role maps to "model".
func geminiContents(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, genai.Role(role)))
	}
	return contents
}
