// Package translate converts interview text between English and Twi
// through the configured model, with guardrails on input size and
// output quality.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boganlabs/bogan/internal/llm"
	"github.com/boganlabs/bogan/internal/log"
)

// Supported language codes.
const (
	English = "en"
	Twi     = "ak"
)

// Guardrails.
const (
	// MaxInputLength is the longest text the gateway will translate.
	MaxInputLength = 2000

	// MaxOutputRatio bounds output length relative to input. A
	// translation more than this many times longer than its input is
	// rejected as a runaway generation.
	MaxOutputRatio = 3
)

var (
	// ErrUnsupportedLanguage indicates a language code outside en/ak.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrInputTooLong indicates the text exceeds MaxInputLength.
	ErrInputTooLong = errors.New("input too long")

	// ErrEmptyTranslation indicates the model produced no output.
	ErrEmptyTranslation = errors.New("empty translation")

	// ErrOutputTooLong indicates the output exceeded MaxOutputRatio.
	ErrOutputTooLong = errors.New("translation output too long")
)

var languageNames = map[string]string{
	English: "English",
	Twi:     "Twi",
}

// Generator is the model call the gateway needs.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Gateway translates text between supported languages.
type Gateway struct {
	generator Generator
	model     string
	logger    log.Logger
}

// NewGateway creates a Gateway using the given model.
func NewGateway(generator Generator, model string, logger log.Logger) *Gateway {
	return &Gateway{generator: generator, model: model, logger: logger}
}

// Translate converts text from one language to the other. Blank input
// and same-language requests pass through unchanged without a model
// call. A failed model call is retried once; guardrail violations are
// not retried.
func (g *Gateway) Translate(ctx context.Context, text, from, to string) (string, error) {
	if _, ok := languageNames[from]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, from)
	}
	if _, ok := languageNames[to]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, to)
	}
	if from == to || strings.TrimSpace(text) == "" {
		return text, nil
	}
	if len(text) > MaxInputLength {
		return "", fmt.Errorf("%w: %d characters exceeds limit of %d", ErrInputTooLong, len(text), MaxInputLength)
	}

	req := llm.Request{
		Model:  g.model,
		System: g.systemPrompt(from, to),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Text: text},
		},
	}

	out, err := g.generator.Generate(ctx, req)
	if err != nil {
		g.logger.Warn("translation call failed, retrying once", "error", err)
		out, err = g.generator.Generate(ctx, req)
		if err != nil {
			return "", fmt.Errorf("translating text: %w", err)
		}
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyTranslation
	}
	if len(out) > len(text)*MaxOutputRatio {
		return "", fmt.Errorf("%w: %d characters from %d input", ErrOutputTooLong, len(out), len(text))
	}

	// Identical output usually means the model ignored the instruction.
	// Still usable, so log rather than fail.
	if out == text {
		g.logger.Warn("translation identical to input",
			"from", from, "to", to, "length", len(text))
	}

	return out, nil
}

func (g *Gateway) systemPrompt(from, to string) string {
	return fmt.Sprintf(
		"You are a medical translator. Translate the user's message from %s to %s. "+
			"Preserve the meaning, tone, and any medical terminology precisely. "+
			"Respond with ONLY the translated text, no explanations or notes.",
		languageNames[from], languageNames[to])
}

// Supported reports whether code is a supported language.
func Supported(code string) bool {
	_, ok := languageNames[code]
	return ok
}
