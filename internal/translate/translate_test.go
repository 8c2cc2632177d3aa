package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/boganlabs/bogan/internal/llm"
	"github.com/boganlabs/bogan/internal/log"
)

// scriptedGenerator returns queued outputs and records call count.
type scriptedGenerator struct {
	outputs []string
	errs    []error
	calls   int
}

func (s *scriptedGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(s.outputs) {
		return s.outputs[i], nil
	}
	return "", nil
}

func newGateway(gen Generator) *Gateway {
	return NewGateway(gen, "test-model", log.NewNop())
}

func TestTranslate_SameLanguageNoCall(t *testing.T) {
	gen := &scriptedGenerator{}
	gw := newGateway(gen)

	out, err := gw.Translate(context.Background(), "hello", English, English)
	if err != nil {
		t.Fatalf("Translate() = %v", err)
	}
	if out != "hello" {
		t.Errorf("out = %q, want unchanged input", out)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
}

func TestTranslate_BlankNoCall(t *testing.T) {
	gen := &scriptedGenerator{}
	gw := newGateway(gen)

	out, err := gw.Translate(context.Background(), "   ", Twi, English)
	if err != nil {
		t.Fatalf("Translate() = %v", err)
	}
	if out != "   " {
		t.Errorf("out = %q, want unchanged input", out)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
}

func TestTranslate_UnsupportedLanguage(t *testing.T) {
	gw := newGateway(&scriptedGenerator{})

	if _, err := gw.Translate(context.Background(), "bonjour", "fr", English); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("Translate() = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestTranslate_InputTooLong(t *testing.T) {
	gen := &scriptedGenerator{}
	gw := newGateway(gen)

	long := strings.Repeat("a", MaxInputLength+1)
	if _, err := gw.Translate(context.Background(), long, English, Twi); !errors.Is(err, ErrInputTooLong) {
		t.Errorf("Translate() = %v, want ErrInputTooLong", err)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
}

func TestTranslate_RetriesOnce(t *testing.T) {
	gen := &scriptedGenerator{
		errs:    []error{errors.New("transient"), nil},
		outputs: []string{"", "me ho yɛ"},
	}
	gw := newGateway(gen)

	out, err := gw.Translate(context.Background(), "I am well", English, Twi)
	if err != nil {
		t.Fatalf("Translate() = %v", err)
	}
	if out != "me ho yɛ" {
		t.Errorf("out = %q", out)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2", gen.calls)
	}
}

func TestTranslate_FailsAfterRetry(t *testing.T) {
	boom := errors.New("provider down")
	gen := &scriptedGenerator{errs: []error{boom, boom}}
	gw := newGateway(gen)

	if _, err := gw.Translate(context.Background(), "hello", English, Twi); !errors.Is(err, boom) {
		t.Errorf("Translate() = %v, want wrapped provider error", err)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2", gen.calls)
	}
}

func TestTranslate_EmptyOutput(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"  "}}
	gw := newGateway(gen)

	if _, err := gw.Translate(context.Background(), "hello", English, Twi); !errors.Is(err, ErrEmptyTranslation) {
		t.Errorf("Translate() = %v, want ErrEmptyTranslation", err)
	}
}

func TestTranslate_OutputTooLong(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{strings.Repeat("x", 100)}}
	gw := newGateway(gen)

	if _, err := gw.Translate(context.Background(), "hey", English, Twi); !errors.Is(err, ErrOutputTooLong) {
		t.Errorf("Translate() = %v, want ErrOutputTooLong", err)
	}
}

func TestSupported(t *testing.T) {
	if !Supported(English) || !Supported(Twi) {
		t.Error("en and ak should be supported")
	}
	if Supported("fr") {
		t.Error("fr should not be supported")
	}
}
