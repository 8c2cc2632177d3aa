package interview

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/boganlabs/bogan/internal/llm"
	"github.com/boganlabs/bogan/internal/log"
	"github.com/boganlabs/bogan/internal/testutil"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Rate Limit exceeded"), true},
		{errors.New("quota exceeded for project"), true},
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("request timeout"), true},
		{errors.New("invalid API key"), false},
		{errors.New("model not found"), false},
	}
	for _, tt := range tests {
		if got := retryableError(tt.err); got != tt.want {
			t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRetryGenerator_RetriesTransientErrors(t *testing.T) {
	gen := testutil.NewMockGenerator(
		testutil.Script{Err: errors.New("503 Service Unavailable")},
		testutil.Script{Err: errors.New("connection reset by peer")},
		testutil.Script{Text: "recovered"},
	)
	r := NewRetryGenerator(gen, fastRetryConfig(), nil, log.NewNop())

	out, err := r.Generate(context.Background(), llm.Request{Model: "m"})
	if err != nil {
		t.Fatalf("Generate = %v", err)
	}
	if out != "recovered" {
		t.Errorf("out = %q", out)
	}
	if calls := len(gen.Calls()); calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
}

func TestRetryGenerator_PermanentErrorFailsFast(t *testing.T) {
	gen := testutil.NewMockGenerator(
		testutil.Script{Err: errors.New("invalid API key")},
	)
	r := NewRetryGenerator(gen, fastRetryConfig(), nil, log.NewNop())

	if _, err := r.Generate(context.Background(), llm.Request{Model: "m"}); err == nil {
		t.Fatal("Generate should fail")
	}
	if calls := len(gen.Calls()); calls != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on permanent error)", calls)
	}
}

func TestRetryGenerator_ExhaustsRetries(t *testing.T) {
	gen := testutil.NewMockGenerator(
		testutil.Script{Err: errors.New("429")},
		testutil.Script{Err: errors.New("429")},
		testutil.Script{Err: errors.New("429")},
	)
	r := NewRetryGenerator(gen, fastRetryConfig(), nil, log.NewNop())

	_, err := r.Generate(context.Background(), llm.Request{Model: "m"})
	if err == nil {
		t.Fatal("Generate should fail after exhausting retries")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the last provider error: %v", err)
	}
	if calls := len(gen.Calls()); calls != 3 {
		t.Errorf("attempts = %d, want MaxRetries+1 = 3", calls)
	}
}

func TestRetryGenerator_ContextCanceledDuringBackoff(t *testing.T) {
	gen := testutil.NewMockGenerator(
		testutil.Script{Err: errors.New("503")},
	)
	cfg := RetryConfig{MaxRetries: 3, InitialInterval: time.Hour, MaxInterval: time.Hour}
	r := NewRetryGenerator(gen, cfg, nil, log.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Generate(ctx, llm.Request{Model: "m"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Generate = %v, want deadline exceeded from backoff wait", err)
	}
}
