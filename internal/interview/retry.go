package interview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/boganlabs/bogan/internal/llm"
	"github.com/boganlabs/bogan/internal/log"
)

// RetryConfig configures retry behavior for non-streaming model calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for model API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category.
// Matched case-insensitively against err.Error().
//
// NOTE: This uses string matching because the provider SDKs do not
// expose typed errors for transient failures. Re-evaluate if they add
// structured error types.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, group := range retryablePatterns {
		if containsAny(errStr, group...) {
			return true
		}
	}
	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// RetryGenerator wraps a TextGenerator's non-streaming Generate with
// exponential backoff and rate limiting. It is the Generator handed to
// the assessment synthesizer, where a transient provider failure
// should not cost the patient their completed interview.
type RetryGenerator struct {
	inner   llm.TextGenerator
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  log.Logger
}

// NewRetryGenerator creates a RetryGenerator. limiter may be nil.
func NewRetryGenerator(inner llm.TextGenerator, cfg RetryConfig, limiter *rate.Limiter, logger log.Logger) *RetryGenerator {
	return &RetryGenerator{inner: inner, cfg: cfg, limiter: limiter, logger: logger}
}

// Generate implements the Generator contract with retries.
func (r *RetryGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	return generateWithRetry(ctx, r.inner, req, r.cfg, r.limiter, r.logger)
}

// generateWithRetry executes a non-streaming call with exponential
// backoff. Each attempt is rate limited, including retries.
func generateWithRetry(
	ctx context.Context,
	generator llm.TextGenerator,
	req llm.Request,
	cfg RetryConfig,
	limiter *rate.Limiter,
	logger log.Logger,
) (string, error) {
	var lastErr error
	delay := cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limit wait: %w", err)
			}
		}

		out, err := generator.Generate(ctx, req)
		if err == nil {
			logger.Debug("generation succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return out, nil
		}

		lastErr = err

		if !retryableError(err) {
			return "", fmt.Errorf("generate: %w", err)
		}

		if attempt == cfg.MaxRetries {
			break
		}

		logger.Debug("retrying after error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return "", fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		cfg.MaxRetries, time.Since(start), lastErr)
}
