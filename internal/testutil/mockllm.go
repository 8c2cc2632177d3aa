package testutil

import (
	"context"
	"iter"
	"sync"

	"github.com/boganlabs/bogan/internal/llm"
)

// MockGenerator provides deterministic model responses for testing.
// Scripts are consumed in order: each call to Stream, Generate, or
// ForcedTool pops the next script. Thread-safe for concurrent use.
type MockGenerator struct {
	mu      sync.Mutex
	scripts []Script
	calls   []llm.Request
}

// Script describes one scripted model response. For Stream, Events are
// yielded in order and Err (if set) terminates the stream after them.
// For Generate, Text is returned. For ForcedTool, Call is returned.
type Script struct {
	Events []llm.StreamEvent
	Text   string
	Call   *llm.ToolCall
	Err    error
}

// NewMockGenerator creates a mock with the given scripts.
func NewMockGenerator(scripts ...Script) *MockGenerator {
	return &MockGenerator{scripts: scripts}
}

// Enqueue appends a script.
func (m *MockGenerator) Enqueue(s Script) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, s)
}

// Calls returns a copy of all recorded requests.
func (m *MockGenerator) Calls() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]llm.Request, len(m.calls))
	copy(cp, m.calls)
	return cp
}

func (m *MockGenerator) next(req llm.Request) Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if len(m.scripts) == 0 {
		return Script{}
	}
	s := m.scripts[0]
	m.scripts = m.scripts[1:]
	return s
}

// Stream implements llm.TextGenerator.
func (m *MockGenerator) Stream(ctx context.Context, req llm.Request) iter.Seq2[llm.StreamEvent, error] {
	s := m.next(req)
	return func(yield func(llm.StreamEvent, error) bool) {
		for _, ev := range s.Events {
			if ctx.Err() != nil {
				yield(llm.StreamEvent{}, ctx.Err())
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
		if s.Err != nil {
			yield(llm.StreamEvent{}, s.Err)
		}
	}
}

// Generate implements llm.TextGenerator.
func (m *MockGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	s := m.next(req)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}

// ForcedTool implements llm.TextGenerator.
func (m *MockGenerator) ForcedTool(ctx context.Context, req llm.Request, tool llm.ToolSchema) (*llm.ToolCall, error) {
	s := m.next(req)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Call == nil {
		return nil, llm.ErrNoToolCall
	}
	return s.Call, nil
}
