package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a testing implementation of Provider.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	requests []ChatRequest
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// Requests returns the requests received so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}

// StreamingMockProvider streams one scripted chunk list per ChatStream call.
// A nil entry in Streams makes that call fail with StreamErr.
type StreamingMockProvider struct {
	MockProvider
	Streams   [][]string
	StreamErr error

	calls int
}

// ChatStream implements StreamingProvider.
func (s *StreamingMockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	idx := s.calls
	s.calls++
	s.mu.Unlock()

	if idx >= len(s.Streams) || s.Streams[idx] == nil {
		if s.StreamErr != nil {
			return nil, s.StreamErr
		}
		return nil, fmt.Errorf("mock stream %d not scripted", idx)
	}

	parts := s.Streams[idx]
	chunks := make(chan StreamChunk, len(parts)+1)
	for _, p := range parts {
		chunks <- StreamChunk{Content: p}
	}
	chunks <- StreamChunk{Done: true}
	close(chunks)
	return chunks, nil
}

var _ StreamingProvider = (*StreamingMockProvider)(nil)
