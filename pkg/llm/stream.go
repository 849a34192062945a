package llm

import "context"

// StreamChunk is one increment of a streamed completion. The last chunk has
// Done set and carries usage when the backend reports it.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
	Error   error  `json:"-"`
}

// StreamingProvider is implemented by providers that can stream deltas.
type StreamingProvider interface {
	Provider
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

// Stream streams from p when it supports streaming and otherwise delivers the
// blocking response as a single content chunk followed by a done chunk.
func Stream(ctx context.Context, p Provider, req ChatRequest) (<-chan StreamChunk, error) {
	if sp, ok := p.(StreamingProvider); ok {
		return sp.ChatStream(ctx, req)
	}
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	chunks := make(chan StreamChunk, 2)
	if resp.Content != "" {
		chunks <- StreamChunk{Content: resp.Content}
	}
	usage := resp.Usage
	chunks <- StreamChunk{Done: true, Usage: &usage}
	close(chunks)
	return chunks, nil
}

// Collect drains a stream into its concatenated content.
func Collect(chunks <-chan StreamChunk) (string, error) {
	var out []byte
	for c := range chunks {
		if c.Error != nil {
			return string(out), c.Error
		}
		out = append(out, c.Content...)
	}
	return string(out), nil
}
