package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jllopis/taskbridge/pkg/llm"
	"github.com/jllopis/taskbridge/pkg/task"
	"github.com/jllopis/taskbridge/pkg/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) chunks(t *testing.T) []Chunk {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chunk, 0, len(s.events))
	for _, ev := range s.events {
		require.Equal(t, EventChunk, ev.Name)
		c, ok := ev.Data.(Chunk)
		require.True(t, ok)
		out = append(out, c)
	}
	return out
}

func texts(chunks []Chunk) []string {
	var out []string
	for _, c := range chunks {
		if c.Chunk != nil {
			out = append(out, c.Chunk.Content.(string))
		}
	}
	return out
}

func TestStreamPlainAnswer(t *testing.T) {
	f := newFixture(t, "hello")
	provider := &llm.StreamingMockProvider{Streams: [][]string{{"Hel", "lo"}}}
	o := New(f.tasks, f.messages, provider)
	sink := &recordingSink{}

	res, err := o.Stream(context.Background(), f.task.ID, sink)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Status)

	chunks := sink.chunks(t)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"Hel", "lo"}, texts(chunks))
	for _, c := range chunks {
		assert.Equal(t, f.task.ID, c.TaskID)
		assert.Equal(t, res.MessageID, c.MessageID)
	}
	last := chunks[2]
	assert.True(t, last.Done)
	assert.Equal(t, task.StatusCompleted, last.Status)
	require.NotNil(t, last.Message)
	assert.Equal(t, "Hello", last.Message.Text())
	assert.Equal(t, task.StatusCompleted, f.status(t))
	assert.Len(t, f.history(t), 2)
}

func TestStreamWithToolCallsMakesSecondModelCall(t *testing.T) {
	f := newFixture(t, "two plus two")
	tools := newFakeTools("calculate")
	tools.results["calculate"] = tool.Result{Name: "calculate", Value: 4.0}
	provider := &llm.StreamingMockProvider{Streams: [][]string{
		{`{"name": "calculate", `, `"parameters": {"expression": "2 + 2"}}`},
		{"The answer ", "is 4."},
	}}
	o := New(f.tasks, f.messages, provider, WithTools(tools))
	sink := &recordingSink{}

	res, err := o.Stream(context.Background(), f.task.ID, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`{"name": "calculate", `,
		`"parameters": {"expression": "2 + 2"}}`,
		ChunkExecutingTools,
		"\nTool 'calculate' result: 4",
		ChunkGenerating,
		"The answer ",
		"is 4.",
	}, texts(sink.chunks(t)))
	assert.Equal(t, `{"name": "calculate", "parameters": {"expression": "2 + 2"}}`+"\n\nThe answer is 4.", res.Message.Text())

	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	followUp := reqs[1].Messages
	assert.Equal(t, llm.RoleAssistant, followUp[len(followUp)-2].Role)
	assert.Equal(t, llm.RoleSystem, followUp[len(followUp)-1].Role)
	assert.Equal(t, `Tool results: [{"name":"calculate","result":4}]`, followUp[len(followUp)-1].Content)
}

func TestStreamFirstCallFailure(t *testing.T) {
	f := newFixture(t, "hello")
	provider := &llm.StreamingMockProvider{StreamErr: errors.New("connection refused")}
	o := New(f.tasks, f.messages, provider)
	sink := &recordingSink{}

	res, err := o.Stream(context.Background(), f.task.ID, sink)
	require.Error(t, err)
	assert.Equal(t, task.StatusFailed, res.Status)

	chunks := sink.chunks(t)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Done)
	assert.Equal(t, task.StatusFailed, chunks[0].Status)
	assert.Contains(t, chunks[0].Error, "connection refused")
	assert.Equal(t, task.StatusFailed, f.status(t))
	assert.Len(t, f.history(t), 1)
}

func TestStreamSecondCallFailureIsNarrated(t *testing.T) {
	f := newFixture(t, "weather?")
	tools := newFakeTools("get_weather")
	tools.results["get_weather"] = tool.Result{Name: "get_weather", Value: "Sunny"}
	provider := &llm.StreamingMockProvider{
		Streams:   [][]string{{`{"name": "get_weather", "parameters": {"location": "Oslo"}}`}, nil},
		StreamErr: errors.New("quota exceeded"),
	}
	o := New(f.tasks, f.messages, provider, WithTools(tools))
	sink := &recordingSink{}

	res, err := o.Stream(context.Background(), f.task.ID, sink)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Status)

	got := texts(sink.chunks(t))
	require.NotEmpty(t, got)
	assert.Contains(t, got[len(got)-1], "\n\nError generating final response: ")
	assert.Contains(t, got[len(got)-1], "quota exceeded")
}

func TestStreamSinkErrorsDoNotHalt(t *testing.T) {
	f := newFixture(t, "hello")
	provider := &llm.StreamingMockProvider{Streams: [][]string{{"a", "b"}}}
	o := New(f.tasks, f.messages, provider)
	sink := &recordingSink{err: errors.New("client gone")}

	res, err := o.Stream(context.Background(), f.task.ID, sink)
	require.NoError(t, err)
	assert.Equal(t, "ab", res.Message.Text())
	assert.Len(t, sink.chunks(t), 3)
}

func TestStreamBlockingProviderFallsBackToSingleChunk(t *testing.T) {
	f := newFixture(t, "hello")
	o := New(f.tasks, f.messages, &llm.MockProvider{Response: "whole"})
	sink := &recordingSink{}

	_, err := o.Stream(context.Background(), f.task.ID, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"whole"}, texts(sink.chunks(t)))
}

func TestStreamUnknownTask(t *testing.T) {
	f := newFixture(t, "")
	o := New(f.tasks, f.messages, &llm.MockProvider{})
	sink := &recordingSink{}

	_, err := o.Stream(context.Background(), "missing", sink)
	require.Error(t, err)
	chunks := sink.chunks(t)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Task not found: missing", chunks[0].Error)
	assert.True(t, chunks[0].Done)
}
