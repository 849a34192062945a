package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jllopis/taskbridge/pkg/a2a/server"
	"github.com/jllopis/taskbridge/pkg/agent"
	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/llm"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/orchestrator"
	"github.com/jllopis/taskbridge/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgentServer(t *testing.T, provider llm.Provider, opts ...server.Option) *httptest.Server {
	t.Helper()
	a, err := agent.New("agent-1",
		agent.WithProvider(provider),
		agent.WithIdentity("helper", "answers questions"),
		agent.WithOrchestratorOptions(orchestrator.WithRetry(1, 0)),
	)
	require.NoError(t, err)
	srv := httptest.NewServer(server.New(a, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	srv := newAgentServer(t, &llm.MockProvider{Response: "Done."})
	c := New(srv.URL)

	card, err := c.Card(ctx)
	require.NoError(t, err)
	assert.Equal(t, "helper", card.Name)

	id, err := c.CreateTask(ctx, map[string]any{"topic": "x"})
	require.NoError(t, err)

	got, err := c.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSubmitted, got.Status)

	res, err := c.SendMessage(ctx, id, message.NewText(message.RoleUser, "do it"))
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Status)
	require.NotNil(t, res.Message)
	assert.Equal(t, "Done.", res.Message.Text())

	done, err := c.ListTasks(ctx, task.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, id, done[0].ID)
}

func TestClientNotFound(t *testing.T) {
	srv := newAgentServer(t, &llm.MockProvider{})
	c := New(srv.URL, WithRetries(2))

	_, err := c.GetTask(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "Task not found: missing")
}

func TestClientStream(t *testing.T) {
	ctx := context.Background()
	srv := newAgentServer(t, &llm.StreamingMockProvider{Streams: [][]string{{"a", "b", "c"}}})
	c := New(srv.URL)

	id, err := c.CreateTask(ctx, nil)
	require.NoError(t, err)

	var (
		names []string
		text  string
		final orchestrator.Chunk
	)
	err = c.StreamMessage(ctx, id, message.NewText(message.RoleUser, "go"), func(ev Event) error {
		names = append(names, ev.Name)
		if ev.Name != orchestrator.EventChunk {
			return nil
		}
		chunk, err := ev.Chunk()
		if err != nil {
			return err
		}
		if chunk.Done {
			final = chunk
			return nil
		}
		text += chunk.Chunk.Content.(string)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"message_added", "status_changed", "chunk", "chunk", "chunk", "chunk", "completed"}, names)
	assert.Equal(t, "abc", text)
	assert.Equal(t, task.StatusCompleted, final.Status)
	require.NotNil(t, final.Message)
	assert.Equal(t, "abc", final.Message.Text())
}

func TestClientCall(t *testing.T) {
	ctx := context.Background()
	srv := newAgentServer(t, &llm.MockProvider{Response: "ok"})
	c := New(srv.URL)

	var created struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, c.Call(ctx, "create_task", map[string]any{"skill": "chat"}, &created))
	require.NotEmpty(t, created.TaskID)

	var res orchestrator.TurnResult
	require.NoError(t, c.Call(ctx, "add_message", map[string]any{
		"task_id": created.TaskID,
		"message": message.NewText(message.RoleUser, "hi"),
	}, nil))
	require.NoError(t, c.Call(ctx, "process_task", map[string]any{"task_id": created.TaskID}, &res))
	assert.Equal(t, task.StatusCompleted, res.Status)

	err := c.Call(ctx, "nope", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown method: nope")
}

func TestClientBearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"task_id":"t1"}`))
	}))
	defer srv.Close()

	id, err := New(srv.URL, WithBearerToken("t0ken")).CreateTask(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
	assert.Equal(t, "Bearer t0ken", got)
}

func TestClientRetriesReads(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			http.Error(w, `{"error":"busy"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"t1","status":"working"}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, WithRetries(2)).GetTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusWorking, got.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).GetTask(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeTimeout))
}
