package agent

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jllopis/taskbridge/pkg/bridge"
	tberrors "github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/llm"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/orchestrator"
	"github.com/jllopis/taskbridge/pkg/task"
	"github.com/jllopis/taskbridge/pkg/tool"
	"github.com/jllopis/taskbridge/pkg/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []webhook.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n webhook.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) statuses() []task.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]task.Status, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Status
	}
	return out
}

func newTestAgent(t *testing.T, provider llm.Provider, opts ...Option) (*Agent, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	base := []Option{
		WithProvider(provider),
		WithIdentity("helper", "a helpful assistant"),
		WithNotifier(n),
		WithOrchestratorOptions(orchestrator.WithRetry(2, 0)),
	}
	a, err := New("agent-1", append(base, opts...)...)
	require.NoError(t, err)
	return a, n
}

func TestNewValidates(t *testing.T) {
	_, err := New("agent-1")
	assert.ErrorIs(t, err, ErrMissingProvider)

	_, err = New("", WithProvider(&llm.MockProvider{}))
	assert.Error(t, err)
}

func TestProcessTaskNotifiesEachStatus(t *testing.T) {
	ctx := context.Background()
	a, n := newTestAgent(t, &llm.MockProvider{Response: "hello there"})

	tk, err := a.CreateTask(ctx, map[string]any{"topic": "greeting"})
	require.NoError(t, err)
	assert.Equal(t, task.StatusSubmitted, tk.Status)

	msg, err := a.AddMessage(ctx, tk.ID, message.NewText("", "hi"))
	require.NoError(t, err)
	assert.Equal(t, message.RoleUser, msg.Role)
	assert.NotEmpty(t, msg.ID)

	got, err := a.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusWorking, got.Status)

	res, err := a.ProcessTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Status)
	require.NotNil(t, res.Message)
	assert.Equal(t, "hello there", res.Message.Text())

	assert.Equal(t, []task.Status{task.StatusSubmitted, task.StatusWorking, task.StatusCompleted}, n.statuses())
	assert.Contains(t, n.sent[0].Data, "params")
	assert.Equal(t, msg.ID, n.sent[1].Data["message_id"])
	assert.Contains(t, n.sent[2].Data, "result")

	history, err := a.Messages(ctx, tk.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestProcessTaskFailureStillReturnsResult(t *testing.T) {
	ctx := context.Background()
	a, n := newTestAgent(t, &llm.FailingMockProvider{})

	tk, err := a.CreateTask(ctx, nil)
	require.NoError(t, err)
	_, err = a.AddMessage(ctx, tk.ID, message.NewText(message.RoleUser, "hi"))
	require.NoError(t, err)

	res, err := a.ProcessTask(ctx, tk.ID)
	require.Error(t, err)
	assert.True(t, tberrors.HasCode(err, tberrors.CodeExhaustedRetries))
	assert.Equal(t, task.StatusFailed, res.Status)
	assert.Equal(t, task.StatusFailed, n.statuses()[len(n.statuses())-1])
}

func TestAddMessageUnknownTask(t *testing.T) {
	a, _ := newTestAgent(t, &llm.MockProvider{})
	_, err := a.AddMessage(context.Background(), "missing", message.NewText(message.RoleUser, "hi"))
	assert.True(t, tberrors.IsNotFound(err))
}

func TestAddMessageRequiresParts(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAgent(t, &llm.MockProvider{})
	tk, err := a.CreateTask(ctx, nil)
	require.NoError(t, err)
	_, err = a.AddMessage(ctx, tk.ID, message.Message{Role: message.RoleUser})
	assert.True(t, tberrors.HasCode(err, tberrors.CodeInvalidInput))
}

func TestConnectToolsDispatchesSkillTasks(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	reg.Register("get_weather", "Weather lookup", func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"location": args["location"], "temperature": 22}, nil
	}, tool.Parameter{Name: "location", Required: true})
	srv := httptest.NewServer(tool.NewServer(reg, tool.ServerInfo{Name: "tools"}).Handler())
	defer srv.Close()

	client := tool.NewClient(tool.NewHTTPTransport(srv.URL))
	provider := &llm.MockProvider{Response: "unused"}
	a, n := newTestAgent(t, provider,
		WithTools(client),
		WithBridge(bridge.New(client, nil)),
	)

	skills, err := a.ConnectTools(ctx)
	require.NoError(t, err)
	require.Len(t, skills, 1)

	card := a.Card()
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "get_weather", card.Skills[0].Name)
	assert.Equal(t, bridge.ProtocolTool, card.Skills[0].Protocol)

	tk, err := a.CreateTask(ctx, map[string]any{
		task.ParamSkill:      "get_weather",
		task.ParamParameters: map[string]any{"location": "Paris"},
	})
	require.NoError(t, err)

	res, err := a.ProcessTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Status)
	result, ok := res.Artifacts["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Paris", result["location"])
	assert.Empty(t, provider.Requests())
	assert.Equal(t, task.StatusCompleted, n.statuses()[len(n.statuses())-1])
}

func TestConnectToolsRequiresBridge(t *testing.T) {
	a, _ := newTestAgent(t, &llm.MockProvider{})
	_, err := a.ConnectTools(context.Background())
	assert.True(t, tberrors.HasCode(err, tberrors.CodeInvalidInput))
}

func TestExposedSkillRunsThroughAgent(t *testing.T) {
	reg := tool.NewRegistry()
	provider := &llm.MockProvider{Response: "summary: all good"}
	a, _ := newTestAgent(t, provider,
		WithSkills([]bridge.Skill{{Name: "summarize", Description: "Summarize text"}}),
		WithBridge(bridge.New(nil, reg)),
	)

	defs, err := a.ExposeSkills()
	require.NoError(t, err)
	require.Len(t, defs, 1)

	res := reg.Execute(context.Background(), "summarize", map[string]any{"text": "long report"})
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "summary: all good", res.Value)

	reqs := provider.Requests()
	require.Len(t, reqs, 1)
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	assert.Contains(t, last.Content, "summarize")
	assert.Contains(t, last.Content, "long report")

	tasks, err := a.ListTasks(context.Background(), task.Filter{Status: task.StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestProcessTaskStreamNotifiesCompletion(t *testing.T) {
	ctx := context.Background()
	provider := &llm.StreamingMockProvider{Streams: [][]string{{"Hel", "lo"}}}
	a, n := newTestAgent(t, provider)

	tk, err := a.CreateTask(ctx, nil)
	require.NoError(t, err)
	_, err = a.AddMessage(ctx, tk.ID, message.NewText(message.RoleUser, "hi"))
	require.NoError(t, err)

	var events []orchestrator.Event
	res, err := a.ProcessTaskStream(ctx, tk.ID, orchestrator.SinkFunc(func(_ context.Context, ev orchestrator.Event) error {
		events = append(events, ev)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Status)
	assert.Equal(t, "Hello", res.Message.Text())
	require.NotEmpty(t, events)

	last := n.sent[len(n.sent)-1]
	assert.Equal(t, task.StatusCompleted, last.Status)
	assert.Equal(t, true, last.Data["completed"])
}

func TestParseSkills(t *testing.T) {
	skills, err := ParseSkills([]byte(`
skills:
  - name: weather
    description: Answers weather questions
    parameters:
      - name: location
        required: true
  - name: leave
    description: HR leave questions
    protocol: mcp
`))
	require.NoError(t, err)
	require.Len(t, skills, 2)
	assert.Equal(t, "weather", skills[0].Name)
	require.Len(t, skills[0].Parameters, 1)
	assert.Equal(t, "string", skills[0].Parameters[0].Type)
	assert.True(t, skills[0].Parameters[0].Required)
	assert.Equal(t, "mcp", skills[1].Protocol)

	_, err = ParseSkills([]byte("skills:\n  - description: nameless\n"))
	assert.Error(t, err)
}
