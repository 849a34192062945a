package delegate

import (
	"context"
	"errors"
	"testing"

	"github.com/jllopis/taskbridge/pkg/a2a/agentcard"
	"github.com/jllopis/taskbridge/pkg/bridge"
	tberrors "github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/orchestrator"
	"github.com/jllopis/taskbridge/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	card    *agentcard.Card
	cardErr error
	result  *orchestrator.TurnResult
	sendErr error
	sent    []string
}

func (p *fakePeer) Card(context.Context) (*agentcard.Card, error) {
	return p.card, p.cardErr
}

func (p *fakePeer) CreateTask(context.Context, map[string]any) (string, error) {
	return "peer-task", nil
}

func (p *fakePeer) SendMessage(_ context.Context, _ string, msg message.Message) (*orchestrator.TurnResult, error) {
	p.sent = append(p.sent, msg.Text())
	return p.result, p.sendErr
}

func TestDefaultMatcher(t *testing.T) {
	m := DefaultMatcher()
	cases := map[string]bool{
		"What's the weather in Tokyo?":   true,
		"Calculate 15 * 8 + 32":          true,
		"Apply leave for Jake":           true,
		"I need some time off next week": true,
		"show EMP001":                    true,
		"details for employee 42":        true,
		"how is corbin doing":            true,
		"Talk to HR":                     true,
		"hello, how are you?":            false,
		"three summaries of the novel":   false,
		"the summit was cold":            false,
	}
	for text, want := range cases {
		assert.Equal(t, want, m.Match(text), text)
	}
}

func TestDiscoverProxiesPeerSkills(t *testing.T) {
	peer := &fakePeer{card: &agentcard.Card{
		Name: "Tool Provider",
		Skills: []bridge.Skill{
			{Name: "get_weather", Description: "Get current weather", Protocol: "mcp"},
			{Name: "calculate", Description: "Evaluate an expression"},
		},
	}}
	d := New(peer)

	skills, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, skills, 2)
	assert.Equal(t, "[Proxied] Get current weather", skills[0].Description)
	assert.Equal(t, ProtocolA2A, skills[0].Protocol)
	assert.Equal(t, skills, d.Skills())
	assert.Equal(t, "Tool Provider", d.PeerName())
}

func TestDiscoverFailure(t *testing.T) {
	d := New(&fakePeer{cardErr: errors.New("connection refused")})
	_, err := d.Discover(context.Background())
	require.Error(t, err)
	assert.True(t, tberrors.HasCode(err, tberrors.CodeRemoteFailure))
	assert.Empty(t, d.Skills())
}

func TestForward(t *testing.T) {
	answer := message.NewText(message.RoleAgent, "It is sunny in Tokyo.")
	cases := []struct {
		name string
		peer *fakePeer
		want string
	}{
		{
			name: "answer",
			peer: &fakePeer{result: &orchestrator.TurnResult{Status: task.StatusCompleted, Message: &answer}},
			want: "It is sunny in Tokyo.",
		},
		{
			name: "empty",
			peer: &fakePeer{result: &orchestrator.TurnResult{Status: task.StatusCompleted}},
			want: emptyReply,
		},
		{
			name: "failed turn",
			peer: &fakePeer{result: &orchestrator.TurnResult{Status: task.StatusFailed, Error: "model down"}},
			want: failedReply + "model down",
		},
		{
			name: "transport error",
			peer: &fakePeer{sendErr: tberrors.New(tberrors.CodeTimeout, "POST /tasks/peer-task/messages timed out", nil)},
			want: failedReply + "POST /tasks/peer-task/messages timed out",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := New(tc.peer).Forward(context.Background(), "weather in Tokyo")
			assert.Equal(t, tc.want, got)
			assert.Equal(t, []string{"weather in Tokyo"}, tc.peer.sent)
		})
	}
}
