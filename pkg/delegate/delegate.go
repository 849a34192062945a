// Package delegate forwards user requests to another agent over its task API
// and re-advertises that agent's skills as proxied skills.
package delegate

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/jllopis/taskbridge/pkg/a2a/agentcard"
	"github.com/jllopis/taskbridge/pkg/bridge"
	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/orchestrator"
	"github.com/jllopis/taskbridge/pkg/task"
)

const (
	// ProxiedPrefix marks the description of a skill served by the peer.
	ProxiedPrefix = "[Proxied] "
	// ProtocolA2A tags proxied skills in the agent card.
	ProtocolA2A = "a2a"

	emptyReply  = "I was unable to process that request using the available tools."
	failedReply = "I encountered an error while trying to use the tools: "
)

// Peer is the remote agent requests are forwarded to. *client.Client
// satisfies it.
type Peer interface {
	Card(ctx context.Context) (*agentcard.Card, error)
	CreateTask(ctx context.Context, params map[string]any) (string, error)
	SendMessage(ctx context.Context, taskID string, msg message.Message) (*orchestrator.TurnResult, error)
}

// Matcher decides which user requests belong to the peer. Keywords match
// whole words, case-insensitively; Patterns run against the raw text.
type Matcher struct {
	Keywords []string
	Patterns []*regexp.Regexp
}

// DefaultMatcher recognizes weather, arithmetic and leave-management
// requests, employee ids and the demo employees' names.
func DefaultMatcher() Matcher {
	return Matcher{
		Keywords: []string{
			"weather", "temperature", "forecast", "climate",
			"calculate", "math", "addition", "subtraction", "multiplication", "division",
			"plus", "minus", "times", "divided by", "equals", "compute", "sum",
			"leave", "vacation", "holiday", "time off", "absence", "pto", "days off",
			"employee", "staff", "worker", "hr",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bemp\d+\b`),
			regexp.MustCompile(`(?i)\bemployee\s+\d+\b`),
			regexp.MustCompile(`(?i)\b(?:raghu|jake|corbin|steve)\b`),
		},
	}
}

// Match reports whether text should be forwarded.
func (m Matcher) Match(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range m.Keywords {
		if containsWord(lower, strings.ToLower(kw)) {
			return true
		}
	}
	for _, re := range m.Patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func containsWord(s, word string) bool {
	if word == "" {
		return false
	}
	for start := 0; ; {
		i := strings.Index(s[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		if !wordByteAt(s, i-1) && !wordByteAt(s, end) {
			return true
		}
		start = i + 1
	}
}

func wordByteAt(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	r := rune(s[i])
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Delegate forwards matching requests to a peer agent.
type Delegate struct {
	peer    Peer
	matcher Matcher
	logger  *slog.Logger

	mu     sync.RWMutex
	name   string
	skills []bridge.Skill
}

// Option configures a Delegate.
type Option func(*Delegate)

// WithMatcher replaces DefaultMatcher.
func WithMatcher(m Matcher) Option {
	return func(d *Delegate) { d.matcher = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Delegate) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a delegate for peer. Call Discover before advertising skills.
func New(peer Peer, opts ...Option) *Delegate {
	d := &Delegate{peer: peer, matcher: DefaultMatcher(), logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover fetches the peer's card and keeps its skills as proxied skills.
func (d *Delegate) Discover(ctx context.Context) ([]bridge.Skill, error) {
	card, err := d.peer.Card(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeRemoteFailure, "fetch peer agent card", err)
	}
	skills := make([]bridge.Skill, 0, len(card.Skills))
	for _, s := range card.Skills {
		skills = append(skills, bridge.Skill{
			Name:        s.Name,
			Description: ProxiedPrefix + s.Description,
			Parameters:  s.Parameters,
			Protocol:    ProtocolA2A,
		})
	}

	d.mu.Lock()
	d.name = card.Name
	d.skills = skills
	d.mu.Unlock()

	d.logger.InfoContext(ctx, "delegate.discovered",
		slog.String("peer", card.Name),
		slog.Int("skills", len(skills)),
	)
	return append([]bridge.Skill(nil), skills...), nil
}

// Skills returns the proxied skills found by the last Discover.
func (d *Delegate) Skills() []bridge.Skill {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]bridge.Skill(nil), d.skills...)
}

// PeerName returns the name on the peer's card.
func (d *Delegate) PeerName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// Match reports whether text should be forwarded to the peer.
func (d *Delegate) Match(text string) bool {
	return d.matcher.Match(text)
}

// Forward sends text to the peer as a new task and returns its answer.
// Failures are returned as a sentence for the user, never as an error.
func (d *Delegate) Forward(ctx context.Context, text string) string {
	reply, err := d.forward(ctx, text)
	if err != nil {
		d.logger.WarnContext(ctx, "delegate.forward.failed", slog.String("error", err.Error()))
		return failedReply + errorMessage(err)
	}
	if strings.TrimSpace(reply) == "" {
		d.logger.WarnContext(ctx, "delegate.forward.empty")
		return emptyReply
	}
	d.logger.InfoContext(ctx, "delegate.forward.done", slog.Int("bytes", len(reply)))
	return reply
}

func (d *Delegate) forward(ctx context.Context, text string) (string, error) {
	id, err := d.peer.CreateTask(ctx, nil)
	if err != nil {
		return "", err
	}
	res, err := d.peer.SendMessage(ctx, id, message.NewText(message.RoleUser, text))
	if err != nil {
		return "", err
	}
	if res.Message != nil {
		return res.Message.Text(), nil
	}
	if res.Status == task.StatusFailed && res.Error != "" {
		return "", errors.New(errors.CodeRemoteFailure, res.Error, nil).WithContext("peer_task_id", id)
	}
	return "", nil
}

func errorMessage(err error) string {
	if e := errors.As(err); e != nil {
		return e.Message
	}
	return err.Error()
}
