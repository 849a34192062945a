// Package agent ties the task store, message log, orchestrator, tool bridge
// and webhook notifier into the agent served over HTTP.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jllopis/taskbridge/pkg/a2a/agentcard"
	"github.com/jllopis/taskbridge/pkg/bridge"
	"github.com/jllopis/taskbridge/pkg/delegate"
	tberrors "github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/llm"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/orchestrator"
	"github.com/jllopis/taskbridge/pkg/task"
	"github.com/jllopis/taskbridge/pkg/tool"
	"github.com/jllopis/taskbridge/pkg/webhook"
)

// RemoteTools is the tool client an agent consumes. *tool.Client satisfies it.
type RemoteTools interface {
	Tools() []tool.Definition
	Tool(name string) (tool.Definition, bool)
	Refresh(ctx context.Context) ([]tool.Definition, error)
	Invoke(ctx context.Context, name string, args map[string]any) (tool.Result, error)
}

// Agent answers tasks with an LLM, optionally backed by remote tools.
type Agent struct {
	id          string
	name        string
	description string
	endpoint    string
	version     string

	mu     sync.RWMutex
	skills []bridge.Skill

	tasks    task.Store
	messages message.Log
	provider llm.Provider
	tools    RemoteTools
	bridge   *bridge.Bridge
	delegate *delegate.Delegate
	notifier webhook.Notifier
	extra    []orchestrator.Option
	logger   *slog.Logger

	orch *orchestrator.Orchestrator
}

var ErrMissingProvider = errors.New("agent model provider is required")

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates an agent with a required id and options. Stores default to the
// in-memory implementations.
func New(id string, opts ...Option) (*Agent, error) {
	a := &Agent{
		id:       id,
		name:     id,
		notifier: webhook.Nop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.id == "" {
		return nil, errors.New("agent id is required")
	}
	if a.provider == nil {
		return nil, ErrMissingProvider
	}
	if a.tasks == nil {
		a.tasks = task.NewMemoryStore()
	}
	if a.messages == nil {
		a.messages = message.NewMemoryLog()
	}

	oopts := []orchestrator.Option{
		orchestrator.WithIdentity(a.name, a.description),
		orchestrator.WithStatusHook(a.statusChanged),
		orchestrator.WithLogger(a.logger),
	}
	if a.tools != nil {
		oopts = append(oopts, orchestrator.WithTools(a.tools))
	}
	if a.bridge != nil {
		oopts = append(oopts, orchestrator.WithDispatcher(a.bridge))
	}
	if a.delegate != nil {
		oopts = append(oopts, orchestrator.WithDelegator(a.delegate))
	}
	oopts = append(oopts, a.extra...)
	a.orch = orchestrator.New(a.tasks, a.messages, a.provider, oopts...)
	return a, nil
}

// WithIdentity sets the name and description used in the card and prompt.
func WithIdentity(name, description string) Option {
	return func(a *Agent) error {
		if name != "" {
			a.name = name
		}
		a.description = description
		return nil
	}
}

// WithEndpoint sets the advertised base URL.
func WithEndpoint(endpoint string) Option {
	return func(a *Agent) error {
		a.endpoint = endpoint
		return nil
	}
}

// WithVersion sets the card version.
func WithVersion(version string) Option {
	return func(a *Agent) error {
		a.version = version
		return nil
	}
}

// WithSkills assigns the skills the agent advertises.
func WithSkills(skills []bridge.Skill) Option {
	return func(a *Agent) error {
		a.skills = append([]bridge.Skill(nil), skills...)
		return nil
	}
}

// WithProvider sets the model provider.
func WithProvider(p llm.Provider) Option {
	return func(a *Agent) error {
		a.provider = p
		return nil
	}
}

// WithStores replaces the task store and message log.
func WithStores(tasks task.Store, messages message.Log) Option {
	return func(a *Agent) error {
		if tasks == nil || messages == nil {
			return errors.New("task store and message log are required")
		}
		a.tasks = tasks
		a.messages = messages
		return nil
	}
}

// WithTools attaches the remote tool client.
func WithTools(tools RemoteTools) Option {
	return func(a *Agent) error {
		a.tools = tools
		return nil
	}
}

// WithBridge attaches the tool/skill bridge.
func WithBridge(b *bridge.Bridge) Option {
	return func(a *Agent) error {
		a.bridge = b
		return nil
	}
}

// WithDelegate forwards matching requests to a peer agent and advertises
// its proxied skills.
func WithDelegate(d *delegate.Delegate) Option {
	return func(a *Agent) error {
		a.delegate = d
		return nil
	}
}

// WithNotifier sets the webhook notifier.
func WithNotifier(n webhook.Notifier) Option {
	return func(a *Agent) error {
		if n != nil {
			a.notifier = n
		}
		return nil
	}
}

// WithOrchestratorOptions passes extra options to the orchestrator.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(a *Agent) error {
		a.extra = append(a.extra, opts...)
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Skills returns the configured skills plus bridged and proxied skills not
// already present, sorted by name.
func (a *Agent) Skills() []bridge.Skill {
	a.mu.RLock()
	out := append([]bridge.Skill(nil), a.skills...)
	a.mu.RUnlock()

	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[s.Name] = true
	}
	var extra []bridge.Skill
	if a.bridge != nil {
		extra = append(extra, a.bridge.Skills()...)
	}
	if a.delegate != nil {
		extra = append(extra, a.delegate.Skills()...)
	}
	for _, s := range extra {
		if !seen[s.Name] {
			out = append(out, s)
			seen[s.Name] = true
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Card returns the current agent card.
func (a *Agent) Card() *agentcard.Card {
	return agentcard.Build(agentcard.Config{
		Name:        a.name,
		Description: a.description,
		Endpoint:    a.endpoint,
		Version:     a.version,
		Skills:      a.Skills(),
	})
}

// CreateTask stores a new submitted task.
func (a *Agent) CreateTask(ctx context.Context, params map[string]any) (*task.Task, error) {
	t, err := a.tasks.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "task.created", slog.String("task_id", t.ID), slog.String("skill", t.Skill()))
	a.notifier.Notify(ctx, webhook.NewNotification(t, t.Status, map[string]any{"params": params}))
	return t, nil
}

// GetTask returns the task or a NotFound error.
func (a *Agent) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return a.tasks.Get(ctx, id)
}

// ListTasks returns tasks matching filter.
func (a *Agent) ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	return a.tasks.List(ctx, filter)
}

// Messages returns the message history of a task.
func (a *Agent) Messages(ctx context.Context, taskID string) ([]message.Message, error) {
	if _, err := a.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return a.messages.Get(ctx, taskID)
}

// AddMessage appends msg to the task and marks it working. Messages without
// a role are treated as user messages.
func (a *Agent) AddMessage(ctx context.Context, taskID string, msg message.Message) (message.Message, error) {
	t, err := a.tasks.Get(ctx, taskID)
	if err != nil {
		return message.Message{}, err
	}
	if msg.Role == "" {
		msg.Role = message.RoleUser
	}
	if len(msg.Parts) == 0 {
		return message.Message{}, tberrors.InvalidInput("message has no parts")
	}
	stored, err := a.messages.Append(ctx, taskID, msg)
	if err != nil {
		return message.Message{}, err
	}
	a.tasks.UpdateStatus(ctx, taskID, task.StatusWorking)
	a.notifier.Notify(ctx, webhook.NewNotification(t, task.StatusWorking, map[string]any{"message_id": stored.ID}))
	return stored, nil
}

// ProcessTask runs one synchronous turn. A failed turn still returns its
// result together with the error.
func (a *Agent) ProcessTask(ctx context.Context, taskID string) (orchestrator.TurnResult, error) {
	res, err := a.orch.Turn(ctx, taskID)
	if res.Status != "" {
		a.notifyFinal(ctx, taskID, res.Status, map[string]any{"result": res})
	}
	return res, err
}

// ProcessTaskStream runs one streaming turn, sending events to sink.
func (a *Agent) ProcessTaskStream(ctx context.Context, taskID string, sink orchestrator.Sink) (orchestrator.TurnResult, error) {
	res, err := a.orch.Stream(ctx, taskID, sink)
	if res.Status != "" {
		a.notifyFinal(ctx, taskID, res.Status, map[string]any{"completed": true})
	}
	return res, err
}

// ExecuteSkill runs skill as a fresh task whose user message carries args,
// returning the agent's answer. It lets exposed skills be called as tools.
func (a *Agent) ExecuteSkill(ctx context.Context, skill string, args map[string]any) (any, error) {
	t, err := a.CreateTask(ctx, map[string]any{
		task.ParamSkill:      skill,
		task.ParamParameters: args,
	})
	if err != nil {
		return nil, err
	}
	if _, err := a.AddMessage(ctx, t.ID, message.NewText(message.RoleUser, skillPrompt(skill, args))); err != nil {
		return nil, err
	}
	res, err := a.ProcessTask(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if res.Status == task.StatusFailed {
		return nil, tberrors.New(tberrors.CodeRemoteFailure, res.Error, nil).WithContext("skill", skill)
	}
	if res.Message != nil {
		return res.Message.Text(), nil
	}
	return res.Artifacts["result"], nil
}

// ConnectTools discovers the remote tools and registers each as a skill.
func (a *Agent) ConnectTools(ctx context.Context) ([]bridge.Skill, error) {
	if a.bridge == nil {
		return nil, tberrors.InvalidInput("agent %s has no tool bridge", a.id)
	}
	if a.tools != nil {
		if _, err := a.tools.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	skills, err := a.bridge.RegisterRemoteTools(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "tools.connected", slog.Int("skills", len(skills)))
	return skills, nil
}

// ExposeSkills registers the configured skills as local tools served by the
// bridge's registry.
func (a *Agent) ExposeSkills() ([]tool.Definition, error) {
	if a.bridge == nil {
		return nil, tberrors.InvalidInput("agent %s has no tool bridge", a.id)
	}
	a.mu.RLock()
	skills := append([]bridge.Skill(nil), a.skills...)
	a.mu.RUnlock()
	return a.bridge.ExposeSkillsAsTools(skills, a)
}

func (a *Agent) notifyFinal(ctx context.Context, taskID string, status task.Status, data map[string]any) {
	t, err := a.tasks.Get(ctx, taskID)
	if err != nil {
		return
	}
	a.notifier.Notify(ctx, webhook.NewNotification(t, status, data))
}

func (a *Agent) statusChanged(ctx context.Context, t *task.Task) {
	a.logger.DebugContext(ctx, "task.status.changed",
		slog.String("task_id", t.ID),
		slog.String("status", string(t.Status)),
	)
}

func skillPrompt(skill string, args map[string]any) string {
	if len(args) == 0 {
		return fmt.Sprintf("Use the %s skill.", skill)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("Use the %s skill with parameters: %v", skill, args)
	}
	return fmt.Sprintf("Use the %s skill with parameters: %s", skill, raw)
}
