// Package bridge maps agent skills onto tools and back: remote tools become
// skills the agent can dispatch, and agent skills become locally served tools.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/task"
	"github.com/jllopis/taskbridge/pkg/tool"
)

// ProtocolTool tags skills backed by a tool.
const ProtocolTool = "mcp"

// NotToolTask is the Dispatch error for tasks whose skill is not tool-backed.
const NotToolTask = "Not a tool task"

// Skill is a named capability advertised by the agent.
type Skill struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  []tool.Parameter `json:"parameters,omitempty"`
	Protocol    string           `json:"protocol,omitempty"`
}

// Origin records which side of the bridge created a mapping.
type Origin string

const (
	// OriginRemote marks a remote tool registered as a skill.
	OriginRemote Origin = "remote"
	// OriginLocal marks a skill exposed as a local tool.
	OriginLocal Origin = "local"
)

// RemotePeer is the tool consumer side. *tool.Client satisfies it.
type RemotePeer interface {
	Tool(name string) (tool.Definition, bool)
	Tools() []tool.Definition
	Refresh(ctx context.Context) ([]tool.Definition, error)
	Invoke(ctx context.Context, name string, args map[string]any) (tool.Result, error)
}

// LocalPeer is the tool provider side. *tool.Registry satisfies it.
type LocalPeer interface {
	Register(name, description string, handler tool.Handler, params ...tool.Parameter) tool.Definition
}

// SkillExecutor runs a skill through the agent's own task path.
type SkillExecutor interface {
	ExecuteSkill(ctx context.Context, skill string, args map[string]any) (any, error)
}

type binding struct {
	def    tool.Definition
	origin Origin
}

// Bridge keeps the tool->skill and skill->tool tables. Every name present in
// one table is present in the other.
type Bridge struct {
	remote RemotePeer
	local  LocalPeer
	logger *slog.Logger

	mu          sync.RWMutex
	toolToSkill map[string]Skill
	skillToTool map[string]binding
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a bridge. Either peer may be nil when that direction is unused.
func New(remote RemotePeer, local LocalPeer, opts ...Option) *Bridge {
	b := &Bridge{
		remote:      remote,
		local:       local,
		logger:      slog.Default(),
		toolToSkill: make(map[string]Skill),
		skillToTool: make(map[string]binding),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterRemoteToolAsSkill maps a discovered remote tool to a skill of the
// same name. An empty cache is refreshed once before giving up.
func (b *Bridge) RegisterRemoteToolAsSkill(ctx context.Context, name, description string) (Skill, error) {
	if b.remote == nil {
		return Skill{}, errors.InvalidInput("remote tool client is required")
	}
	if len(b.remote.Tools()) == 0 {
		b.logger.DebugContext(ctx, "no tools cached, refreshing", "tool", name)
		if _, err := b.remote.Refresh(ctx); err != nil {
			return Skill{}, err
		}
	}
	def, ok := b.remote.Tool(name)
	if !ok {
		return Skill{}, errors.NotFound("tool %q not found", name).WithContext("tool", name)
	}
	if description == "" {
		description = def.Description
	}
	skill := Skill{
		Name:        name,
		Description: description,
		Parameters:  def.Parameters,
		Protocol:    ProtocolTool,
	}

	b.mu.Lock()
	b.toolToSkill[name] = skill
	b.skillToTool[name] = binding{def: def, origin: OriginRemote}
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "registered remote tool as skill", "tool", name)
	return skill, nil
}

// RegisterRemoteTools registers every cached remote tool as a skill.
func (b *Bridge) RegisterRemoteTools(ctx context.Context) ([]Skill, error) {
	if b.remote == nil {
		return nil, errors.InvalidInput("remote tool client is required")
	}
	var skills []Skill
	for _, def := range b.remote.Tools() {
		skill, err := b.RegisterRemoteToolAsSkill(ctx, def.Name, "")
		if err != nil {
			return skills, err
		}
		skills = append(skills, skill)
	}
	return skills, nil
}

// ExposeSkillsAsTools registers each skill as a local tool whose handler
// re-enters the agent through exec.
func (b *Bridge) ExposeSkillsAsTools(skills []Skill, exec SkillExecutor) ([]tool.Definition, error) {
	if b.local == nil {
		return nil, errors.InvalidInput("local tool registry is required")
	}
	if exec == nil {
		return nil, errors.InvalidInput("skill executor is required")
	}
	defs := make([]tool.Definition, 0, len(skills))
	for _, skill := range skills {
		name := skill.Name
		def := b.local.Register(name, skill.Description, func(ctx context.Context, args map[string]any) (any, error) {
			return exec.ExecuteSkill(ctx, name, args)
		}, skill.Parameters...)

		b.mu.Lock()
		b.skillToTool[name] = binding{def: def, origin: OriginLocal}
		b.toolToSkill[name] = skill
		b.mu.Unlock()
		defs = append(defs, def)
	}
	b.logger.Info("exposed skills as tools", "count", len(defs))
	return defs, nil
}

// Dispatch is the outcome of DispatchTask.
type Dispatch struct {
	Handled   bool           `json:"-"`
	TaskID    string         `json:"task_id,omitempty"`
	Status    task.Status    `json:"status,omitempty"`
	Artifacts map[string]any `json:"artifacts,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// DispatchTask runs the remote tool mapped to the task's skill. Tasks whose
// skill is not backed by a remote tool return Handled=false with NotToolTask.
// Every outcome is reported in the returned value.
func (b *Bridge) DispatchTask(ctx context.Context, t *task.Task) Dispatch {
	skill := t.Skill()
	b.mu.RLock()
	bound, ok := b.skillToTool[skill]
	b.mu.RUnlock()
	if skill == "" || !ok || bound.origin != OriginRemote || b.remote == nil {
		return Dispatch{Error: NotToolTask}
	}

	out := Dispatch{Handled: true, TaskID: t.ID}
	res, err := b.invoke(ctx, bound.def.Name, t.Parameters())
	switch {
	case err != nil:
		out.Status = task.StatusFailed
		out.Error = err.Error()
	case res.Failed():
		out.Status = task.StatusFailed
		out.Error = res.Error
	default:
		out.Status = task.StatusCompleted
		out.Artifacts = map[string]any{"result": res.Value}
	}
	return out
}

func (b *Bridge) invoke(ctx context.Context, name string, args map[string]any) (res tool.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %s panicked: %v", name, p)
		}
	}()
	return b.remote.Invoke(ctx, name, args)
}

// Skills returns every mapped skill sorted by name.
func (b *Bridge) Skills() []Skill {
	b.mu.RLock()
	out := make([]Skill, 0, len(b.toolToSkill))
	for _, s := range b.toolToSkill {
		out = append(out, s)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Handles reports whether skill is dispatched to a remote tool.
func (b *Bridge) Handles(skill string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bound, ok := b.skillToTool[skill]
	return ok && bound.origin == OriginRemote
}

// Consistent reports whether both tables hold the same names.
func (b *Bridge) Consistent() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.toolToSkill) != len(b.skillToTool) {
		return false
	}
	for name := range b.toolToSkill {
		if _, ok := b.skillToTool[name]; !ok {
			return false
		}
	}
	return true
}
