// Package task holds task records and their status transitions.
package task

import (
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusWorking       Status = "working"
	StatusInputRequired Status = "input-required"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCanceled      Status = "canceled"
)

// Well-known Params keys.
const (
	ParamSkill         = "skill"
	ParamParameters    = "parameters"
	ParamWebhookTaskID = "webhook_task_id"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusWorking, StatusInputRequired,
		StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether s ends a turn.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Task is a conversation unit. Params carries caller metadata such as the
// skill to dispatch and its parameters.
type Task struct {
	ID        string         `json:"id"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Params    map[string]any `json:"params,omitempty"`
}

// Skill returns the skill name in Params, if any.
func (t *Task) Skill() string {
	if t == nil {
		return ""
	}
	s, _ := t.Params[ParamSkill].(string)
	return s
}

// Parameters returns the skill parameters in Params, if any.
func (t *Task) Parameters() map[string]any {
	if t == nil {
		return nil
	}
	p, _ := t.Params[ParamParameters].(map[string]any)
	return p
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Params = cloneMap(t.Params)
	return &out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
