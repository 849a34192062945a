package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jllopis/taskbridge/pkg/errors"
)

// Filter narrows List results.
type Filter struct {
	Status Status
	Limit  int
}

// Store provides access to task records.
type Store interface {
	Create(ctx context.Context, params map[string]any) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	UpdateStatus(ctx context.Context, id string, status Status) bool
	List(ctx context.Context, filter Filter) ([]*Task, error)
}

// MemoryStore keeps tasks in memory for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		tasks: make(map[string]*Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new submitted task with a fresh id.
func (s *MemoryStore) Create(ctx context.Context, params map[string]any) (*Task, error) {
	if params == nil {
		params = map[string]any{}
	}
	now := s.now()
	t := &Task{
		ID:        uuid.NewString(),
		Status:    StatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
		Params:    cloneMap(params),
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	return t.Clone(), nil
}

// Get returns a snapshot of the task.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.NotFound("task %q not found", id)
	}
	return t.Clone(), nil
}

// UpdateStatus sets the task status. It returns false without mutating
// anything when the task is unknown or the status is not recognized.
// Any recognized status may follow any other so finished tasks can be reused.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) bool {
	if !status.Valid() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.Status = status
	t.UpdatedAt = s.now()
	return true
}

// List returns snapshots ordered by creation time.
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.InvalidInput("unknown status %q", filter.Status)
	}
	s.mu.RLock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
