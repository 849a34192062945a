package message

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jllopis/taskbridge/pkg/errors"
)

// Log is an append-only, per-task message history.
type Log interface {
	Append(ctx context.Context, taskID string, msg Message) (Message, error)
	Get(ctx context.Context, taskID string) ([]Message, error)
	GetOne(ctx context.Context, taskID, messageID string) (Message, error)
}

// MemoryLog keeps histories in memory.
type MemoryLog struct {
	mu       sync.RWMutex
	messages map[string][]Message
	now      func() time.Time
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		messages: make(map[string][]Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Append stores msg at the end of the task history, assigning an id and
// timestamp when missing.
func (l *MemoryLog) Append(ctx context.Context, taskID string, msg Message) (Message, error) {
	if taskID == "" {
		return Message{}, errors.InvalidInput("task id is required")
	}
	msg = msg.clone()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.now()
	}
	if msg.Role == "" {
		msg.Role = RoleUser
	}

	l.mu.Lock()
	l.messages[taskID] = append(l.messages[taskID], msg)
	l.mu.Unlock()
	return msg.clone(), nil
}

// Get returns the ordered history; unknown tasks yield an empty slice.
func (l *MemoryLog) Get(ctx context.Context, taskID string) ([]Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stored := l.messages[taskID]
	out := make([]Message, len(stored))
	for i, m := range stored {
		out[i] = m.clone()
	}
	return out, nil
}

// GetOne returns a single message by id.
func (l *MemoryLog) GetOne(ctx context.Context, taskID, messageID string) (Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range l.messages[taskID] {
		if m.ID == messageID {
			return m.clone(), nil
		}
	}
	return Message{}, errors.NotFound("message %q not found in task %q", messageID, taskID)
}
