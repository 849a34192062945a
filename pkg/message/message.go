// Package message stores the append-only conversation history of each task.
package message

import (
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// PartText is the only part type the engine reads.
const PartText = "text"

// Part is one content fragment of a message.
type Part struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// Message is one entry in a task's history.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewText builds a single text-part message.
func NewText(role Role, content string) Message {
	return Message{Role: role, Parts: []Part{{Type: PartText, Content: content}}}
}

// Text concatenates the string content of the text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type != PartText {
			continue
		}
		if s, ok := p.Content.(string); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}

func (m Message) clone() Message {
	out := m
	out.Parts = append([]Part(nil), m.Parts...)
	return out
}
