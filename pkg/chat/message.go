package chat

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation. Messages are immutable once
// created; timestamps are epoch milliseconds.
type Message struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Role      Role   `json:"role"`
	Timestamp int64  `json:"timestamp"`
}

type MessageOption func(*Message)

func WithMessageID(id string) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithTimestamp(ts int64) MessageOption {
	return func(m *Message) {
		m.Timestamp = ts
	}
}

func NewMessage(role Role, content string, options ...MessageOption) Message {
	ret := Message{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      role,
		Timestamp: time.Now().UnixMilli(),
	}

	for _, option := range options {
		option(&ret)
	}

	return ret
}
