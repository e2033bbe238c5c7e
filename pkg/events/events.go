// Package events carries the state changes the conversation manager
// publishes after each mutation. Rendering layers subscribe to these instead
// of reaching into the manager; each event holds an immutable snapshot of
// whatever changed.
package events

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeConversationsUpdated EventType = "conversations-updated"
	EventTypeIdentityChanged      EventType = "identity-changed"
	EventTypeBusy                 EventType = "busy"
	EventTypeError                EventType = "error"
)

// MessageView is the read-only message snapshot handed to consumers.
type MessageView struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Role      string `json:"role"`
	Timestamp int64  `json:"timestamp"`
}

// ConversationView is the read-only conversation snapshot handed to
// consumers. Mutating a view has no effect on the manager's state.
type ConversationView struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []MessageView `json:"messages"`
	Timestamp int64         `json:"timestamp"`
	OwnerID   string        `json:"ownerId"`
}

type Event interface {
	Type() EventType
	Payload() []byte
}

type EventImpl struct {
	Type_ EventType `json:"type"`

	// raw JSON the event was deserialized from, only set by NewEventFromJSON
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
}

var _ Event = &EventImpl{}

// EventConversationsUpdated carries the full conversation set after a
// mutation, newest-first, plus the active conversation id ("" when none).
type EventConversationsUpdated struct {
	EventImpl
	Conversations []ConversationView `json:"conversations"`
	ActiveID      string             `json:"activeId"`
}

func NewConversationsUpdatedEvent(conversations []ConversationView, activeID string) *EventConversationsUpdated {
	return &EventConversationsUpdated{
		EventImpl:     EventImpl{Type_: EventTypeConversationsUpdated},
		Conversations: conversations,
		ActiveID:      activeID,
	}
}

var _ Event = &EventConversationsUpdated{}

// EventIdentityChanged reports identity transitions; UserID is empty on
// sign-out.
type EventIdentityChanged struct {
	EventImpl
	UserID string `json:"userId"`
}

func NewIdentityChangedEvent(userID string) *EventIdentityChanged {
	return &EventIdentityChanged{
		EventImpl: EventImpl{Type_: EventTypeIdentityChanged},
		UserID:    userID,
	}
}

var _ Event = &EventIdentityChanged{}

// EventBusy reports whether any send or bootstrap is in flight.
type EventBusy struct {
	EventImpl
	Busy bool `json:"busy"`
}

func NewBusyEvent(busy bool) *EventBusy {
	return &EventBusy{
		EventImpl: EventImpl{Type_: EventTypeBusy},
		Busy:      busy,
	}
}

var _ Event = &EventBusy{}

// EventError carries the manager-level error slot. Kind matches the chat
// package's error kinds; Status is the HTTP status when one applies.
type EventError struct {
	EventImpl
	Kind    string `json:"kind"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

func NewErrorEvent(kind string, status int, message string) *EventError {
	return &EventError{
		EventImpl: EventImpl{Type_: EventTypeError},
		Kind:      kind,
		Status:    status,
		Message:   message,
	}
}

var _ Event = &EventError{}

// NewEventFromJSON decodes an event published through the router back into
// its concrete type.
func NewEventFromJSON(b []byte) (Event, error) {
	var head EventImpl
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, err
	}

	var ret Event
	switch head.Type_ {
	case EventTypeConversationsUpdated:
		ret = &EventConversationsUpdated{}
	case EventTypeIdentityChanged:
		ret = &EventIdentityChanged{}
	case EventTypeBusy:
		ret = &EventBusy{}
	case EventTypeError:
		ret = &EventError{}
	default:
		ret = &EventImpl{}
	}

	if err := json.Unmarshal(b, ret); err != nil {
		return nil, err
	}
	if impl, ok := ret.(interface{ setPayload([]byte) }); ok {
		impl.setPayload(b)
	}
	return ret, nil
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}
