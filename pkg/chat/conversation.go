package chat

import (
	"strings"

	"github.com/lithammer/shortuuid/v3"

	"github.com/go-go-golems/parley/pkg/events"
)

// DefaultTitle is the title of a conversation before its first user message
// freezes one.
const DefaultTitle = "New Conversation"

// ProvisionalIDPrefix marks locally generated conversation ids that are
// still waiting for the remote store to assign a stable one.
const ProvisionalIDPrefix = "temp-"

const titleLength = 30

// NewProvisionalID returns a placeholder conversation id. Ids are unique
// even when generated in rapid succession.
func NewProvisionalID() string {
	return ProvisionalIDPrefix + shortuuid.New()
}

func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalIDPrefix)
}

// TitleFromContent derives a frozen conversation title from the first user
// message. Truncation counts runes so multi-byte content is never cut
// mid-character.
func TitleFromContent(content string) string {
	runes := []rune(content)
	if len(runes) > titleLength {
		return string(runes[:titleLength])
	}
	return content
}

// Conversation is an ordered, append-only exchange of messages. Updates
// never mutate in place; AppendMessage and WithID return fresh values so a
// half-applied mutation can never be observed.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Timestamp int64     `json:"timestamp"`
	OwnerID   string    `json:"ownerId"`
}

// AppendMessage returns a copy of the conversation with msg appended. The
// first user message freezes the title.
func (c Conversation) AppendMessage(msg Message) Conversation {
	messages := make([]Message, 0, len(c.Messages)+1)
	messages = append(messages, c.Messages...)
	messages = append(messages, msg)

	ret := c
	ret.Messages = messages
	if len(c.Messages) == 0 && msg.Role == RoleUser {
		ret.Title = TitleFromContent(msg.Content)
	}
	return ret
}

// WithID returns a copy of the conversation under a different id. Used when
// reconciling a provisional id with the server-assigned one.
func (c Conversation) WithID(id string) Conversation {
	ret := c.clone()
	ret.ID = id
	return ret
}

func (c Conversation) clone() Conversation {
	ret := c
	ret.Messages = make([]Message, len(c.Messages))
	copy(ret.Messages, c.Messages)
	return ret
}

// View converts the conversation into the read-only snapshot shape published
// to rendering layers.
func (c Conversation) View() events.ConversationView {
	messages := make([]events.MessageView, 0, len(c.Messages))
	for _, msg := range c.Messages {
		messages = append(messages, events.MessageView{
			ID:        msg.ID,
			Content:   msg.Content,
			Role:      string(msg.Role),
			Timestamp: msg.Timestamp,
		})
	}
	return events.ConversationView{
		ID:        c.ID,
		Title:     c.Title,
		Messages:  messages,
		Timestamp: c.Timestamp,
		OwnerID:   c.OwnerID,
	}
}
