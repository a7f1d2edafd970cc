package domain

import (
	"errors"
	"time"
)

// DefaultConversationName is the placeholder name given to conversations
// created without one. It is replaced by the first user turn.
const DefaultConversationName = "New Chat"

// ErrNotFound is returned by stores when the addressed record does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is a persisted conversation header. Its messages are never
// stored on it; see ConversationWithMessages.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationWithMessages is a conversation header joined with its ordered
// message sequence at read time.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}
