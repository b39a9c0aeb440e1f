package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	RoleHuman     MessageRole = "human"
	RoleAssistant MessageRole = "assistant"
)

// ChatSession groups the messages of one conversation.
type ChatSession struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one persisted turn. Human turns carry the raw query text in
// Content; assistant turns carry the full serialized QueryResponse plus the
// filter snapshot that produced it.
type ChatMessage struct {
	MessageID      int64           `json:"message_id"`
	SessionID      uuid.UUID       `json:"session_id"`
	Role           MessageRole     `json:"role"`
	Timestamp      time.Time       `json:"timestamp"`
	Content        json.RawMessage `json:"content"`
	AppliedFilters FilterSet       `json:"applied_filters"`
	FilterAction   FilterAction    `json:"filter_action"`
}

// ConversationTurn is the role-tagged message sequence handed to the
// generation backend for conversational continuity.
type ConversationTurn struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// HumanContent is the JSONB payload stored for human turns.
type HumanContent struct {
	Message string `json:"message"`
}
