// ABOUTME: Outbound event names and payload shapes for the realtime protocol
// ABOUTME: Shared by the chat layer and the escalation manager

package hub

import (
	"time"

	"github.com/bosar/bosar-gateway/internal/store"
)

// Outbound events broadcast to conversation rooms or single connections.
const (
	EventJoinedConversation        = "joined-conversation"
	EventWidgetConnected           = "widget-connected"
	EventMessageSent               = "message-sent"
	EventNewMessage                = "new-message"
	EventConversationStatusChanged = "conversation-status-changed"
	EventError                     = "error"
)

// MessagePayload is the wire form of a persisted message.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	AuthorUserID   *string   `json:"authorUserId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewMessagePayload builds the wire form of a message.
func NewMessagePayload(m *store.Message) MessagePayload {
	return MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Text:           m.Text,
		AuthorUserID:   m.AuthorUserID,
		CreatedAt:      m.CreatedAt,
	}
}

// AgentPayload identifies the staff member now handling a conversation.
type AgentPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// StatusChangePayload announces a conversation status transition.
type StatusChangePayload struct {
	ConversationID string        `json:"conversationId"`
	Status         string        `json:"status"`
	AssignedAgent  *AgentPayload `json:"assignedAgent,omitempty"`
}
