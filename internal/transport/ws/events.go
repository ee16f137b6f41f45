package ws

import (
	"github.com/google/uuid"
)

// Event types - Client → Server
const (
	EventTypeMessageSend        = "message.send"
	EventTypeMessageDelete      = "message.delete"
	EventTypeConversationView   = "conversation.view"
	EventTypeConversationUnview = "conversation.unview"
	EventTypeConversationRead   = "conversation.read"
	EventTypeTypingStart        = "typing.start"
	EventTypeTypingStop         = "typing.stop"
	EventTypePing               = "ping"
)

// Inbound events share domain.Event as their envelope; conversation-scoped events carry
// conversation_id there.

type MessageSendPayload struct {
	Content   string     `json:"content"`
	RepliedTo *uuid.UUID `json:"replied_to,omitempty"`
	Nonce     string     `json:"nonce,omitempty"`
}

type MessageDeletePayload struct {
	MessageID uuid.UUID `json:"message_id"`
}
