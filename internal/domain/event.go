package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types - Server → Client
const (
	EventTypeMessageNew          = "message.new"
	EventTypeMessageNotify       = "message.notify"
	EventTypeMessageDeleted      = "message.deleted"
	EventTypeMessageAck          = "message.ack"
	EventTypeTyping              = "typing"
	EventTypeTypingStopped       = "typing.stop"
	EventTypeConversationUpdated = "conversation.updated"
	EventTypeConversationDeleted = "conversation.deleted"
	EventTypePong                = "pong"
	EventTypeError               = "error"
)

// Event is the base envelope for all real-time messages.
type Event struct {
	Type           string          `json:"type"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

type MessagePayload struct {
	Message
}

// MessageNotifyPayload is the lightweight notice sent to members online elsewhere.
type MessageNotifyPayload struct {
	MessageID uuid.UUID  `json:"message_id"`
	Sender    ProfileRef `json:"sender"`
	Unread    int        `json:"unread"`
}

type MessageDeletedPayload struct {
	ID uuid.UUID `json:"id"`
}

type MessageAckPayload struct {
	Nonce     string    `json:"nonce,omitempty"`
	MessageID uuid.UUID `json:"message_id"`
}

type TypingPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

type ConversationPayload struct {
	Conversation
}

type ConversationDeletedPayload struct {
	ID uuid.UUID `json:"id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, conversationID *uuid.UUID, payload any) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}
