package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Sender         ProfileRef `json:"sender"`
	Content        string     `json:"content"`
	RepliedTo      *uuid.UUID `json:"replied_to,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}
