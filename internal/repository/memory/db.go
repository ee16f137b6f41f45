// Package memory keeps conversations and messages in process memory. It backs tests and the
// STORE_DRIVER=memory development mode.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// DB is shared by the conversation and message repositories so a cascade delete can run
// under a single lock.
type DB struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*domain.Conversation
	messages      map[uuid.UUID]*domain.Message
	// byConversation keeps message ids in arrival order.
	byConversation map[uuid.UUID][]uuid.UUID
}

func NewDB() *DB {
	return &DB{
		conversations:  make(map[uuid.UUID]*domain.Conversation),
		messages:       make(map[uuid.UUID]*domain.Message),
		byConversation: make(map[uuid.UUID][]uuid.UUID),
	}
}
