package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.conversations[msg.ConversationID]; !ok {
		return domain.ErrConversationNotFound
	}
	m := *msg
	r.db.messages[m.ID] = &m
	r.db.byConversation[m.ConversationID] = append(r.db.byConversation[m.ConversationID], m.ID)
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	msg, ok := r.db.messages[id]
	if !ok {
		return nil, nil
	}
	m := *msg
	return &m, nil
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	ids := r.db.byConversation[conversationID]
	end := len(ids)
	if before != nil {
		end = slices.Index(ids, *before)
		if end < 0 {
			return nil, nil
		}
	}

	var messages []domain.Message
	for i := end - 1; i >= 0 && len(messages) < limit; i-- {
		messages = append(messages, *r.db.messages[ids[i]])
	}
	return messages, nil
}

func (r *MessageRepo) CountByConversation(ctx context.Context, conversationID uuid.UUID) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return len(r.db.byConversation[conversationID]), nil
}

func (r *MessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	msg, ok := r.db.messages[id]
	if !ok {
		return nil
	}
	delete(r.db.messages, id)
	r.db.byConversation[msg.ConversationID] = slices.DeleteFunc(
		r.db.byConversation[msg.ConversationID],
		func(mid uuid.UUID) bool { return mid == id },
	)
	return nil
}
