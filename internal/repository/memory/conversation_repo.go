package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

type ConversationRepo struct {
	db *DB
}

func NewConversationRepo(db *DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.conversations[conv.ID]; exists {
		return domain.ErrDuplicateConversation
	}
	r.db.conversations[conv.ID] = conv.Clone()
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	conv, ok := r.db.conversations[id]
	if !ok {
		return nil, nil
	}
	return conv.Clone(), nil
}

func (r *ConversationRepo) GetDirectByMembers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, conv := range r.db.conversations {
		if conv.IsGroup || len(conv.Members) != 2 {
			continue
		}
		if conv.HasMember(user1ID) && conv.HasMember(user2ID) {
			return conv.Clone(), nil
		}
	}
	return nil, nil
}

func (r *ConversationRepo) ListByMember(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var convs []domain.Conversation
	for _, conv := range r.db.conversations {
		if conv.HasMember(userID) {
			convs = append(convs, *conv.Clone())
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

func (r *ConversationRepo) Update(ctx context.Context, conv *domain.Conversation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.conversations[conv.ID]; !exists {
		return domain.ErrConversationNotFound
	}
	r.db.conversations[conv.ID] = conv.Clone()
	return nil
}

func (r *ConversationRepo) DeleteCascade(ctx context.Context, id uuid.UUID) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	ids := r.db.byConversation[id]
	for _, msgID := range ids {
		delete(r.db.messages, msgID)
	}
	delete(r.db.byConversation, id)
	delete(r.db.conversations, id)
	return len(ids), nil
}
