package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// Get* methods return (nil, nil) when the record does not exist.

type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	GetDirectByMembers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error)
	ListByMember(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)
	Update(ctx context.Context, conv *domain.Conversation) error
	// DeleteCascade removes every message of the conversation and then the conversation
	// itself, atomically.
	DeleteCascade(ctx context.Context, id uuid.UUID) (int, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// ListByConversation returns messages newest first, strictly older than before when set.
	ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error)
	CountByConversation(ctx context.Context, conversationID uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Directory is the identity and social-graph collaborator.
type Directory interface {
	IsFriend(ctx context.Context, userID, otherID uuid.UUID) (bool, error)
	ResolveProfile(ctx context.Context, userID uuid.UUID) (*domain.ProfileRef, error)
}
