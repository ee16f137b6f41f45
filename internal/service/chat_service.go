package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/delivery"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/membership"
	"github.com/vedran77/pulsechat/internal/repository"
	"github.com/vedran77/pulsechat/internal/store"
	"github.com/vedran77/pulsechat/pkg/validator"
)

// ChatService is the entry point for every conversation operation. Membership changes go
// through the store's exclusive sections; members are notified after the change commits.
type ChatService struct {
	store  *store.Store
	dir    repository.Directory
	engine *delivery.Engine
	log    *slog.Logger
}

func NewChatService(s *store.Store, dir repository.Directory, engine *delivery.Engine, log *slog.Logger) *ChatService {
	return &ChatService{
		store:  s,
		dir:    dir,
		engine: engine,
		log:    log,
	}
}

type CreateGroupInput struct {
	Name           string      `json:"name"`
	DisplayPicture string      `json:"display_picture"`
	MemberIDs      []uuid.UUID `json:"member_ids"`
}

type UpdateGroupInput struct {
	Name           *string `json:"name"`
	DisplayPicture *string `json:"display_picture"`
}

type SendMessageInput struct {
	Content   string     `json:"content"`
	RepliedTo *uuid.UUID `json:"replied_to,omitempty"`
}

// CreateDirectConversation returns the direct conversation with target, creating it if needed.
func (s *ChatService) CreateDirectConversation(ctx context.Context, actorID, targetID uuid.UUID) (*domain.Conversation, bool, error) {
	conv, created, err := s.store.CreateDirect(ctx, actorID, targetID)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info("direct_conversation_created", "conversation_id", conv.ID, "actor_id", actorID)
		s.notify(conv, domain.EventTypeConversationUpdated, domain.ConversationPayload{Conversation: *conv}, &actorID)
	}
	return conv, created, nil
}

func (s *ChatService) CreateGroupConversation(ctx context.Context, actorID uuid.UUID, input CreateGroupInput) (*domain.Conversation, error) {
	name := validator.SanitizeText(input.Name)
	if name == "" {
		return nil, domain.ErrInvalidContent
	}

	conv, err := s.store.CreateGroup(ctx, actorID, input.MemberIDs, name, input.DisplayPicture)
	if err != nil {
		return nil, err
	}

	s.log.Info("group_conversation_created", "conversation_id", conv.ID, "actor_id", actorID, "members", len(conv.Members))
	s.notify(conv, domain.EventTypeConversationUpdated, domain.ConversationPayload{Conversation: *conv}, &actorID)
	return conv, nil
}

func (s *ChatService) GetConversation(ctx context.Context, actorID, conversationID uuid.UUID) (*domain.Conversation, error) {
	return s.store.Get(ctx, conversationID, actorID)
}

func (s *ChatService) ListConversations(ctx context.Context, actorID uuid.UUID) ([]domain.Conversation, error) {
	return s.store.ListForMember(ctx, actorID)
}

func (s *ChatService) RenameGroup(ctx context.Context, actorID, conversationID uuid.UUID, name string) (*domain.Conversation, error) {
	return s.UpdateGroup(ctx, actorID, conversationID, UpdateGroupInput{Name: &name})
}

func (s *ChatService) SetDisplayPicture(ctx context.Context, actorID, conversationID uuid.UUID, url string) (*domain.Conversation, error) {
	return s.UpdateGroup(ctx, actorID, conversationID, UpdateGroupInput{DisplayPicture: &url})
}

// UpdateGroup applies a rename and/or picture change as one transition.
func (s *ChatService) UpdateGroup(ctx context.Context, actorID, conversationID uuid.UUID, input UpdateGroupInput) (*domain.Conversation, error) {
	if input.Name == nil && input.DisplayPicture == nil {
		return nil, domain.ErrInvalidContent
	}

	var name string
	if input.Name != nil {
		name = validator.SanitizeText(*input.Name)
		if name == "" {
			return nil, domain.ErrInvalidContent
		}
	}

	conv, _, err := s.store.Mutate(ctx, conversationID, func(c *domain.Conversation) (*domain.Conversation, error) {
		if !membership.CanAdminister(c, actorID) {
			return nil, domain.ErrNotAdmin
		}
		next := c
		var err error
		if input.Name != nil {
			if next, err = membership.Rename(next, name, actorID); err != nil {
				return nil, err
			}
		}
		if input.DisplayPicture != nil {
			if next, err = membership.SetDisplayPicture(next, *input.DisplayPicture, actorID); err != nil {
				return nil, err
			}
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(conv, domain.EventTypeConversationUpdated, domain.ConversationPayload{Conversation: *conv}, nil)
	return conv, nil
}

func (s *ChatService) AddMember(ctx context.Context, actorID, conversationID, memberID uuid.UUID) (*domain.Conversation, error) {
	conv, _, err := s.store.Mutate(ctx, conversationID, func(c *domain.Conversation) (*domain.Conversation, error) {
		if !membership.CanAdminister(c, actorID) {
			return nil, domain.ErrNotAdmin
		}
		if c.HasMember(memberID) {
			return nil, domain.ErrAlreadyMember
		}

		profile, err := s.dir.ResolveProfile(ctx, memberID)
		if err != nil {
			return nil, fmt.Errorf("resolving member: %w", err)
		}
		if profile == nil {
			return nil, domain.ErrUserNotFound
		}
		friends, err := s.dir.IsFriend(ctx, actorID, memberID)
		if err != nil {
			return nil, fmt.Errorf("checking friendship: %w", err)
		}
		if !friends {
			return nil, domain.ErrNotAFriend
		}
		return membership.AddMember(c, *profile, actorID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("member_added", "conversation_id", conv.ID, "actor_id", actorID, "member_id", memberID)
	s.notify(conv, domain.EventTypeConversationUpdated, domain.ConversationPayload{Conversation: *conv}, nil)
	return conv, nil
}

// RemoveMember removes memberID. When the last member leaves the conversation is deleted
// and deleted is true.
func (s *ChatService) RemoveMember(ctx context.Context, actorID, conversationID, memberID uuid.UUID) (*domain.Conversation, bool, error) {
	conv, deleted, err := s.store.Mutate(ctx, conversationID, func(c *domain.Conversation) (*domain.Conversation, error) {
		return membership.RemoveMember(c, memberID, actorID)
	})
	if err != nil {
		return nil, false, err
	}

	s.log.Info("member_removed", "conversation_id", conversationID, "actor_id", actorID, "member_id", memberID, "deleted", deleted)

	if deleted {
		s.dropped(conv.ID, conv.MemberIDs())
		return nil, true, nil
	}

	s.dropped(conv.ID, []uuid.UUID{memberID})
	s.notify(conv, domain.EventTypeConversationUpdated, domain.ConversationPayload{Conversation: *conv}, nil)
	return conv, false, nil
}

func (s *ChatService) AddAdmin(ctx context.Context, actorID, conversationID, targetID uuid.UUID) (*domain.Conversation, error) {
	conv, _, err := s.store.Mutate(ctx, conversationID, func(c *domain.Conversation) (*domain.Conversation, error) {
		return membership.AddAdmin(c, targetID, actorID)
	})
	if err != nil {
		return nil, err
	}
	s.notify(conv, domain.EventTypeConversationUpdated, domain.ConversationPayload{Conversation: *conv}, nil)
	return conv, nil
}

func (s *ChatService) RemoveAdmin(ctx context.Context, actorID, conversationID, targetID uuid.UUID) (*domain.Conversation, error) {
	conv, _, err := s.store.Mutate(ctx, conversationID, func(c *domain.Conversation) (*domain.Conversation, error) {
		return membership.RemoveAdmin(c, targetID, actorID)
	})
	if err != nil {
		return nil, err
	}
	s.notify(conv, domain.EventTypeConversationUpdated, domain.ConversationPayload{Conversation: *conv}, nil)
	return conv, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, actorID, conversationID uuid.UUID) error {
	conv, err := s.store.DeleteConversation(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	s.log.Info("conversation_deleted_by_member", "conversation_id", conversationID, "actor_id", actorID)
	s.dropped(conv.ID, conv.MemberIDs())
	return nil
}

func (s *ChatService) SendMessage(ctx context.Context, actorID, conversationID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	content := validator.SanitizeText(input.Content)
	if errs := validator.ValidateMessage(content); errs.HasErrors() {
		return nil, domain.ErrInvalidContent
	}

	return s.engine.Send(ctx, delivery.SendInput{
		ConversationID: conversationID,
		SenderID:       actorID,
		Content:        content,
		RepliedTo:      input.RepliedTo,
	})
}

func (s *ChatService) DeleteMessage(ctx context.Context, actorID, messageID uuid.UUID) error {
	msg, conv, err := s.store.DeleteMessage(ctx, messageID, actorID)
	if err != nil {
		return err
	}
	s.notify(conv, domain.EventTypeMessageDeleted, domain.MessageDeletedPayload{ID: msg.ID}, nil)
	return nil
}

func (s *ChatService) FetchMessages(ctx context.Context, actorID, conversationID uuid.UUID, before *uuid.UUID, limit int) (*domain.MessagePage, error) {
	return s.store.FetchMessages(ctx, conversationID, actorID, before, limit)
}

// MarkRead clears the actor's unread counter.
func (s *ChatService) MarkRead(ctx context.Context, actorID, conversationID uuid.UUID) (*domain.Conversation, error) {
	return s.store.ResetUnread(ctx, conversationID, actorID)
}

func (s *ChatService) notify(conv *domain.Conversation, eventType string, payload any, exclude *uuid.UUID) {
	evt, err := domain.NewEvent(eventType, &conv.ID, payload)
	if err != nil {
		s.log.Error("encode_event_failed", "type", eventType, "conversation_id", conv.ID, "error", err)
		return
	}
	s.engine.Broadcast(conv, evt, exclude)
}

// dropped tells users they lost access to the conversation and stops their viewing.
func (s *ChatService) dropped(conversationID uuid.UUID, userIDs []uuid.UUID) {
	for _, id := range userIDs {
		s.engine.Detach(id, conversationID)
	}
	evt, err := domain.NewEvent(domain.EventTypeConversationDeleted, &conversationID, domain.ConversationDeletedPayload{ID: conversationID})
	if err != nil {
		s.log.Error("encode_event_failed", "type", domain.EventTypeConversationDeleted, "error", err)
		return
	}
	s.engine.NotifyUsers(userIDs, evt)
}
