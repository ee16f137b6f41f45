// Package store owns durable conversation state. Every membership change and every
// append-then-deliver sequence runs inside a per-conversation exclusive section.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/membership"
	"github.com/vedran77/pulsechat/internal/metrics"
	"github.com/vedran77/pulsechat/internal/repository"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type Store struct {
	convs   repository.ConversationRepository
	msgs    repository.MessageRepository
	dir     repository.Directory
	locks   *keyedLocks
	retry   RetryPolicy
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

type Option func(*Store)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Store) { s.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	dir repository.Directory,
	m *metrics.Metrics,
	log *slog.Logger,
	opts ...Option,
) *Store {
	s := &Store{
		convs:   convs,
		msgs:    msgs,
		dir:     dir,
		locks:   newKeyedLocks(),
		retry:   DefaultRetryPolicy(),
		metrics: m,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDirect returns the direct conversation between actor and target, creating it on
// first use. created reports whether this call created it.
func (s *Store) CreateDirect(ctx context.Context, actorID, targetID uuid.UUID) (*domain.Conversation, bool, error) {
	if actorID == targetID {
		return nil, false, domain.ErrInvalidTarget
	}

	actor, err := s.profile(ctx, actorID)
	if err != nil {
		return nil, false, err
	}
	target, err := s.dir.ResolveProfile(ctx, targetID)
	if err != nil {
		return nil, false, fmt.Errorf("resolving target: %w", err)
	}
	if target == nil {
		return nil, false, domain.ErrInvalidTarget
	}
	friends, err := s.dir.IsFriend(ctx, actorID, targetID)
	if err != nil {
		return nil, false, fmt.Errorf("checking friendship: %w", err)
	}
	if !friends {
		return nil, false, domain.ErrInvalidTarget
	}

	unlock, err := s.locks.Lock(ctx, "pair:"+domain.PairKey(actorID, targetID))
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	existing, err := s.convs.GetDirectByMembers(ctx, actorID, targetID)
	if err != nil {
		return nil, false, fmt.Errorf("finding direct conversation: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:             uuid.New(),
		Members:        []domain.ProfileRef{*actor, *target},
		Admins:         []uuid.UUID{},
		CreatedBy:      *actor,
		DisplayName:    domain.DirectDisplayName,
		UnreadCounters: map[uuid.UUID]int{actorID: 0, targetID: 0},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.convs.Create(ctx, conv); err != nil {
		// Another process won the race; the unique pair index rejected us.
		if errors.Is(err, domain.ErrConflict) {
			existing, ferr := s.convs.GetDirectByMembers(ctx, actorID, targetID)
			if ferr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("creating direct conversation: %w", err)
	}

	return conv, true, nil
}

// CreateGroup creates a group owned by actor. Duplicate ids and the actor's own id are
// ignored; every other member must be a friend of the actor.
func (s *Store) CreateGroup(ctx context.Context, actorID uuid.UUID, memberIDs []uuid.UUID, name, picture string) (*domain.Conversation, error) {
	actor, err := s.profile(ctx, actorID)
	if err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]struct{}{actorID: {}}
	members := make([]domain.ProfileRef, 0, len(memberIDs)+1)
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		p, err := s.profile(ctx, id)
		if err != nil {
			return nil, err
		}
		friends, err := s.dir.IsFriend(ctx, actorID, id)
		if err != nil {
			return nil, fmt.Errorf("checking friendship: %w", err)
		}
		if !friends {
			return nil, domain.ErrNotAFriend
		}
		members = append(members, *p)
	}
	if len(members) == 0 {
		return nil, domain.ErrGroupTooSmall
	}
	members = append(members, *actor)

	unread := make(map[uuid.UUID]int, len(members))
	for _, m := range members {
		unread[m.ID] = 0
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:             uuid.New(),
		IsGroup:        true,
		Members:        members,
		Admins:         []uuid.UUID{actorID},
		CreatedBy:      *actor,
		DisplayName:    name,
		DisplayPicture: picture,
		UnreadCounters: unread,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating group conversation: %w", err)
	}
	return conv, nil
}

// Exclusive loads the conversation and runs fn while holding its exclusive section.
// fn may mutate conv freely; nothing is persisted unless fn does so.
func (s *Store) Exclusive(ctx context.Context, id uuid.UUID, fn func(conv *domain.Conversation) error) error {
	unlock, err := s.locks.Lock(ctx, "conv:"+id.String())
	if err != nil {
		return err
	}
	defer unlock()

	conv, err := s.convs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		return domain.ErrConversationNotFound
	}
	return fn(conv)
}

// Mutate applies fn inside the exclusive section and persists its result. A nil result
// deletes the conversation and all of its messages; deleted is then true.
func (s *Store) Mutate(ctx context.Context, id uuid.UUID, fn func(conv *domain.Conversation) (*domain.Conversation, error)) (*domain.Conversation, bool, error) {
	var (
		result  *domain.Conversation
		deleted bool
	)
	err := s.Exclusive(ctx, id, func(conv *domain.Conversation) error {
		next, err := fn(conv)
		if err != nil {
			return err
		}
		if next == nil {
			if err := s.cascade(ctx, id); err != nil {
				return err
			}
			result, deleted = conv, true
			return nil
		}
		next.UpdatedAt = s.now()
		if err := s.SaveConversation(ctx, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, deleted, nil
}

// AppendMessage stores a message and advances the aggregate fields of conv. The caller
// must hold the conversation's exclusive section and persist conv afterwards.
func (s *Store) AppendMessage(ctx context.Context, conv *domain.Conversation, sender domain.ProfileRef, content string, repliedTo *uuid.UUID) (*domain.Message, error) {
	if repliedTo != nil {
		parent, err := s.msgs.GetByID(ctx, *repliedTo)
		if err != nil {
			return nil, fmt.Errorf("loading replied message: %w", err)
		}
		if parent == nil || parent.ConversationID != conv.ID {
			return nil, domain.ErrInvalidReply
		}
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Sender:         sender,
		Content:        content,
		RepliedTo:      repliedTo,
		CreatedAt:      s.now(),
	}
	if err := s.msgs.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	conv.TotalMessageCount++
	conv.LastMessageID = &msg.ID
	conv.UpdatedAt = msg.CreatedAt
	return msg, nil
}

// SaveConversation persists conv in one write, retrying transient failures.
func (s *Store) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	if err := conv.CheckInvariants(); err != nil {
		s.log.Error("conversation_invariant_violation", "conversation_id", conv.ID, "error", err)
		return err
	}
	err := retry(ctx, s.retry, func() error {
		return s.convs.Update(ctx, conv)
	}, func(err error, wait time.Duration) {
		s.metrics.PersistRetries.Inc()
		s.log.Warn("conversation_persist_retry", "conversation_id", conv.ID, "wait", wait, "error", err)
	})
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

// DeleteMessage removes a message on behalf of its sender. It returns the message and
// the conversation as it stands afterwards.
func (s *Store) DeleteMessage(ctx context.Context, messageID, actorID uuid.UUID) (*domain.Message, *domain.Conversation, error) {
	msg, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading message: %w", err)
	}
	if msg == nil {
		return nil, nil, domain.ErrMessageNotFound
	}
	if msg.Sender.ID != actorID {
		return nil, nil, domain.ErrNotMessageOwner
	}

	var snapshot *domain.Conversation
	err = s.Exclusive(ctx, msg.ConversationID, func(conv *domain.Conversation) error {
		current, err := s.msgs.GetByID(ctx, messageID)
		if err != nil {
			return fmt.Errorf("loading message: %w", err)
		}
		if current == nil {
			return domain.ErrMessageNotFound
		}
		if err := s.msgs.Delete(ctx, messageID); err != nil {
			return fmt.Errorf("deleting message: %w", err)
		}
		snapshot = conv

		if conv.LastMessageID == nil || *conv.LastMessageID != messageID {
			return nil
		}
		latest, err := s.msgs.ListByConversation(ctx, conv.ID, nil, 1)
		if err != nil {
			return fmt.Errorf("loading latest message: %w", err)
		}
		conv.LastMessageID = nil
		if len(latest) > 0 {
			conv.LastMessageID = &latest[0].ID
		}
		return s.SaveConversation(ctx, conv)
	})
	if err != nil {
		return nil, nil, err
	}
	return msg, snapshot, nil
}

// DeleteConversation removes the conversation and all of its messages. It returns the
// last snapshot so callers can notify the former members.
func (s *Store) DeleteConversation(ctx context.Context, id, actorID uuid.UUID) (*domain.Conversation, error) {
	var snapshot *domain.Conversation
	err := s.Exclusive(ctx, id, func(conv *domain.Conversation) error {
		if !membership.CanDeleteConversation(conv, actorID) {
			if !conv.HasMember(actorID) {
				return domain.ErrNotParticipant
			}
			return domain.ErrNotAdmin
		}
		if err := s.cascade(ctx, id); err != nil {
			return err
		}
		snapshot = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Store) cascade(ctx context.Context, id uuid.UUID) error {
	var removed int
	err := retry(ctx, s.retry, func() error {
		n, err := s.convs.DeleteCascade(ctx, id)
		removed = n
		return err
	}, func(err error, wait time.Duration) {
		s.metrics.PersistRetries.Inc()
		s.log.Warn("cascade_delete_retry", "conversation_id", id, "wait", wait, "error", err)
	})
	if err != nil {
		s.metrics.CascadeFailures.Inc()
		s.log.Error("cascade_delete_failed", "conversation_id", id, "reconcile", true, "error", err)
		return domain.Transient(fmt.Errorf("deleting conversation %s: %w", id, err))
	}
	s.log.Info("conversation_deleted", "conversation_id", id, "messages_removed", removed)
	return nil
}

// Get returns the conversation if actor is one of its members.
func (s *Store) Get(ctx context.Context, id, actorID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrConversationNotFound
	}
	if !conv.HasMember(actorID) {
		return nil, domain.ErrNotParticipant
	}
	return conv, nil
}

// ListForMember returns the user's conversations, most recently active first.
func (s *Store) ListForMember(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	convs, err := s.convs.ListByMember(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}

// FetchMessages returns one page of messages, newest first, strictly older than before.
func (s *Store) FetchMessages(ctx context.Context, id, actorID uuid.UUID, before *uuid.UUID, limit int) (*domain.MessagePage, error) {
	if _, err := s.Get(ctx, id, actorID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	messages, err := s.msgs.ListByConversation(ctx, id, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return &domain.MessagePage{Messages: messages, HasMore: hasMore}, nil
}

// ResetUnread clears the user's unread counter. Activity ordering is left untouched.
func (s *Store) ResetUnread(ctx context.Context, id, userID uuid.UUID) (*domain.Conversation, error) {
	var result *domain.Conversation
	err := s.Exclusive(ctx, id, func(conv *domain.Conversation) error {
		if !conv.HasMember(userID) {
			return domain.ErrNotParticipant
		}
		result = conv
		if conv.UnreadCounters[userID] == 0 {
			return nil
		}
		conv.UnreadCounters[userID] = 0
		return s.SaveConversation(ctx, conv)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) profile(ctx context.Context, id uuid.UUID) (*domain.ProfileRef, error) {
	p, err := s.dir.ResolveProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolving profile: %w", err)
	}
	if p == nil {
		return nil, domain.ErrUserNotFound
	}
	return p, nil
}
