// Package delivery routes stored messages to live connections and keeps unread counters
// for members who did not see them.
package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/metrics"
	"github.com/vedran77/pulsechat/internal/presence"
	"github.com/vedran77/pulsechat/internal/store"
)

type Engine struct {
	store    *store.Store
	presence *presence.Registry
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewEngine(s *store.Store, p *presence.Registry, m *metrics.Metrics, log *slog.Logger) *Engine {
	return &Engine{store: s, presence: p, metrics: m, log: log}
}

type SendInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        string
	RepliedTo      *uuid.UUID
}

// Send stores a message and delivers it. Members viewing the conversation get it live;
// everyone else has their unread counter bumped, and those online elsewhere get a notice.
// A failure to persist the counters is logged but does not fail the send.
func (e *Engine) Send(ctx context.Context, in SendInput) (*domain.Message, error) {
	var msg *domain.Message

	err := e.store.Exclusive(ctx, in.ConversationID, func(conv *domain.Conversation) error {
		sender, ok := conv.Member(in.SenderID)
		if !ok {
			return domain.ErrNotParticipant
		}

		m, err := e.store.AppendMessage(ctx, conv, sender, in.Content, in.RepliedTo)
		if err != nil {
			return err
		}
		msg = m

		live, err := domain.NewEvent(domain.EventTypeMessageNew, &conv.ID, domain.MessagePayload{Message: *m})
		if err != nil {
			return fmt.Errorf("encoding message event: %w", err)
		}

		for _, member := range conv.Members {
			if member.ID == sender.ID {
				continue
			}
			e.route(conv, member.ID, m, live)
		}

		for _, c := range e.presence.Connections(sender.ID) {
			c.Push(live)
		}
		e.metrics.Deliveries.WithLabelValues(metrics.RouteSender).Inc()

		if err := e.store.SaveConversation(ctx, conv); err != nil {
			e.metrics.UnreadStale.Inc()
			e.log.Error("unread_counters_stale",
				"conversation_id", conv.ID,
				"message_id", m.ID,
				"error", err,
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.MessagesSent.Inc()
	return msg, nil
}

// route delivers msg to one member and updates conv's counters in place.
func (e *Engine) route(conv *domain.Conversation, memberID uuid.UUID, msg *domain.Message, live *domain.Event) {
	viewing, elsewhere := e.presence.Route(memberID, conv.ID)

	delivered := false
	for _, c := range viewing {
		if c.Push(live) {
			delivered = true
		}
	}
	if delivered {
		e.metrics.Deliveries.WithLabelValues(metrics.RouteLive).Inc()
		return
	}
	if len(viewing) > 0 {
		e.log.Debug("live_delivery_dropped", "conversation_id", conv.ID, "user_id", memberID)
	}

	conv.UnreadCounters[memberID]++

	if len(elsewhere) == 0 {
		e.metrics.Deliveries.WithLabelValues(metrics.RouteOffline).Inc()
		return
	}

	notice, err := domain.NewEvent(domain.EventTypeMessageNotify, &conv.ID, domain.MessageNotifyPayload{
		MessageID: msg.ID,
		Sender:    msg.Sender,
		Unread:    conv.UnreadCounters[memberID],
	})
	if err != nil {
		e.log.Error("encode_notify_failed", "conversation_id", conv.ID, "error", err)
		return
	}
	for _, c := range elsewhere {
		c.Push(notice)
	}
	e.metrics.Deliveries.WithLabelValues(metrics.RouteNotify).Inc()
}

// Typing fans a typing indicator out to everyone viewing the conversation except the
// typist. Nothing is persisted and full buffers drop the event.
func (e *Engine) Typing(ctx context.Context, senderID, conversationID uuid.UUID, started bool) error {
	conv, err := e.store.Get(ctx, conversationID, senderID)
	if err != nil {
		return err
	}

	eventType := domain.EventTypeTyping
	if !started {
		eventType = domain.EventTypeTypingStopped
	}
	evt, err := domain.NewEvent(eventType, &conversationID, domain.TypingPayload{UserID: senderID})
	if err != nil {
		return fmt.Errorf("encoding typing event: %w", err)
	}

	for _, c := range e.presence.Viewers(conversationID) {
		if c.UserID() == senderID || !conv.HasMember(c.UserID()) {
			continue
		}
		if !c.Push(evt) {
			e.metrics.TypingDropped.Inc()
		}
	}
	return nil
}

// StartViewing marks connID as viewing the conversation. The membership check and the
// mark happen in the conversation's exclusive section, so a concurrent removal either
// sees the mark and detaches it or runs first and the check fails.
func (e *Engine) StartViewing(ctx context.Context, userID uuid.UUID, connID string, conversationID uuid.UUID) error {
	return e.store.Exclusive(ctx, conversationID, func(conv *domain.Conversation) error {
		if !conv.HasMember(userID) {
			return domain.ErrNotParticipant
		}
		e.presence.MarkViewing(userID, connID, conversationID)
		return nil
	})
}

// Broadcast pushes a conversation-level event to every connection of every member,
// skipping exclude when set.
func (e *Engine) Broadcast(conv *domain.Conversation, event *domain.Event, exclude *uuid.UUID) {
	ids := conv.MemberIDs()
	if exclude != nil {
		out := ids[:0]
		for _, id := range ids {
			if id != *exclude {
				out = append(out, id)
			}
		}
		ids = out
	}
	e.NotifyUsers(ids, event)
}

// NotifyUsers pushes event to every connection of the listed users.
func (e *Engine) NotifyUsers(userIDs []uuid.UUID, event *domain.Event) {
	for _, id := range userIDs {
		for _, c := range e.presence.Connections(id) {
			if !c.Push(event) {
				e.log.Debug("event_dropped", "type", event.Type, "user_id", id, "conn_id", c.ID())
			}
		}
	}
}

// Detach stops every connection of userID from viewing the conversation. Used when the
// user leaves or the conversation disappears.
func (e *Engine) Detach(userID, conversationID uuid.UUID) {
	for _, c := range e.presence.Connections(userID) {
		e.presence.MarkNotViewing(userID, c.ID(), conversationID)
	}
}
