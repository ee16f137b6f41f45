package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/delivery"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/metrics"
	"github.com/vedran77/pulsechat/internal/presence"
	"github.com/vedran77/pulsechat/internal/service"
)

type Config struct {
	OperationTimeout time.Duration
	TypingRatePerSec float64
	TypingBurst      int
	SendBuffer       int
}

func DefaultConfig() Config {
	return Config{
		OperationTimeout: 5 * time.Second,
		TypingRatePerSec: 2,
		TypingBurst:      4,
		SendBuffer:       256,
	}
}

// Gateway binds websocket clients to presence and dispatches their events.
type Gateway struct {
	chat     *service.ChatService
	engine   *delivery.Engine
	presence *presence.Registry
	metrics  *metrics.Metrics
	log      *slog.Logger
	cfg      Config
}

func NewGateway(chat *service.ChatService, engine *delivery.Engine, reg *presence.Registry, m *metrics.Metrics, log *slog.Logger, cfg Config) *Gateway {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultConfig().OperationTimeout
	}
	return &Gateway{
		chat:     chat,
		engine:   engine,
		presence: reg,
		metrics:  m,
		log:      log,
		cfg:      cfg,
	}
}

func (g *Gateway) Connect(c *Client) {
	g.presence.MarkOnline(c.userID, c)
	g.metrics.Connections.Inc()
	c.log.Info("ws_client_connected")
}

// Disconnect drops the connection and everything it was viewing.
func (g *Gateway) Disconnect(c *Client) {
	offline := g.presence.MarkOffline(c.userID, c.id)
	g.metrics.Connections.Dec()
	c.log.Info("ws_client_removed", "offline", offline)
}

// Handle runs one inbound event. Failures are reported to the originating connection only.
func (g *Gateway) Handle(ctx context.Context, c *Client, event *domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.OperationTimeout)
	defer cancel()

	if err := g.dispatch(ctx, c, event); err != nil {
		g.reportError(c, event.Type, err)
	}
}

var errInvalidPayload = &domain.Error{Kind: domain.ErrInvalidState, Code: "INVALID_PAYLOAD", Message: "invalid event payload"}

func (g *Gateway) dispatch(ctx context.Context, c *Client, event *domain.Event) error {
	switch event.Type {
	case EventTypePing:
		evt, err := domain.NewEvent(domain.EventTypePong, nil, nil)
		if err != nil {
			return err
		}
		c.Push(evt)
		return nil

	case EventTypeMessageSend:
		convID, err := requireConversation(event)
		if err != nil {
			return err
		}
		var p MessageSendPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return errInvalidPayload
		}
		msg, err := g.chat.SendMessage(ctx, c.userID, convID, service.SendMessageInput{
			Content:   p.Content,
			RepliedTo: p.RepliedTo,
		})
		if err != nil {
			return err
		}
		ack, err := domain.NewEvent(domain.EventTypeMessageAck, &convID, domain.MessageAckPayload{Nonce: p.Nonce, MessageID: msg.ID})
		if err != nil {
			return err
		}
		c.Push(ack)
		return nil

	case EventTypeMessageDelete:
		var p MessageDeletePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.MessageID == uuid.Nil {
			return errInvalidPayload
		}
		return g.chat.DeleteMessage(ctx, c.userID, p.MessageID)

	case EventTypeConversationView:
		convID, err := requireConversation(event)
		if err != nil {
			return err
		}
		return g.StartViewing(ctx, c, convID)

	case EventTypeConversationUnview:
		convID, err := requireConversation(event)
		if err != nil {
			return err
		}
		g.StopViewing(c, convID)
		return nil

	case EventTypeConversationRead:
		convID, err := requireConversation(event)
		if err != nil {
			return err
		}
		_, err = g.chat.MarkRead(ctx, c.userID, convID)
		return err

	case EventTypeTypingStart:
		convID, err := requireConversation(event)
		if err != nil {
			return err
		}
		return g.Typing(ctx, c, convID)

	case EventTypeTypingStop:
		convID, err := requireConversation(event)
		if err != nil {
			return err
		}
		return g.StopTyping(ctx, c, convID)

	default:
		return &domain.Error{Kind: domain.ErrInvalidState, Code: "UNKNOWN_EVENT", Message: "unknown event type: " + event.Type}
	}
}

// StartViewing marks the connection as looking at a conversation it belongs to.
func (g *Gateway) StartViewing(ctx context.Context, c *Client, conversationID uuid.UUID) error {
	return g.engine.StartViewing(ctx, c.userID, c.id, conversationID)
}

func (g *Gateway) StopViewing(c *Client, conversationID uuid.UUID) {
	g.presence.MarkNotViewing(c.userID, c.id, conversationID)
}

// Typing forwards a typing indicator unless the connection is over its rate.
func (g *Gateway) Typing(ctx context.Context, c *Client, conversationID uuid.UUID) error {
	if !c.typing.Allow() {
		g.metrics.TypingDropped.Inc()
		return nil
	}
	return g.engine.Typing(ctx, c.userID, conversationID, true)
}

func (g *Gateway) StopTyping(ctx context.Context, c *Client, conversationID uuid.UUID) error {
	return g.engine.Typing(ctx, c.userID, conversationID, false)
}

func (g *Gateway) reportError(c *Client, eventType string, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		c.sendError(de.Code, de.Message)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		c.sendError("TIMEOUT", "operation timed out")
		return
	}
	c.log.Error("ws_event_failed", "type", eventType, "error", err)
	c.sendError("INTERNAL", "something went wrong")
}

func requireConversation(event *domain.Event) (uuid.UUID, error) {
	if event.ConversationID == nil || *event.ConversationID == uuid.Nil {
		return uuid.Nil, &domain.Error{Kind: domain.ErrInvalidState, Code: "INVALID_PAYLOAD", Message: "conversation_id required"}
	}
	return *event.ConversationID, nil
}
