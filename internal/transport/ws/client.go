package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 16 * 1024
)

// Client is one websocket connection. It implements presence.Conn.
type Client struct {
	gateway *Gateway
	conn    *websocket.Conn
	id      string
	userID  uuid.UUID
	log     *slog.Logger

	typing *rate.Limiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(gw *Gateway, conn *websocket.Conn, userID uuid.UUID) *Client {
	id := uuid.NewString()
	return &Client{
		gateway: gw,
		conn:    conn,
		id:      id,
		userID:  userID,
		log:     gw.log.With("conn_id", id, "user_id", userID),
		typing:  rate.NewLimiter(rate.Limit(gw.cfg.TypingRatePerSec), gw.cfg.TypingBurst),
		send:    make(chan []byte, gw.cfg.SendBuffer),
		done:    make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Push queues an event without blocking. It returns false when the buffer is full or the
// connection is closing.
func (c *Client) Push(event *domain.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		c.log.Error("ws_marshal_failed", "type", event.Type, "error", err)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ReadPump reads events until the connection drops, then disconnects the client from the
// gateway. It owns the connection's lifetime.
func (c *Client) ReadPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.close()
		c.gateway.Disconnect(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var event domain.Event
		err := wsjson.Read(ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Info("ws_client_disconnected")
			} else {
				c.log.Warn("ws_read_error", "error", err)
			}
			return
		}

		c.gateway.Handle(ctx, c, &event)
	}
}

// WritePump writes queued events and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Warn("ws_write_error", "error", err)
				c.close()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Warn("ws_ping_error", "error", err)
				c.close()
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) sendError(code, message string) {
	evt, err := domain.NewEvent(domain.EventTypeError, nil, domain.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.Push(evt)
}
