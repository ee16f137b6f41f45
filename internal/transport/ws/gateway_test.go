package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/auth"
	"github.com/vedran77/pulsechat/internal/delivery"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/logger"
	"github.com/vedran77/pulsechat/internal/metrics"
	"github.com/vedran77/pulsechat/internal/presence"
	"github.com/vedran77/pulsechat/internal/repository/memory"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/store"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	alice = domain.ProfileRef{ID: uuid.MustParse("00000000-0000-0000-0000-00000000a11c"), DisplayName: "Alice"}
	bob   = domain.ProfileRef{ID: uuid.MustParse("00000000-0000-0000-0000-000000000b0b"), DisplayName: "Bob"}
	eve   = domain.ProfileRef{ID: uuid.MustParse("00000000-0000-0000-0000-000000000e5e"), DisplayName: "Eve"}
)

type fixture struct {
	gw       *Gateway
	chat     *service.ChatService
	presence *presence.Registry
	metrics  *metrics.Metrics
	conv     *domain.Conversation
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db := memory.NewDB()
	dir := memory.NewDirectory()
	for _, p := range []domain.ProfileRef{alice, bob, eve} {
		dir.AddProfile(p)
	}
	dir.Befriend(alice.ID, bob.ID)

	m := metrics.NewNop()
	log := logger.Discard()
	s := store.New(memory.NewConversationRepo(db), memory.NewMessageRepo(db), dir, m, log)
	reg := presence.NewRegistry(4)
	engine := delivery.NewEngine(s, reg, m, log)
	chat := service.NewChatService(s, dir, engine, log)

	conv, _, err := chat.CreateDirectConversation(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)

	return &fixture{
		gw:       NewGateway(chat, engine, reg, m, log, cfg),
		chat:     chat,
		presence: reg,
		metrics:  m,
		conv:     conv,
	}
}

// client builds a connection-less client; events pushed to it stay in its send buffer.
func (f *fixture) client(userID uuid.UUID) *Client {
	c := &Client{
		gateway: f.gw,
		id:      uuid.NewString(),
		userID:  userID,
		log:     f.gw.log,
		typing:  rate.NewLimiter(rate.Limit(f.gw.cfg.TypingRatePerSec), f.gw.cfg.TypingBurst),
		send:    make(chan []byte, f.gw.cfg.SendBuffer),
		done:    make(chan struct{}),
	}
	f.gw.Connect(c)
	return c
}

func drain(t *testing.T, c *Client) []domain.Event {
	t.Helper()
	var out []domain.Event
	for {
		select {
		case data := <-c.send:
			var evt domain.Event
			require.NoError(t, json.Unmarshal(data, &evt))
			out = append(out, evt)
		default:
			return out
		}
	}
}

func types(events []domain.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func inbound(t *testing.T, eventType string, convID *uuid.UUID, payload any) *domain.Event {
	t.Helper()
	evt, err := domain.NewEvent(eventType, convID, payload)
	require.NoError(t, err)
	return evt
}

func TestGatewayPing(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.client(alice.ID)

	f.gw.Handle(context.Background(), c, &domain.Event{Type: EventTypePing})

	assert.Equal(t, []string{domain.EventTypePong}, types(drain(t, c)))
}

func TestGatewaySendAcksAndRoutes(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a := f.client(alice.ID)
	b := f.client(bob.ID)
	ctx := context.Background()

	f.gw.Handle(ctx, b, inbound(t, EventTypeConversationView, &f.conv.ID, nil))
	require.Empty(t, drain(t, b))
	require.True(t, f.presence.IsViewing(bob.ID, f.conv.ID))

	f.gw.Handle(ctx, a, inbound(t, EventTypeMessageSend, &f.conv.ID, MessageSendPayload{Content: "hey", Nonce: "n-1"}))

	sent := drain(t, a)
	require.Equal(t, []string{domain.EventTypeMessageNew, domain.EventTypeMessageAck}, types(sent))
	var ack domain.MessageAckPayload
	require.NoError(t, json.Unmarshal(sent[1].Payload, &ack))
	assert.Equal(t, "n-1", ack.Nonce)
	assert.NotEqual(t, uuid.Nil, ack.MessageID)

	assert.Equal(t, []string{domain.EventTypeMessageNew}, types(drain(t, b)))

	f.gw.Handle(ctx, b, inbound(t, EventTypeConversationUnview, &f.conv.ID, nil))
	assert.False(t, f.presence.IsViewing(bob.ID, f.conv.ID))

	f.gw.Handle(ctx, a, inbound(t, EventTypeMessageSend, &f.conv.ID, MessageSendPayload{Content: "still there?"}))
	assert.Equal(t, []string{domain.EventTypeMessageNotify}, types(drain(t, b)))

	conv, err := f.chat.GetConversation(ctx, bob.ID, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCounters[bob.ID])

	f.gw.Handle(ctx, b, inbound(t, EventTypeConversationRead, &f.conv.ID, nil))
	conv, err = f.chat.GetConversation(ctx, bob.ID, f.conv.ID)
	require.NoError(t, err)
	assert.Zero(t, conv.UnreadCounters[bob.ID])
}

func TestGatewayDeleteMessage(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a := f.client(alice.ID)
	b := f.client(bob.ID)
	ctx := context.Background()

	msg, err := f.chat.SendMessage(ctx, alice.ID, f.conv.ID, service.SendMessageInput{Content: "oops"})
	require.NoError(t, err)
	drain(t, a)
	drain(t, b)

	f.gw.Handle(ctx, b, inbound(t, EventTypeMessageDelete, nil, MessageDeletePayload{MessageID: msg.ID}))
	errs := drain(t, b)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.EventTypeError, errs[0].Type)
	assert.Contains(t, string(errs[0].Payload), domain.ErrNotMessageOwner.Code)

	f.gw.Handle(ctx, a, inbound(t, EventTypeMessageDelete, nil, MessageDeletePayload{MessageID: msg.ID}))
	assert.Equal(t, []string{domain.EventTypeMessageDeleted}, types(drain(t, a)))
	assert.Equal(t, []string{domain.EventTypeMessageDeleted}, types(drain(t, b)))
}

func TestGatewayErrorsGoToOriginOnly(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a := f.client(alice.ID)
	e := f.client(eve.ID)
	ctx := context.Background()

	cases := []struct {
		name  string
		event *domain.Event
		code  string
	}{
		{"outsider sends", inbound(t, EventTypeMessageSend, &f.conv.ID, MessageSendPayload{Content: "hi"}), domain.ErrNotParticipant.Code},
		{"outsider views", inbound(t, EventTypeConversationView, &f.conv.ID, nil), domain.ErrNotParticipant.Code},
		{"missing conversation", inbound(t, EventTypeMessageSend, nil, MessageSendPayload{Content: "hi"}), "INVALID_PAYLOAD"},
		{"bad payload", &domain.Event{Type: EventTypeMessageDelete, Payload: json.RawMessage(`"nope"`)}, "INVALID_PAYLOAD"},
		{"unknown type", &domain.Event{Type: "channel.join"}, "UNKNOWN_EVENT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.gw.Handle(ctx, e, tc.event)
			got := drain(t, e)
			require.Len(t, got, 1)
			assert.Equal(t, domain.EventTypeError, got[0].Type)

			var p domain.ErrorPayload
			require.NoError(t, json.Unmarshal(got[0].Payload, &p))
			assert.Equal(t, tc.code, p.Code)
		})
	}

	assert.Empty(t, drain(t, a))
	assert.False(t, f.presence.IsViewing(eve.ID, f.conv.ID))
}

func TestGatewayEmptyMessageRejected(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a := f.client(alice.ID)

	f.gw.Handle(context.Background(), a, inbound(t, EventTypeMessageSend, &f.conv.ID, MessageSendPayload{Content: "  <b></b> "}))

	got := drain(t, a)
	require.Len(t, got, 1)
	assert.Contains(t, string(got[0].Payload), domain.ErrInvalidContent.Code)
}

func TestGatewayTypingRateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TypingRatePerSec = 0.001
	cfg.TypingBurst = 2
	f := newFixture(t, cfg)
	a := f.client(alice.ID)
	b := f.client(bob.ID)
	ctx := context.Background()
	f.gw.Handle(ctx, b, inbound(t, EventTypeConversationView, &f.conv.ID, nil))

	for i := 0; i < 5; i++ {
		f.gw.Handle(ctx, a, inbound(t, EventTypeTypingStart, &f.conv.ID, nil))
	}

	assert.Equal(t, []string{domain.EventTypeTyping, domain.EventTypeTyping}, types(drain(t, b)))
	assert.Empty(t, drain(t, a))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.TypingDropped))

	f.gw.Handle(ctx, a, inbound(t, EventTypeTypingStop, &f.conv.ID, nil))
	assert.Equal(t, []string{domain.EventTypeTypingStopped}, types(drain(t, b)))
}

func TestGatewayDisconnectClearsPresence(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	b := f.client(bob.ID)
	ctx := context.Background()

	f.gw.Handle(ctx, b, inbound(t, EventTypeConversationView, &f.conv.ID, nil))
	require.True(t, f.presence.IsViewing(bob.ID, f.conv.ID))

	f.gw.Disconnect(b)
	assert.False(t, f.presence.IsOnline(bob.ID))
	assert.False(t, f.presence.IsViewing(bob.ID, f.conv.ID))
}

func TestServeWS(t *testing.T) {
	const secret = "ws-secret"
	f := newFixture(t, DefaultConfig())

	srv := httptest.NewServer(ServeWS(f.gw, secret))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, url+"?token=bogus", nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 401, resp.StatusCode)
	}

	token, err := auth.IssueToken(alice.ID, secret, time.Minute)
	require.NoError(t, err)

	conn, _, err := websocket.Dial(ctx, url+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, domain.Event{Type: EventTypePing}))

	var reply domain.Event
	require.NoError(t, wsjson.Read(ctx, conn, &reply))
	assert.Equal(t, domain.EventTypePong, reply.Type)
	assert.True(t, f.presence.IsOnline(alice.ID))

	conn.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return !f.presence.IsOnline(alice.ID) }, 2*time.Second, 10*time.Millisecond)
}
