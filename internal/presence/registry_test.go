package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/domain"
)

type stubConn struct {
	id     string
	userID uuid.UUID
}

func (c *stubConn) ID() string { return c.id }
func (c *stubConn) UserID() uuid.UUID { return c.userID }
func (c *stubConn) Push(event *domain.Event) bool { return true }

func TestOnlineOffline(t *testing.T) {
	r := NewRegistry(4)
	user := uuid.New()
	web := &stubConn{id: "web", userID: user}
	phone := &stubConn{id: "phone", userID: user}

	assert.False(t, r.IsOnline(user))

	r.MarkOnline(user, web)
	r.MarkOnline(user, phone)
	assert.True(t, r.IsOnline(user))
	assert.Len(t, r.Connections(user), 2)

	assert.False(t, r.MarkOffline(user, "web"))
	assert.True(t, r.IsOnline(user))

	assert.True(t, r.MarkOffline(user, "phone"))
	assert.False(t, r.IsOnline(user))
	assert.Empty(t, r.Connections(user))

	assert.True(t, r.MarkOffline(user, "phone"))
}

func TestViewingFollowsConnection(t *testing.T) {
	r := NewRegistry(4)
	user := uuid.New()
	conv := uuid.New()
	web := &stubConn{id: "web", userID: user}
	phone := &stubConn{id: "phone", userID: user}
	r.MarkOnline(user, web)
	r.MarkOnline(user, phone)

	require.True(t, r.MarkViewing(user, "web", conv))
	assert.True(t, r.IsViewing(user, conv))
	assert.Len(t, r.Viewers(conv), 1)

	viewing, elsewhere := r.Route(user, conv)
	require.Len(t, viewing, 1)
	require.Len(t, elsewhere, 1)
	assert.Equal(t, "web", viewing[0].ID())
	assert.Equal(t, "phone", elsewhere[0].ID())

	r.MarkOffline(user, "web")
	assert.False(t, r.IsViewing(user, conv))
	assert.Empty(t, r.Viewers(conv))
	assert.True(t, r.IsOnline(user))
}

func TestMarkViewingUnknownConnection(t *testing.T) {
	r := NewRegistry(4)
	user := uuid.New()

	assert.False(t, r.MarkViewing(user, "ghost", uuid.New()))

	r.MarkOnline(user, &stubConn{id: "web", userID: user})
	assert.False(t, r.MarkViewing(user, "ghost", uuid.New()))
}

func TestMarkNotViewing(t *testing.T) {
	r := NewRegistry(4)
	user := uuid.New()
	a, b := uuid.New(), uuid.New()
	r.MarkOnline(user, &stubConn{id: "web", userID: user})
	r.MarkViewing(user, "web", a)
	r.MarkViewing(user, "web", b)

	r.MarkNotViewing(user, "web", a)
	assert.False(t, r.IsViewing(user, a))
	assert.True(t, r.IsViewing(user, b))
	assert.Empty(t, r.Viewers(a))

	viewing, elsewhere := r.Route(user, a)
	assert.Empty(t, viewing)
	assert.Len(t, elsewhere, 1)
}

func TestRouteOffline(t *testing.T) {
	r := NewRegistry(4)
	viewing, elsewhere := r.Route(uuid.New(), uuid.New())
	assert.Nil(t, viewing)
	assert.Nil(t, elsewhere)
}

func TestConcurrentChurn(t *testing.T) {
	r := NewRegistry(8)
	conv := uuid.New()
	users := make([]uuid.UUID, 50)
	for i := range users {
		users[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for _, u := range users {
		for c := 0; c < 4; c++ {
			wg.Add(1)
			go func(u uuid.UUID, c int) {
				defer wg.Done()
				id := fmt.Sprintf("%s-%d", u, c)
				for i := 0; i < 50; i++ {
					r.MarkOnline(u, &stubConn{id: id, userID: u})
					r.MarkViewing(u, id, conv)
					_, _ = r.Route(u, conv)
					_ = r.Viewers(conv)
					r.MarkNotViewing(u, id, conv)
					r.MarkOffline(u, id)
				}
			}(u, c)
		}
	}
	wg.Wait()

	st := r.Stats()
	assert.Zero(t, st.Identities)
	assert.Zero(t, st.Connections)
	assert.Zero(t, st.Topics)
	assert.Empty(t, r.Viewers(conv))
}

func TestStats(t *testing.T) {
	r := NewRegistry(0)
	u1, u2 := uuid.New(), uuid.New()
	r.MarkOnline(u1, &stubConn{id: "a", userID: u1})
	r.MarkOnline(u1, &stubConn{id: "b", userID: u1})
	r.MarkOnline(u2, &stubConn{id: "c", userID: u2})
	r.MarkViewing(u2, "c", uuid.New())

	assert.Equal(t, Stats{Identities: 2, Connections: 3, Topics: 1}, r.Stats())
}
