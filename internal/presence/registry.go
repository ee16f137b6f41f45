// Package presence tracks which identities are connected and which conversations each
// connection is looking at.
package presence

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

const DefaultShards = 32

// Conn is one live session of an identity. Push must never block; it reports false when
// the event was dropped.
type Conn interface {
	ID() string
	UserID() uuid.UUID
	Push(event *domain.Event) bool
}

type identity struct {
	conns   map[string]Conn
	viewing map[string]map[uuid.UUID]struct{}
}

type identityShard struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]*identity
}

type topicShard struct {
	mu      sync.RWMutex
	viewers map[uuid.UUID]map[string]Conn
}

// Registry is safe for concurrent use. Lock order is identity shard before topic shard.
type Registry struct {
	identities []*identityShard
	topics     []*topicShard
}

type Stats struct {
	Identities  int `json:"identities"`
	Connections int `json:"connections"`
	Topics      int `json:"topics"`
}

func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &Registry{
		identities: make([]*identityShard, shards),
		topics:     make([]*topicShard, shards),
	}
	for i := range r.identities {
		r.identities[i] = &identityShard{identities: make(map[uuid.UUID]*identity)}
		r.topics[i] = &topicShard{viewers: make(map[uuid.UUID]map[string]Conn)}
	}
	return r
}

func shardIndex(id uuid.UUID, n int) int {
	return int(xxhash.Sum64(id[:]) % uint64(n))
}

func (r *Registry) identityShard(id uuid.UUID) *identityShard {
	return r.identities[shardIndex(id, len(r.identities))]
}

func (r *Registry) topicShard(id uuid.UUID) *topicShard {
	return r.topics[shardIndex(id, len(r.topics))]
}

// MarkOnline registers conn for userID. Re-registering the same connection id replaces it.
func (r *Registry) MarkOnline(userID uuid.UUID, conn Conn) {
	s := r.identityShard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[userID]
	if !ok {
		ident = &identity{
			conns:   make(map[string]Conn),
			viewing: make(map[string]map[uuid.UUID]struct{}),
		}
		s.identities[userID] = ident
	}
	ident.conns[conn.ID()] = conn
}

// MarkOffline drops one connection together with everything it was viewing. It reports
// whether the identity has no connections left.
func (r *Registry) MarkOffline(userID uuid.UUID, connID string) bool {
	s := r.identityShard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[userID]
	if !ok {
		return true
	}
	for convID := range ident.viewing[connID] {
		r.removeViewer(convID, connID)
	}
	delete(ident.viewing, connID)
	delete(ident.conns, connID)

	if len(ident.conns) == 0 {
		delete(s.identities, userID)
		return true
	}
	return false
}

// MarkViewing records that connID is looking at convID. Unknown connections are ignored.
func (r *Registry) MarkViewing(userID uuid.UUID, connID string, convID uuid.UUID) bool {
	s := r.identityShard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[userID]
	if !ok {
		return false
	}
	conn, ok := ident.conns[connID]
	if !ok {
		return false
	}
	set, ok := ident.viewing[connID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		ident.viewing[connID] = set
	}
	set[convID] = struct{}{}

	t := r.topicShard(convID)
	t.mu.Lock()
	viewers, ok := t.viewers[convID]
	if !ok {
		viewers = make(map[string]Conn)
		t.viewers[convID] = viewers
	}
	viewers[connID] = conn
	t.mu.Unlock()
	return true
}

func (r *Registry) MarkNotViewing(userID uuid.UUID, connID string, convID uuid.UUID) {
	s := r.identityShard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[userID]
	if !ok {
		return
	}
	if set, ok := ident.viewing[connID]; ok {
		delete(set, convID)
		if len(set) == 0 {
			delete(ident.viewing, connID)
		}
	}
	r.removeViewer(convID, connID)
}

func (r *Registry) removeViewer(convID uuid.UUID, connID string) {
	t := r.topicShard(convID)
	t.mu.Lock()
	defer t.mu.Unlock()

	viewers, ok := t.viewers[convID]
	if !ok {
		return
	}
	delete(viewers, connID)
	if len(viewers) == 0 {
		delete(t.viewers, convID)
	}
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	s := r.identityShard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.identities[userID]
	return ok
}

// IsViewing reports whether any connection of userID is looking at convID.
func (r *Registry) IsViewing(userID, convID uuid.UUID) bool {
	s := r.identityShard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ident, ok := s.identities[userID]
	if !ok {
		return false
	}
	for _, set := range ident.viewing {
		if _, ok := set[convID]; ok {
			return true
		}
	}
	return false
}

func (r *Registry) Connections(userID uuid.UUID) []Conn {
	s := r.identityShard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ident, ok := s.identities[userID]
	if !ok {
		return nil
	}
	conns := make([]Conn, 0, len(ident.conns))
	for _, c := range ident.conns {
		conns = append(conns, c)
	}
	return conns
}

// Route splits the connections of userID into those viewing convID and the rest, taken
// from one snapshot. Both are empty when the identity is offline.
func (r *Registry) Route(userID, convID uuid.UUID) (viewing, elsewhere []Conn) {
	s := r.identityShard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ident, ok := s.identities[userID]
	if !ok {
		return nil, nil
	}
	for connID, c := range ident.conns {
		if _, ok := ident.viewing[connID][convID]; ok {
			viewing = append(viewing, c)
		} else {
			elsewhere = append(elsewhere, c)
		}
	}
	return viewing, elsewhere
}

// Viewers returns every connection currently looking at convID.
func (r *Registry) Viewers(convID uuid.UUID) []Conn {
	t := r.topicShard(convID)
	t.mu.RLock()
	defer t.mu.RUnlock()

	viewers := t.viewers[convID]
	conns := make([]Conn, 0, len(viewers))
	for _, c := range viewers {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) Stats() Stats {
	var st Stats
	for _, s := range r.identities {
		s.mu.RLock()
		st.Identities += len(s.identities)
		for _, ident := range s.identities {
			st.Connections += len(ident.conns)
		}
		s.mu.RUnlock()
	}
	for _, t := range r.topics {
		t.mu.RLock()
		st.Topics += len(t.viewers)
		t.mu.RUnlock()
	}
	return st
}
