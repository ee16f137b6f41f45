package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// Directory is an in-memory identity and friendship graph.
type Directory struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]domain.ProfileRef
	friends  map[string]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		profiles: make(map[uuid.UUID]domain.ProfileRef),
		friends:  make(map[string]struct{}),
	}
}

func (d *Directory) AddProfile(p domain.ProfileRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

// Befriend records a symmetric friendship.
func (d *Directory) Befriend(a, b uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.friends[domain.PairKey(a, b)] = struct{}{}
}

func (d *Directory) IsFriend(ctx context.Context, userID, otherID uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.friends[domain.PairKey(userID, otherID)]
	return ok, nil
}

func (d *Directory) ResolveProfile(ctx context.Context, userID uuid.UUID) (*domain.ProfileRef, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
