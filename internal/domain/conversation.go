package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// DirectDisplayName is the fixed display name of every direct conversation.
const DirectDisplayName = "direct"

type ProfileRef struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}

type Conversation struct {
	ID                uuid.UUID         `json:"id"`
	IsGroup           bool              `json:"is_group"`
	Members           []ProfileRef      `json:"members"`
	Admins            []uuid.UUID       `json:"admins"`
	CreatedBy         ProfileRef        `json:"created_by"`
	DisplayName       string            `json:"display_name"`
	DisplayPicture    string            `json:"display_picture,omitempty"`
	LastMessageID     *uuid.UUID        `json:"last_message_id,omitempty"`
	TotalMessageCount int64             `json:"total_message_count"`
	UnreadCounters    map[uuid.UUID]int `json:"unread_counters"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// HasMember reports whether id is in Members.
func (c *Conversation) HasMember(id uuid.UUID) bool {
	return c.memberIndex(id) >= 0
}

// Member returns the profile of a member, if present.
func (c *Conversation) Member(id uuid.UUID) (ProfileRef, bool) {
	i := c.memberIndex(id)
	if i < 0 {
		return ProfileRef{}, false
	}
	return c.Members[i], true
}

func (c *Conversation) IsAdmin(id uuid.UUID) bool {
	return slices.Contains(c.Admins, id)
}

func (c *Conversation) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}

func (c *Conversation) memberIndex(id uuid.UUID) int {
	return slices.IndexFunc(c.Members, func(m ProfileRef) bool { return m.ID == id })
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Members = slices.Clone(c.Members)
	out.Admins = slices.Clone(c.Admins)
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		out.LastMessageID = &id
	}
	out.UnreadCounters = make(map[uuid.UUID]int, len(c.UnreadCounters))
	for k, v := range c.UnreadCounters {
		out.UnreadCounters[k] = v
	}
	return &out
}

// CheckInvariants validates membership, admin and counter consistency.
func (c *Conversation) CheckInvariants() error {
	seen := make(map[uuid.UUID]struct{}, len(c.Members))
	for _, m := range c.Members {
		if _, dup := seen[m.ID]; dup {
			return invariantError("duplicate member %s", m.ID)
		}
		seen[m.ID] = struct{}{}
	}

	for _, a := range c.Admins {
		if _, ok := seen[a]; !ok {
			return invariantError("admin %s is not a member", a)
		}
	}

	if !c.IsGroup {
		if len(c.Members) != 2 {
			return invariantError("direct conversation has %d members", len(c.Members))
		}
		if len(c.Admins) != 0 {
			return invariantError("direct conversation has admins")
		}
	} else if len(c.Members) > 0 && len(c.Admins) == 0 {
		return invariantError("group conversation has no admin")
	}

	if len(c.UnreadCounters) != len(c.Members) {
		return invariantError("unread counters out of step with members")
	}
	for id := range c.UnreadCounters {
		if _, ok := seen[id]; !ok {
			return invariantError("unread counter for non-member %s", id)
		}
	}
	return nil
}

func invariantError(format string, args ...any) error {
	return &Error{Kind: ErrInvalidState, Code: "INVARIANT_VIOLATION", Message: fmt.Sprintf(format, args...)}
}

// PairKey returns an order-independent key for two users.
func PairKey(a, b uuid.UUID) string {
	if a.String() > b.String() {
		a, b = b, a
	}
	return a.String() + ":" + b.String()
}
