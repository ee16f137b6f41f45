// Package membership decides who may administer a conversation and how its member and admin
// sets evolve. Every function is pure: the input conversation is never modified.
package membership

import (
	"slices"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// CanAdminister reports whether actor holds admin rights. Direct conversations have none.
func CanAdminister(c *domain.Conversation, actorID uuid.UUID) bool {
	return c.IsGroup && c.IsAdmin(actorID)
}

// CanDeleteConversation reports whether actor may delete the conversation: an admin for
// groups, either participant for direct conversations.
func CanDeleteConversation(c *domain.Conversation, actorID uuid.UUID) bool {
	if c.IsGroup {
		return CanAdminister(c, actorID)
	}
	return c.HasMember(actorID)
}

func AddMember(c *domain.Conversation, newMember domain.ProfileRef, actorID uuid.UUID) (*domain.Conversation, error) {
	if !CanAdminister(c, actorID) {
		return nil, domain.ErrNotAdmin
	}
	if c.HasMember(newMember.ID) {
		return nil, domain.ErrAlreadyMember
	}

	out := c.Clone()
	out.Members = append(out.Members, newMember)
	out.UnreadCounters[newMember.ID] = 0
	return out, nil
}

// RemoveMember returns a nil conversation when the last member leaves; the caller must then
// delete the conversation and everything it owns.
func RemoveMember(c *domain.Conversation, targetID, actorID uuid.UUID) (*domain.Conversation, error) {
	if !CanAdminister(c, actorID) {
		return nil, domain.ErrNotAdmin
	}
	if !c.HasMember(targetID) {
		return nil, domain.ErrNotAMember
	}
	if c.IsAdmin(targetID) && targetID != actorID {
		return nil, domain.ErrCannotRemoveAdmin
	}

	out := c.Clone()
	out.Members = slices.DeleteFunc(out.Members, func(m domain.ProfileRef) bool { return m.ID == targetID })
	out.Admins = slices.DeleteFunc(out.Admins, func(id uuid.UUID) bool { return id == targetID })
	delete(out.UnreadCounters, targetID)

	if len(out.Members) == 0 {
		return nil, nil
	}
	if len(out.Admins) == 0 {
		out.Admins = append(out.Admins, out.Members[0].ID)
	}
	return out, nil
}

func AddAdmin(c *domain.Conversation, targetID, actorID uuid.UUID) (*domain.Conversation, error) {
	if !CanAdminister(c, actorID) {
		return nil, domain.ErrNotAdmin
	}
	if !c.HasMember(targetID) {
		return nil, domain.ErrNotAMember
	}
	if c.IsAdmin(targetID) {
		return nil, domain.ErrAlreadyAdmin
	}

	out := c.Clone()
	out.Admins = append(out.Admins, targetID)
	return out, nil
}

// RemoveAdmin demotes target. When that empties the admin set, the first member other than
// target is promoted so a demoted admin is never immediately re-promoted.
func RemoveAdmin(c *domain.Conversation, targetID, actorID uuid.UUID) (*domain.Conversation, error) {
	if !CanAdminister(c, actorID) {
		return nil, domain.ErrNotAdmin
	}
	if !c.IsAdmin(targetID) {
		return nil, domain.ErrNotAnAdmin
	}

	out := c.Clone()
	out.Admins = slices.DeleteFunc(out.Admins, func(id uuid.UUID) bool { return id == targetID })
	if len(out.Admins) > 0 {
		return out, nil
	}

	i := slices.IndexFunc(out.Members, func(m domain.ProfileRef) bool { return m.ID != targetID })
	if i < 0 {
		return nil, domain.ErrNoPromotableMember
	}
	out.Admins = append(out.Admins, out.Members[i].ID)
	return out, nil
}

func Rename(c *domain.Conversation, name string, actorID uuid.UUID) (*domain.Conversation, error) {
	if !CanAdminister(c, actorID) {
		return nil, domain.ErrNotAdmin
	}
	out := c.Clone()
	out.DisplayName = name
	return out, nil
}

func SetDisplayPicture(c *domain.Conversation, url string, actorID uuid.UUID) (*domain.Conversation, error) {
	if !CanAdminister(c, actorID) {
		return nil, domain.ErrNotAdmin
	}
	out := c.Clone()
	out.DisplayPicture = url
	return out, nil
}
