package domain

import (
	"github.com/google/uuid"
)

// User is the subset of the identity record this service reads.
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
}

func (u *User) Profile() ProfileRef {
	p := ProfileRef{ID: u.ID, DisplayName: u.DisplayName}
	if p.DisplayName == "" {
		p.DisplayName = u.Username
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	return p
}
