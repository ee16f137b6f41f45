package validator

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

const (
	MaxGroupNameLength   = 100
	MaxMessageLength     = 4000
	MaxGroupInitialUsers = 256
)

func ValidateGroup(name, displayPicture string, memberCount int) ValidationErrors {
	errs := make(ValidationErrors)

	validateGroupName(name, errs)
	validateDisplayPicture(displayPicture, errs)

	if memberCount == 0 {
		errs.Add("member_ids", "At least one member is required")
	} else if memberCount > MaxGroupInitialUsers {
		errs.Add("member_ids", "Too many members")
	}

	return errs
}

// ValidateGroupUpdate checks a partial update; nil fields are left unchanged.
func ValidateGroupUpdate(name, displayPicture *string) ValidationErrors {
	errs := make(ValidationErrors)

	if name == nil && displayPicture == nil {
		errs.Add("body", "Nothing to update")
		return errs
	}
	if name != nil {
		validateGroupName(*name, errs)
	}
	if displayPicture != nil {
		validateDisplayPicture(*displayPicture, errs)
	}

	return errs
}

func ValidateMessage(content string) ValidationErrors {
	errs := make(ValidationErrors)

	content = strings.TrimSpace(content)
	if content == "" {
		errs.Add("content", "Message content is required")
	} else if utf8.RuneCountInString(content) > MaxMessageLength {
		errs.Add("content", "Message is too long")
	}

	return errs
}

func validateGroupName(name string, errs ValidationErrors) {
	name = strings.TrimSpace(name)
	if name == "" {
		errs.Add("name", "Group name is required")
	} else if utf8.RuneCountInString(name) > MaxGroupNameLength {
		errs.Add("name", "Group name is too long")
	}
}

func validateDisplayPicture(raw string, errs ValidationErrors) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add("display_picture", "Display picture must be an http or https URL")
	}
}
