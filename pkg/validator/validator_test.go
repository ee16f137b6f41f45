package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateGroup(t *testing.T) {
	assert.False(t, ValidateGroup("Team", "", 2).HasErrors())
	assert.False(t, ValidateGroup("Team", "https://cdn.example.com/a.png", 1).HasErrors())

	errs := ValidateGroup("  ", "ftp://x", 0)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "display_picture")
	assert.Contains(t, errs, "member_ids")

	errs = ValidateGroup(strings.Repeat("n", MaxGroupNameLength+1), "", 1)
	assert.Equal(t, "Group name is too long", errs["name"])
}

func TestValidateGroupUpdate(t *testing.T) {
	name := "New name"
	empty := ""

	assert.False(t, ValidateGroupUpdate(&name, nil).HasErrors())
	assert.False(t, ValidateGroupUpdate(nil, &empty).HasErrors())
	assert.Contains(t, ValidateGroupUpdate(nil, nil), "body")
	assert.Contains(t, ValidateGroupUpdate(&empty, nil), "name")
}

func TestValidateMessage(t *testing.T) {
	assert.False(t, ValidateMessage("hi").HasErrors())
	assert.Contains(t, ValidateMessage(" \n "), "content")
	assert.Contains(t, ValidateMessage(strings.Repeat("x", MaxMessageLength+1)), "content")
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "hello", SanitizeText(" <b>hello</b> "))
	assert.Equal(t, "", SanitizeText(`<script>alert(1)</script>`))
	assert.Equal(t, "fish & chips", SanitizeText("fish & chips"))
}
