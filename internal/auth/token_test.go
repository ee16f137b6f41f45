package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestParseToken(t *testing.T) {
	userID := uuid.New()

	token, err := IssueToken(userID, secret, time.Minute)
	require.NoError(t, err)

	got, err := ParseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestParseTokenRejects(t *testing.T) {
	userID := uuid.New()

	expired, err := IssueToken(userID, secret, -time.Minute)
	require.NoError(t, err)

	wrongKey, err := IssueToken(userID, "other", time.Minute)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "not-a-uuid"}).
		SignedString([]byte(secret))
	require.NoError(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: userID.String()}).
		SignedString([]byte(secret))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":     expired,
		"wrong key":   wrongKey,
		"bad subject": badSubject,
		"wrong alg":   wrongAlg,
		"garbage":     "abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(tok, secret)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
