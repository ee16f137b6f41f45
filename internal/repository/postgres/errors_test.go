package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/domain"
)

func TestClassify(t *testing.T) {
	plain := errors.New("syntax error")

	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "conversations_direct_key_key"}, domain.ErrConflict},
		{"serialization failure", &pgconn.PgError{Code: codeSerializationFailure}, domain.ErrTransient},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, domain.ErrTransient},
		{"deadline", context.DeadlineExceeded, domain.ErrTransient},
		{"wrapped deadline", fmt.Errorf("acquiring connection: %w", context.DeadlineExceeded), domain.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.kind)
		})
	}

	assert.ErrorIs(t, classify(&pgconn.PgError{Code: codeUniqueViolation}), domain.ErrDuplicateConversation)
	assert.Equal(t, plain, classify(plain))
	assert.NoError(t, classify(nil))

	other := &pgconn.PgError{Code: "42P01"}
	assert.False(t, errors.Is(classify(other), domain.ErrTransient))
}

func TestDirectKey(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	direct := &domain.Conversation{Members: []domain.ProfileRef{{ID: a}, {ID: b}}}
	swapped := &domain.Conversation{Members: []domain.ProfileRef{{ID: b}, {ID: a}}}
	group := &domain.Conversation{IsGroup: true, Members: []domain.ProfileRef{{ID: a}, {ID: b}}}

	if assert.NotNil(t, directKey(direct)) {
		assert.Equal(t, *directKey(direct), *directKey(swapped))
	}
	assert.Nil(t, directKey(group))
}

func TestConversationRowDecode(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	conv := &domain.Conversation{
		ID:             uuid.New(),
		IsGroup:        true,
		Members:        []domain.ProfileRef{{ID: a, DisplayName: "a"}, {ID: b, DisplayName: "b"}},
		Admins:         []uuid.UUID{a},
		CreatedBy:      domain.ProfileRef{ID: a, DisplayName: "a"},
		UnreadCounters: map[uuid.UUID]int{a: 0, b: 7},
	}

	row, err := encodeConversation(conv)
	require.NoError(t, err)

	// Scalar columns are scanned directly; only the JSONB ones go through decodeInto.
	out := domain.Conversation{ID: conv.ID, IsGroup: conv.IsGroup}
	require.NoError(t, row.decodeInto(&out))
	assert.Equal(t, conv.Members, out.Members)
	assert.Equal(t, 7, out.UnreadCounters[b])
	assert.Equal(t, conv.Admins, out.Admins)
	assert.NoError(t, out.CheckInvariants())
}
