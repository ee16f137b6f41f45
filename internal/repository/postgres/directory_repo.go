package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsechat/internal/domain"
)

// DirectoryRepo reads identities and friendships owned by the identity service.
type DirectoryRepo struct {
	pool *pgxpool.Pool
}

func NewDirectoryRepo(pool *pgxpool.Pool) *DirectoryRepo {
	return &DirectoryRepo{pool: pool}
}

func (r *DirectoryRepo) ResolveProfile(ctx context.Context, userID uuid.UUID) (*domain.ProfileRef, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, display_name, avatar_url FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	p := u.Profile()
	return &p, nil
}

// IsFriend checks the pulsemates table, which stores each pair once with user1_id < user2_id.
func (r *DirectoryRepo) IsFriend(ctx context.Context, userID, otherID uuid.UUID) (bool, error) {
	u1, u2 := userID, otherID
	if u1.String() > u2.String() {
		u1, u2 = u2, u1
	}
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM pulsemates WHERE user1_id = $1 AND user2_id = $2)`,
		u1, u2,
	).Scan(&exists)
	return exists, classify(err)
}
