package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsechat/internal/config"
)

func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	pool, err := pgxpool.New(ctx, dsn)

	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// The users and pulsemates tables belong to the identity service; they are created here
// only so a fresh development database works.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS pulsemates (
		id UUID PRIMARY KEY,
		user1_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user2_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (user1_id < user2_id),
		UNIQUE (user1_id, user2_id)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		is_group BOOLEAN NOT NULL,
		direct_key TEXT UNIQUE,
		members JSONB NOT NULL,
		admins JSONB NOT NULL,
		created_by JSONB NOT NULL,
		display_name TEXT NOT NULL,
		display_picture TEXT NOT NULL DEFAULT '',
		last_message_id UUID,
		total_message_count BIGINT NOT NULL DEFAULT 0,
		unread_counters JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS conversations_members_idx ON conversations USING GIN (members jsonb_path_ops)`,
	`CREATE TABLE IF NOT EXISTS conversation_messages (
		id UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		seq BIGSERIAL,
		sender JSONB NOT NULL,
		content TEXT NOT NULL,
		replied_to UUID,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS conversation_messages_conv_seq_idx ON conversation_messages (conversation_id, seq DESC)`,
}

// Migrate applies the schema idempotently.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
