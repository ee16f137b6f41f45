package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsechat/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id, conversation_id, sender, content, replied_to, created_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		msg    domain.Message
		sender []byte
	)
	if err := row.Scan(&msg.ID, &msg.ConversationID, &sender, &msg.Content, &msg.RepliedTo, &msg.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sender, &msg.Sender); err != nil {
		return nil, fmt.Errorf("decoding sender: %w", err)
	}
	return &msg, nil
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	sender, err := json.Marshal(msg.Sender)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO conversation_messages (id, conversation_id, sender, content, replied_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, sender, msg.Content, msg.RepliedTo, msg.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return domain.ErrConversationNotFound
	}
	return classify(err)
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM conversation_messages WHERE id = $1`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, classify(err)
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	var query string
	var args []any

	if before != nil {
		query = fmt.Sprintf(`
			SELECT %s
			FROM conversation_messages
			WHERE conversation_id = $1
				AND seq < (SELECT seq FROM conversation_messages WHERE id = $2 AND conversation_id = $1)
			ORDER BY seq DESC
			LIMIT %d`, messageColumns, limit)
		args = []any{conversationID, *before}
	} else {
		query = fmt.Sprintf(`
			SELECT %s
			FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT %d`, messageColumns, limit)
		args = []any{conversationID}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, classify(rows.Err())
}

func (r *MessageRepo) CountByConversation(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversation_messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&n)
	return n, classify(err)
}

func (r *MessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM conversation_messages WHERE id = $1`, id)
	return classify(err)
}
