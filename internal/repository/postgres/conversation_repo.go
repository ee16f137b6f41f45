package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsechat/internal/domain"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

const conversationColumns = `id, is_group, members, admins, created_by, display_name, display_picture,
	last_message_id, total_message_count, unread_counters, created_at, updated_at`

// conversationRow carries the JSONB columns as raw bytes.
type conversationRow struct {
	members, admins, createdBy, unread []byte
}

func encodeConversation(conv *domain.Conversation) (conversationRow, error) {
	var (
		row conversationRow
		err error
	)
	if row.members, err = json.Marshal(conv.Members); err != nil {
		return row, err
	}
	admins := conv.Admins
	if admins == nil {
		admins = []uuid.UUID{}
	}
	if row.admins, err = json.Marshal(admins); err != nil {
		return row, err
	}
	if row.createdBy, err = json.Marshal(conv.CreatedBy); err != nil {
		return row, err
	}
	if row.unread, err = json.Marshal(conv.UnreadCounters); err != nil {
		return row, err
	}
	return row, nil
}

func (row conversationRow) decodeInto(conv *domain.Conversation) error {
	if err := json.Unmarshal(row.members, &conv.Members); err != nil {
		return fmt.Errorf("decoding members: %w", err)
	}
	if err := json.Unmarshal(row.admins, &conv.Admins); err != nil {
		return fmt.Errorf("decoding admins: %w", err)
	}
	if err := json.Unmarshal(row.createdBy, &conv.CreatedBy); err != nil {
		return fmt.Errorf("decoding created_by: %w", err)
	}
	if err := json.Unmarshal(row.unread, &conv.UnreadCounters); err != nil {
		return fmt.Errorf("decoding unread_counters: %w", err)
	}
	return nil
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var (
		conv domain.Conversation
		raw  conversationRow
	)
	err := row.Scan(
		&conv.ID, &conv.IsGroup, &raw.members, &raw.admins, &raw.createdBy,
		&conv.DisplayName, &conv.DisplayPicture, &conv.LastMessageID,
		&conv.TotalMessageCount, &raw.unread, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := raw.decodeInto(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// directKey is only set for direct conversations; its unique index stops a pair from
// getting two of them.
func directKey(conv *domain.Conversation) *string {
	if conv.IsGroup || len(conv.Members) != 2 {
		return nil
	}
	key := domain.PairKey(conv.Members[0].ID, conv.Members[1].ID)
	return &key
}

func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	row, err := encodeConversation(conv)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO conversations (id, is_group, direct_key, members, admins, created_by, display_name,
			display_picture, last_message_id, total_message_count, unread_counters, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = r.pool.Exec(ctx, query,
		conv.ID, conv.IsGroup, directKey(conv), row.members, row.admins, row.createdBy,
		conv.DisplayName, conv.DisplayPicture, conv.LastMessageID, conv.TotalMessageCount,
		row.unread, conv.CreatedAt, conv.UpdatedAt,
	)
	return classify(err)
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return conv, classify(err)
}

func (r *ConversationRepo) GetDirectByMembers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE direct_key = $1`
	conv, err := scanConversation(r.pool.QueryRow(ctx, query, domain.PairKey(user1ID, user2ID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return conv, classify(err)
}

func (r *ConversationRepo) ListByMember(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	filter, err := json.Marshal([]map[string]uuid.UUID{{"id": userID}})
	if err != nil {
		return nil, err
	}
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE members @> $1::jsonb
		ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, filter)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, classify(rows.Err())
}

func (r *ConversationRepo) Update(ctx context.Context, conv *domain.Conversation) error {
	row, err := encodeConversation(conv)
	if err != nil {
		return err
	}
	query := `
		UPDATE conversations
		SET members = $2, admins = $3, display_name = $4, display_picture = $5,
			last_message_id = $6, total_message_count = $7, unread_counters = $8, updated_at = $9
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		conv.ID, row.members, row.admins, conv.DisplayName, conv.DisplayPicture,
		conv.LastMessageID, conv.TotalMessageCount, row.unread, conv.UpdatedAt,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// DeleteCascade removes the messages and the conversation in one transaction.
func (r *ConversationRepo) DeleteCascade(ctx context.Context, id uuid.UUID) (removed int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, classify(err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = multierror.Append(err, fmt.Errorf("rollback: %w", rbErr)).ErrorOrNil()
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM conversation_messages WHERE conversation_id = $1`, id)
	if err != nil {
		return 0, classify(err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id); err != nil {
		return 0, classify(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, classify(err)
	}
	return int(tag.RowsAffected()), nil
}
