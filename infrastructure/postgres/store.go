// Package postgres talks to the messages tables directly, for self-hosted
// deployments of the same schema the hosted backend exposes.
package postgres

import (
	"business-connect/contract"
	"business-connect/domain"
	bcerrors "business-connect/errors"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

const checkViolation = "23514"

func NewDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	return db, db.PingContext(ctx)
}

// Migrate creates the tables and the insert notification trigger.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

type Store struct {
	DB *sql.DB
}

var (
	_ contract.MessageStore = (*Store)(nil)
	_ contract.ReadTracker  = (*Store)(nil)
)

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateMessage(ctx context.Context, key domain.ConversationKey, senderID domain.UserID, text string) (domain.Ack, error) {
	var ack domain.Ack
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, string(key), string(senderID), text).Scan(&ack.ID, &ack.CreatedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
			return domain.Ack{}, fmt.Errorf("%w: %s", bcerrors.ErrMessageTooLarge, pgErr.Message)
		}
		return domain.Ack{}, err
	}
	ack.CreatedAt = ack.CreatedAt.UTC()
	return ack, nil
}

func (s *Store) ListMessages(ctx context.Context, key domain.ConversationKey) ([]domain.Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, string(key))
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (s *Store) PollRecentMessages(ctx context.Context, key domain.ConversationKey, limit int) ([]domain.Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, created_at
		FROM (
			SELECT id, conversation_id, sender_id, content, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`, string(key), limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// MarkRead upserts the reader's marker, never moving it backwards.
func (s *Store) MarkRead(ctx context.Context, key domain.ConversationKey, reader domain.UserID, upTo domain.Message) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO conversation_reads (conversation_id, user_id, last_read_message_id, last_read_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, user_id) DO UPDATE
		SET last_read_message_id = EXCLUDED.last_read_message_id,
		    last_read_at = EXCLUDED.last_read_at
		WHERE conversation_reads.last_read_at < EXCLUDED.last_read_at
	`, string(key), string(reader), upTo.ID, upTo.CreatedAt)
	return err
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer rows.Close()
	var messages []domain.Message
	for rows.Next() {
		var (
			msg       domain.Message
			key       string
			sender    string
			createdAt time.Time
		)
		if err := rows.Scan(&msg.ID, &key, &sender, &msg.Text, &createdAt); err != nil {
			return nil, err
		}
		msg.ConversationKey = domain.ConversationKey(key)
		msg.SenderID = domain.UserID(sender)
		msg.CreatedAt = createdAt.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
