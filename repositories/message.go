package repositories

import (
	"business-connect/domain"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	GetMessages(key domain.ConversationKey) ([]domain.Message, error)
	GetRecentMessages(key domain.ConversationKey, limit int) ([]domain.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

// NewMessageRepository keeps at most limitMessages per history read when set.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{conversation}:{timestamp_padded}:{id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Keep two messages stored at the same nanosecond apart through their id.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), encodeMessage(message))
	})
}

// GetMessages returns the history of a conversation, oldest first.
// With a limit configured only the latest messages are kept.
func (m MessageRepository) GetMessages(key domain.ConversationKey) ([]domain.Message, error) {
	limit := 0
	if m.limitMessages != nil {
		limit = *m.limitMessages
	}
	return m.scan(key, limit)
}

// GetRecentMessages returns the latest limit messages, oldest first.
func (m MessageRepository) GetRecentMessages(key domain.ConversationKey, limit int) ([]domain.Message, error) {
	return m.scan(key, limit)
}

// scan walks the conversation backwards from the newest key, so a limit
// keeps the tail of the history.
func (m MessageRepository) scan(key domain.ConversationKey, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", key))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Past the newest possible timestamp, then back
		it.Seek(append(prefix, []byte("9999999999999999999")...))

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				m.log.Debug("Message limit reached", "conversation", key, "limit", limit)
				break
			}
			err := it.Item().Value(func(value []byte) error {
				message, err := DecodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}

func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		message.ConversationKey,
		message.CreatedAt.UnixNano(),
		message.ID,
	))
}
