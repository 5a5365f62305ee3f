// Package local is the embedded backend: messages live in badger on this
// machine and inserts are fanned out in process.
package local

import (
	"business-connect/contract"
	"business-connect/domain"
	"business-connect/repositories"
	"business-connect/runtime/workers"
	"context"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	messages repositories.IMessageRepository
	reads    repositories.IReadMarkerRepository
	fanout   *workers.EventFanout
	now      func() time.Time
}

var (
	_ contract.MessageStore = (*Store)(nil)
	_ contract.ReadTracker  = (*Store)(nil)
)

// NewStore publishes every created message on fanout when it is not nil.
func NewStore(messages repositories.IMessageRepository, reads repositories.IReadMarkerRepository,
	fanout *workers.EventFanout) *Store {
	return &Store{messages: messages, reads: reads, fanout: fanout, now: time.Now}
}

func (s *Store) CreateMessage(ctx context.Context, key domain.ConversationKey, senderID domain.UserID, text string) (domain.Ack, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ack{}, err
	}
	msg := domain.Message{
		ID:              uuid.NewString(),
		ConversationKey: key,
		SenderID:        senderID,
		Text:            text,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.messages.StoreMessage(msg); err != nil {
		return domain.Ack{}, err
	}
	if s.fanout != nil {
		s.fanout.Publish(msg)
	}
	return domain.Ack{ID: msg.ID, CreatedAt: msg.CreatedAt}, nil
}

func (s *Store) ListMessages(ctx context.Context, key domain.ConversationKey) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.messages.GetMessages(key)
}

func (s *Store) PollRecentMessages(ctx context.Context, key domain.ConversationKey, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.messages.GetRecentMessages(key, limit)
}

func (s *Store) MarkRead(ctx context.Context, key domain.ConversationKey, reader domain.UserID, upTo domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.reads.SaveReadMarker(key, reader, upTo)
}
