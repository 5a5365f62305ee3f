// Package redis relays inserted messages between client processes over
// Redis pub/sub, for stores that cannot push on their own.
package redis

import (
	"business-connect/contract"
	"business-connect/domain"
	bcerrors "business-connect/errors"
	"business-connect/infrastructure/realtime"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// ChannelFor names the pub/sub channel carrying a table's inserts.
func ChannelFor(table string) string {
	return "insert:" + table
}

// Relay is a MessageStore that publishes every created message after the
// wrapped store accepted it.
type Relay struct {
	contract.MessageStore
	log    *slog.Logger
	client *redis.Client
	table  string
}

func NewRelay(log *slog.Logger, store contract.MessageStore, client *redis.Client, table string) *Relay {
	return &Relay{MessageStore: store, log: log, client: client, table: table}
}

// CreateMessage never fails because of the relay: receivers still poll when
// a publish is lost.
func (r *Relay) CreateMessage(ctx context.Context, key domain.ConversationKey, senderID domain.UserID, text string) (domain.Ack, error) {
	ack, err := r.MessageStore.CreateMessage(ctx, key, senderID, text)
	if err != nil {
		return ack, err
	}
	payload, err := json.Marshal(realtime.FromMessage(domain.Message{
		ID:              ack.ID,
		ConversationKey: key,
		SenderID:        senderID,
		Text:            text,
		CreatedAt:       ack.CreatedAt,
	}))
	if err != nil {
		r.log.Warn("Insert not relayed", "id", ack.ID, "error", err)
		return ack, nil
	}
	if err := r.client.Publish(ctx, ChannelFor(r.table), payload).Err(); err != nil {
		r.log.Warn("Insert not relayed", "id", ack.ID, "error", err)
	}
	return ack, nil
}

type Subscriber struct {
	log         *slog.Logger
	client      *redis.Client
	joinTimeout time.Duration
}

var _ contract.Subscriber = (*Subscriber)(nil)

func NewSubscriber(log *slog.Logger, client *redis.Client, joinTimeout time.Duration) *Subscriber {
	return &Subscriber{log: log, client: client, joinTimeout: joinTimeout}
}

func (s *Subscriber) SubscribeToNewMessages(ctx context.Context, table string, onInsert func(domain.Message)) (contract.Subscription, error) {
	channel := ChannelFor(table)
	pubsub := s.client.Subscribe(ctx, channel)

	// Wait for the subscription confirmation before reporting success
	joinCtx, cancel := context.WithTimeout(ctx, s.joinTimeout)
	defer cancel()
	if _, err := pubsub.Receive(joinCtx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", bcerrors.ErrSubscriptionUnavailable, channel, err)
	}

	stop := make(chan struct{})
	handle := realtime.NewHandle(func() error {
		close(stop)
		return pubsub.Close()
	})

	go func() {
		s.log.Debug("Subscribed to inserts", "channel", channel)
		ch := pubsub.Channel()
		for {
			select {
			case <-stop:
				return
			case msg, ok := <-ch:
				if !ok {
					s.log.Warn("Pub/sub channel closed", "channel", channel)
					handle.Terminate()
					return
				}
				inserted, err := realtime.DecodeRow([]byte(msg.Payload))
				if err != nil {
					s.log.Warn("Malformed insert payload", "channel", channel, "error", err)
					continue
				}
				onInsert(inserted)
			}
		}
	}()
	return handle, nil
}
