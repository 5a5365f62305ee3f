package postgres

import (
	"business-connect/contract"
	"business-connect/domain"
	bcerrors "business-connect/errors"
	"business-connect/infrastructure/realtime"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Listener turns the insert trigger's notifications into a Subscription.
// Each subscription holds its own connection.
type Listener struct {
	log                  *slog.Logger
	url                  string
	minReconnectInterval time.Duration
	maxReconnectInterval time.Duration
	joinTimeout          time.Duration
}

var _ contract.Subscriber = (*Listener)(nil)

func NewListener(log *slog.Logger, url string, joinTimeout time.Duration) *Listener {
	return &Listener{
		log:                  log,
		url:                  url,
		minReconnectInterval: 500 * time.Millisecond,
		maxReconnectInterval: 10 * time.Second,
		joinTimeout:          joinTimeout,
	}
}

// ChannelFor names the notification channel of a table's insert trigger.
func ChannelFor(table string) string {
	return table + "_insert"
}

func (l *Listener) SubscribeToNewMessages(ctx context.Context, table string, onInsert func(domain.Message)) (contract.Subscription, error) {
	channel := ChannelFor(table)
	listener := pq.NewListener(l.url, l.minReconnectInterval, l.maxReconnectInterval,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				l.log.Warn("Postgres listener event", "channel", channel, "event", event, "error", err)
			}
		})

	// Listen blocks for as long as the server is unreachable
	listened := make(chan error, 1)
	go func() { listened <- listener.Listen(channel) }()

	timer := time.NewTimer(l.joinTimeout)
	defer timer.Stop()
	select {
	case err := <-listened:
		if err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("%w: listen %s: %v", bcerrors.ErrSubscriptionUnavailable, channel, err)
		}
	case <-timer.C:
		go func() { _ = listener.Close() }()
		return nil, fmt.Errorf("%w: listen %s: timeout", bcerrors.ErrSubscriptionUnavailable, channel)
	case <-ctx.Done():
		go func() { _ = listener.Close() }()
		return nil, ctx.Err()
	}

	stop := make(chan struct{})
	handle := realtime.NewHandle(func() error {
		close(stop)
		return listener.Close()
	})
	go l.receive(listener, channel, stop, handle, onInsert)
	l.log.Debug("Listening for inserts", "channel", channel)
	return handle, nil
}

func (l *Listener) receive(listener *pq.Listener, channel string, stop <-chan struct{},
	handle *realtime.Handle, onInsert func(domain.Message)) {
	for {
		select {
		case <-stop:
			return
		case notification, ok := <-listener.Notify:
			if !ok {
				handle.Terminate()
				return
			}
			if notification == nil {
				l.log.Warn("Postgres listener reconnected, inserts may have been missed", "channel", channel)
				continue
			}
			msg, err := realtime.DecodeRow([]byte(notification.Extra))
			if err != nil {
				l.log.Warn("Malformed insert notification", "channel", channel, "error", err)
				continue
			}
			onInsert(msg)
		}
	}
}
