package workers

import (
	"business-connect/domain"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestEventFanout_Delivers_To_Every_Listener(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	fanout := NewEventFanout(log, "messages", 8)

	first := make(chan domain.Message, 1)
	second := make(chan domain.Message, 1)
	_, err := fanout.SubscribeToNewMessages(context.Background(), "messages", func(m domain.Message) { first <- m })
	req.NoError(err)
	_, err = fanout.SubscribeToNewMessages(context.Background(), "messages", func(m domain.Message) { second <- m })
	req.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	// When one insert is published
	fanout.Publish(domain.Message{ID: "m1"})

	// Then both listeners receive it
	for _, ch := range []chan domain.Message{first, second} {
		select {
		case msg := <-ch:
			req.Equal("m1", msg.ID)
		case <-time.After(time.Second):
			req.Fail("Listener did not receive the insert")
		}
	}
}

func TestEventFanout_Unsubscribe_Stops_Delivery(t *testing.T) {
	req := require.New(t)
	fanout := NewEventFanout(slog.Default(), "messages", 8)

	received := 0
	sub, err := fanout.SubscribeToNewMessages(context.Background(), "messages", func(domain.Message) { received++ })
	req.NoError(err)

	// Given the listener is gone
	req.NoError(sub.Unsubscribe())

	// When an insert is fanned out
	fanout.Fanout(domain.Message{ID: "m1"})

	// Then nothing is delivered
	req.Zero(received)
}

func TestEventFanout_Stop_Ends_Subscriptions(t *testing.T) {
	req := require.New(t)
	fanout := NewEventFanout(slog.Default(), "messages", 1)
	sub, err := fanout.SubscribeToNewMessages(context.Background(), "messages", func(domain.Message) {})
	req.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = fanout.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		req.Fail("Subscription should end with the fan-out")
	}
}

func TestEventFanout_Publish_Drops_When_Full(t *testing.T) {
	fanout := NewEventFanout(slog.Default(), "messages", 1)

	// Not running, so the second publish finds a full queue and must not block
	fanout.Publish(domain.Message{ID: "m1"})
	fanout.Publish(domain.Message{ID: "m2"})

	require.Len(t, fanout.inserted, 1)
}
