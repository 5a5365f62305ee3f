package local

import (
	"business-connect/domain"
	"business-connect/repositories"
	"business-connect/runtime/workers"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *workers.EventFanout) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	fanout := workers.NewEventFanout(log, "messages", 16)
	store := NewStore(repositories.NewMessageRepository(db, log, nil), repositories.NewReadMarkerRepository(db), fanout)
	return store, fanout
}

func TestStore_Create_Then_List(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t)
	ctx := context.Background()
	key := domain.ResolveConversationKey("u_a", "u_b")

	first, err := store.CreateMessage(ctx, key, "u_a", "hi bob")
	req.NoError(err)
	second, err := store.CreateMessage(ctx, key, "u_b", "hey")
	req.NoError(err)

	// Then the store assigned ids and timestamps
	req.NotEmpty(first.ID)
	req.NotEqual(first.ID, second.ID)
	req.False(second.CreatedAt.Before(first.CreatedAt))

	history, err := store.ListMessages(ctx, key)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal(first.ID, history[0].ID)
	req.Equal("hey", history[1].Text)

	recent, err := store.PollRecentMessages(ctx, key, 1)
	req.NoError(err)
	req.Len(recent, 1)
	req.Equal(second.ID, recent[0].ID)
}

func TestStore_Create_Publishes_Insert(t *testing.T) {
	req := require.New(t)
	store, fanout := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	inserted := make(chan domain.Message, 1)
	sub, err := fanout.SubscribeToNewMessages(ctx, "messages", func(msg domain.Message) { inserted <- msg })
	req.NoError(err)
	defer func() { _ = sub.Unsubscribe() }()

	ack, err := store.CreateMessage(ctx, "u_a_u_b", "u_b", "hey")
	req.NoError(err)

	select {
	case msg := <-inserted:
		req.Equal(ack.ID, msg.ID)
		req.EqualValues("u_b", msg.SenderID)
	case <-time.After(time.Second):
		req.Fail("Insert was not published")
	}
}

func TestStore_Honours_Canceled_Context(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.CreateMessage(ctx, "k", "u_a", "hi")
	req.ErrorIs(err, context.Canceled)
	_, err = store.ListMessages(ctx, "k")
	req.ErrorIs(err, context.Canceled)
}

func TestStore_MarkRead(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t)
	msg := domain.Message{ID: "m1", ConversationKey: "u_a_u_b", CreatedAt: time.Now().UTC()}

	req.NoError(store.MarkRead(context.Background(), "u_a_u_b", "u_a", msg))

	marker, err := store.reads.GetReadMarker("u_a_u_b", "u_a")
	req.NoError(err)
	req.Equal("m1", marker.ID)
}
