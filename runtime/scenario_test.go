package runtime

import (
	"business-connect/domain"
	bcerrors "business-connect/errors"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestScenario_Alice_Talks_To_Bob(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl)
	key := domain.ResolveConversationKey("u_a", "u_b")
	req.EqualValues("u_a_u_b", key)

	m2 := domain.Message{ID: "m2", ConversationKey: key, SenderID: "u_b", Text: "hey", CreatedAt: at.Add(time.Second)}
	f.store.EXPECT().ListMessages(gomock.Any(), key).Return(nil, nil)
	f.store.EXPECT().PollRecentMessages(gomock.Any(), key, gomock.Any()).Return(nil, nil).AnyTimes()
	f.store.EXPECT().CreateMessage(gomock.Any(), key, domain.UserID("u_a"), "hi bob").
		DoAndReturn(func(context.Context, domain.ConversationKey, domain.UserID, string) (domain.Ack, error) {
			time.Sleep(50 * time.Millisecond)
			return domain.Ack{ID: "m1", CreatedAt: at}, nil
		})

	// Given alice opened the conversation with bob
	conv, err := f.engine.Open(context.Background(), "u_b")
	req.NoError(err)
	waitActive(t, conv)

	// When she sends "hi bob", it shows instantly
	receipt, err := conv.Send(context.Background(), "hi bob")
	req.NoError(err)
	req.Equal([]string{receipt.Provisional.ID}, f.screen.ids())

	// When the store resolves, the entry takes id m1
	_, err = receipt.Wait(context.Background())
	req.NoError(err)
	req.Equal([]string{"m1"}, f.screen.ids())

	// When bob's reply is pushed and then redelivered by a poll
	req.NoError(f.engine.Observe(context.Background(), m2))
	req.NoError(f.engine.Observe(context.Background(), m2))

	// Then each message is on screen exactly once, in order
	req.Equal([]string{"m1", "m2"}, f.screen.ids())
	messages, err := conv.Messages(context.Background())
	req.NoError(err)
	req.Equal([]string{"m1", "m2"}, []string{messages[0].ID, messages[1].ID})
}

func TestScenario_View_Closed_While_Send_In_Flight(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl)
	f.store.EXPECT().ListMessages(gomock.Any(), gomock.Any()).Return(nil, nil)
	f.store.EXPECT().PollRecentMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	release := make(chan struct{})
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any(), "late").
		DoAndReturn(func(ctx context.Context, _ domain.ConversationKey, _ domain.UserID, _ string) (domain.Ack, error) {
			<-release
			// The view is gone but the write is not canceled
			if ctx.Err() != nil {
				return domain.Ack{}, ctx.Err()
			}
			return domain.Ack{}, errors.New("insert rejected")
		})

	conv, err := f.engine.Open(context.Background(), "u_b")
	req.NoError(err)
	waitActive(t, conv)
	receipt, err := conv.Send(context.Background(), "late")
	req.NoError(err)

	// When the view closes before the store answers
	req.NoError(conv.Close(context.Background()))
	close(release)
	_, err = receipt.Wait(context.Background())

	// Then the failure is still reported, but there is no input to restore
	req.ErrorIs(err, bcerrors.ErrPersistenceFailure)
	req.ErrorContains(err, "insert rejected")
	restored, failures, _ := f.screen.snapshot()
	req.Empty(restored)
	req.Len(failures, 1)
}

func TestScenario_Client_Stops_While_Send_In_Flight(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl)
	f.store.EXPECT().ListMessages(gomock.Any(), gomock.Any()).Return(nil, nil)
	f.store.EXPECT().PollRecentMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	release := make(chan struct{})
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any(), "bye").
		DoAndReturn(func(context.Context, domain.ConversationKey, domain.UserID, string) (domain.Ack, error) {
			<-release
			return domain.Ack{ID: "m1", CreatedAt: at}, nil
		})

	conv, err := f.engine.Open(context.Background(), "u_b")
	req.NoError(err)
	waitActive(t, conv)
	receipt, err := conv.Send(context.Background(), "bye")
	req.NoError(err)

	// Given the loop is busy when the store answers, so the reconciliation queues up
	started := make(chan struct{})
	hold := make(chan struct{})
	req.NoError(f.engine.loop.Post(context.Background(), func() {
		close(started)
		<-hold
	}))
	<-started
	close(release)
	req.Eventually(func() bool { return f.engine.loop.Pending() == 1 }, time.Second, time.Millisecond)

	// When the client stops before the loop gets to it
	go f.stop()
	time.Sleep(10 * time.Millisecond)
	close(hold)

	// Then the receipt still settles
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = receipt.Wait(ctx)
	req.ErrorIs(err, bcerrors.ErrEventLoopStopped)
}
