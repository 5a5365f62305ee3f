package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"business-connect/domain"
	"business-connect/runtime/workers"
)

type testConversationSuite struct {
	BaseSuite
}

func TestConversationSuite(t *testing.T) {
	suite.Run(t, &testConversationSuite{})
}

func (s *testConversationSuite) TestClientReportsServing() {
	s.WithHealth("Health of the running client", func(ctx context.Context, client healthpb.HealthClient) {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: workers.ServiceName})
		s.Require().NoError(err)
		s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	})
}

func (s *testConversationSuite) TestAliceAndBob() {
	if s.Config.SupabaseURL == "" || s.Config.AliceToken == "" || s.Config.BobToken == "" {
		s.T().Skip("SUPABASE_URL, E2E_ALICE_TOKEN and E2E_BOB_TOKEN are required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice, err := NewParticipant(ctx, s.Config, s.Config.AliceToken)
	s.Require().NoError(err)
	bob, err := NewParticipant(ctx, s.Config, s.Config.BobToken)
	s.Require().NoError(err)
	text := fmt.Sprintf("hi bob %s", uuid.NewString()[:8])

	s.Run("Step 1: Both open the same conversation", func() {
		s.Step(s.T(), "Open")
		aliceView, err := alice.Engine.Open(ctx, bob.UserID)
		s.Require().NoError(err)
		bobView, err := bob.Engine.Open(ctx, alice.UserID)
		s.Require().NoError(err)
		s.Require().Equal(aliceView.Key, bobView.Key)
		s.Require().Eventually(func() bool {
			return aliceView.State() == domain.ViewActive && bobView.State() == domain.ViewActive
		}, 10*time.Second, 100*time.Millisecond)
	})

	s.Run("Step 2: Alice sends, the store confirms", func() {
		s.Step(s.T(), "Send")
		view, err := alice.Engine.Active(ctx)
		s.Require().NoError(err)
		receipt, err := view.Send(ctx, text)
		s.Require().NoError(err)
		waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
		defer waitCancel()
		confirmed, err := receipt.Wait(waitCtx)
		s.Require().NoError(err)
		s.Require().NotEmpty(confirmed.ID)
		s.Require().False(confirmed.IsProvisional())
	})

	s.Run("Step 3: Bob sees it exactly once", func() {
		s.Step(s.T(), "Receive")
		s.Require().Eventually(func() bool { return bob.Received(text) }, 15*time.Second, 100*time.Millisecond)
		view, err := bob.Engine.Active(ctx)
		s.Require().NoError(err)
		messages, err := view.Messages(ctx)
		s.Require().NoError(err)
		count := 0
		for _, msg := range messages {
			if msg.Text == text {
				count++
			}
		}
		s.Require().Equal(1, count)
		s.Require().False(alice.Received(text), "Own message must not come back as incoming")
		s.Require().Empty(alice.Failures())
		s.Require().Empty(bob.Failures())
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	s.Require().NoError(alice.Engine.Shutdown(shutdownCtx))
	s.Require().NoError(bob.Engine.Shutdown(shutdownCtx))
}
