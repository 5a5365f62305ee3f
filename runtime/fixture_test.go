package runtime

import (
	"business-connect/domain"
	"business-connect/mocks"
	"business-connect/observability"
	"business-connect/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/mock/gomock"
)

// screen plays the UI: it keeps what a user would currently see.
type screen struct {
	mu         sync.Mutex
	rendered   []domain.Message
	incoming   int
	loadErrors []error
	restored   []string
	failures   []error
}

func (s *screen) OnHistory(_ domain.ConversationKey, messages []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendered = append([]domain.Message(nil), messages...)
}

func (s *screen) OnProvisionalMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendered = append(s.rendered, msg)
}

func (s *screen) OnConfirmedMessage(provisionalID string, confirmed domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.rendered {
		if msg.ID == provisionalID {
			s.rendered[i] = confirmed
		}
	}
}

func (s *screen) OnProvisionalRollback(provisionalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rendered[:0]
	for _, msg := range s.rendered {
		if msg.ID != provisionalID {
			kept = append(kept, msg)
		}
	}
	s.rendered = kept
}

func (s *screen) OnIncomingMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incoming++
	s.rendered = append(s.rendered, msg)
}

func (s *screen) OnLoadFailed(_ domain.ConversationKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErrors = append(s.loadErrors, err)
}

func (s *screen) RestoreInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restored = append(s.restored, text)
}

func (s *screen) NotifyFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

func (s *screen) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rendered))
	for _, msg := range s.rendered {
		ids = append(ids, msg.ID)
	}
	return ids
}

func (s *screen) snapshot() (restored []string, failures, loadErrors []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.restored...),
		append([]error(nil), s.failures...),
		append([]error(nil), s.loadErrors...)
}

type fixture struct {
	engine  *Engine
	store   *mocks.MockMessageStore
	screen  *screen
	monitor *observability.MessagingMonitor
	// stop ends Run and waits for it to return.
	stop func()
}

// newFixture runs an engine signed in as u_a, polling every few milliseconds.
func newFixture(t *testing.T, ctrl *gomock.Controller) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := mocks.NewMockMessageStore(ctrl)
	session := mocks.NewMockIdentityProvider(ctrl)
	session.EXPECT().CurrentUserID().Return(domain.UserID("u_a"), true).AnyTimes()
	ui := &screen{}
	monitor := observability.NewMessagingMonitor(prometheus.NewRegistry())

	engine := NewEngine(log, workers.NewSupervisor(log, 10*time.Millisecond), workers.NewEventLoop(log, 64),
		store, session, ui, ui, monitor).
		WithPolling(5*time.Millisecond, 20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()
	stop := func() {
		cancel()
		<-done
	}
	t.Cleanup(stop)
	return &fixture{engine: engine, store: store, screen: ui, monitor: monitor, stop: stop}
}

func waitActive(t *testing.T, conv *Conversation) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for conv.State() != domain.ViewActive {
		if time.Now().After(deadline) {
			t.Fatalf("conversation %s stuck in %s", conv.Key, conv.State())
		}
		time.Sleep(time.Millisecond)
	}
}
