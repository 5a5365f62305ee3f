package e2e

import (
	"business-connect/auth"
	"business-connect/domain"
	"business-connect/infrastructure/supabase"
	"business-connect/observability"
	"business-connect/runtime"
	"business-connect/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

// Participant is one signed-in client against the hosted backend.
// It records what its renderer was told.
type Participant struct {
	UserID domain.UserID
	Engine *runtime.Engine

	mu       sync.Mutex
	incoming []domain.Message
	failures []error
}

func NewParticipant(ctx context.Context, config Config, token string) (*Participant, error) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	session := auth.NewSession(nil)
	if err := session.SignIn(token); err != nil {
		return nil, err
	}
	userID, _ := session.CurrentUserID()
	rt, err := supabase.NewRealtime(log, config.SupabaseURL, config.SupabaseAnonKey, session, 5*time.Second)
	if err != nil {
		return nil, err
	}
	client := supabase.NewClient(config.SupabaseURL, config.SupabaseAnonKey, session, 10*time.Second)

	p := &Participant{UserID: userID}
	p.Engine = runtime.NewEngine(log, workers.NewSupervisor(log, 100*time.Millisecond),
		workers.NewEventLoop(log, 64), client, session, p, p,
		observability.NewMessagingMonitor(prometheus.NewRegistry())).
		WithSubscriber(rt, runtime.DefaultTable).
		WithReadTracker(client).
		WithPolling(time.Second, 50)
	go p.Engine.Run(ctx)
	return p, nil
}

// Received reports whether an incoming message with text was rendered.
func (p *Participant) Received(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.ContainsBy(p.incoming, func(msg domain.Message) bool { return msg.Text == text })
}

func (p *Participant) Failures() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.failures...)
}

func (p *Participant) OnHistory(domain.ConversationKey, []domain.Message) {}
func (p *Participant) OnProvisionalMessage(domain.Message) {}
func (p *Participant) OnConfirmedMessage(string, domain.Message) {}
func (p *Participant) OnProvisionalRollback(string) {}
func (p *Participant) RestoreInput(string) {}

func (p *Participant) OnIncomingMessage(msg domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.incoming = append(p.incoming, msg)
}

func (p *Participant) OnLoadFailed(_ domain.ConversationKey, err error) {
	p.NotifyFailure(err)
}

func (p *Participant) NotifyFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, err)
}
