// Package runtime drives conversation views: history loading, optimistic sends,
// and the merge of pushed or polled inserts.
// Every state change runs on one event loop, so views never need locks.
package runtime

import (
	"business-connect/contract"
	"business-connect/observability"
	"business-connect/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultTable        = "messages"
	DefaultPollInterval = 3 * time.Second
	DefaultPollLimit    = 50
)

// Engine is the messaging core of one signed-in client.
// It holds at most one active conversation at a time.
type Engine struct {
	log        *slog.Logger
	loop       *workers.EventLoop
	supervisor contract.ISupervisor
	store      contract.MessageStore
	session    contract.IdentityProvider
	renderer   contract.Renderer
	composer   contract.Composer
	subscriber contract.Subscriber
	reads      contract.ReadTracker
	monitor    *observability.MessagingMonitor
	validate   *validator.Validate

	table        string
	pollInterval time.Duration
	pollLimit    int
	now          func() time.Time

	mu       sync.Mutex
	lifetime context.Context

	// Owned by the event loop.
	active *Conversation
	seq    uint64
}

func NewEngine(log *slog.Logger, supervisor contract.ISupervisor, loop *workers.EventLoop,
	store contract.MessageStore, session contract.IdentityProvider,
	renderer contract.Renderer, composer contract.Composer,
	monitor *observability.MessagingMonitor) *Engine {
	return &Engine{
		log:          log,
		loop:         loop,
		supervisor:   supervisor,
		store:        store,
		session:      session,
		renderer:     renderer,
		composer:     composer,
		monitor:      monitor,
		validate:     validator.New(),
		table:        DefaultTable,
		pollInterval: DefaultPollInterval,
		pollLimit:    DefaultPollLimit,
		now:          time.Now,
		lifetime:     context.Background(),
	}
}

// WithSubscriber enables realtime delivery on table. Without it views poll.
func (e *Engine) WithSubscriber(subscriber contract.Subscriber, table string) *Engine {
	e.subscriber = subscriber
	if table != "" {
		e.table = table
	}
	return e
}

func (e *Engine) WithReadTracker(reads contract.ReadTracker) *Engine {
	e.reads = reads
	return e
}

func (e *Engine) WithPolling(interval time.Duration, limit int) *Engine {
	if interval > 0 {
		e.pollInterval = interval
	}
	if limit > 0 {
		e.pollLimit = limit
	}
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run supervises the event loop and the per-view poll workers until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.lifetime = ctx
	e.mu.Unlock()
	e.supervisor.Add(e.loop).Run(ctx)
}

// Shutdown closes the active view and stops the supervised workers.
func (e *Engine) Shutdown(ctx context.Context) error {
	err := e.loop.Do(ctx, e.disarm)
	e.supervisor.Stop()
	return err
}

// Active returns the open view, or nil.
func (e *Engine) Active(ctx context.Context) (*Conversation, error) {
	var conv *Conversation
	err := e.loop.Do(ctx, func() { conv = e.active })
	return conv, err
}

// Ping reports whether the event loop still runs tasks.
func (e *Engine) Ping(ctx context.Context) error {
	return e.loop.Do(ctx, func() {})
}

func (e *Engine) lifetimeCtx() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifetime
}
