package workers

import (
	"business-connect/contract"
	"business-connect/domain"
	"context"
	"log/slog"
	"time"
)

// ObserveFunc hands one observed message to the merge engine.
type ObserveFunc func(ctx context.Context, msg domain.Message) error

// PollWorker fetches the latest messages of one conversation at a fixed interval.
// It is the fallback delivery path when no realtime subscription is available;
// what it reads goes through the same entry point as pushed messages.
type PollWorker struct {
	log      *slog.Logger
	store    contract.MessageStore
	key      domain.ConversationKey
	interval time.Duration
	limit    int
	observe  ObserveFunc
}

func NewPollWorker(log *slog.Logger, store contract.MessageStore, key domain.ConversationKey,
	interval time.Duration, limit int, observe ObserveFunc) *PollWorker {
	return &PollWorker{
		log:      log,
		store:    store,
		key:      key,
		interval: interval,
		limit:    limit,
		observe:  observe,
	}
}

// Run polls until ctx is done. A failed poll is logged and retried on the next tick.
func (w *PollWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Polling stopped", "conversation", w.key)
			return nil
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// Once runs a single poll. It covers inserts that landed between a history
// fetch and a realtime join.
func (w *PollWorker) Once(ctx context.Context) {
	w.poll(ctx)
}

func (w *PollWorker) poll(ctx context.Context) {
	messages, err := w.store.PollRecentMessages(ctx, w.key, w.limit)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("Poll failed", "conversation", w.key, "error", err)
		}
		return
	}
	for _, msg := range messages {
		if err := w.observe(ctx, msg); err != nil {
			// The view was closed while this batch was in flight.
			return
		}
	}
}
