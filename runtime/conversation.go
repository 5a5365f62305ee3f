package runtime

import (
	"business-connect/contract"
	"business-connect/domain"
	"business-connect/errors"
	"business-connect/projection"
	"business-connect/runtime/workers"
	"context"
	"fmt"
	"sync/atomic"
)

// Conversation is one opened view. It stays valid after Close; its
// operations then report ErrConversationClosed.
type Conversation struct {
	Key  domain.ConversationKey
	Peer domain.UserID

	engine   *Engine
	self     domain.UserID
	ctx      context.Context
	cancel   context.CancelFunc
	state    atomic.Int32
	delivery atomic.Int32

	// Owned by the event loop.
	timeline *projection.Timeline
	sub      contract.Subscription
}

func (c *Conversation) State() domain.ViewState {
	return domain.ViewState(c.state.Load())
}

func (c *Conversation) Delivery() domain.DeliveryMode {
	return domain.DeliveryMode(c.delivery.Load())
}

// acceptsInput is true while history loads and once it is shown.
func (c *Conversation) acceptsInput() bool {
	state := c.State()
	return state == domain.ViewLoading || state == domain.ViewActive
}

func (c *Conversation) setState(state domain.ViewState) { c.state.Store(int32(state)) }

func (c *Conversation) setDelivery(mode domain.DeliveryMode) { c.delivery.Store(int32(mode)) }

// Messages returns the visible timeline, confirmed first then provisional.
func (c *Conversation) Messages(ctx context.Context) ([]domain.Message, error) {
	var messages []domain.Message
	err := c.engine.loop.Do(ctx, func() { messages = c.timeline.Messages() })
	return messages, err
}

func (c *Conversation) Send(ctx context.Context, raw string) (*Receipt, error) {
	return c.engine.send(ctx, c, raw)
}

// Close disarms the view. Closing twice is a no-op.
func (c *Conversation) Close(ctx context.Context) error {
	return c.engine.loop.Do(ctx, func() {
		if c.engine.active == c {
			c.engine.disarm()
		}
	})
}

// Retry reloads the history of a view whose first load failed.
func (c *Conversation) Retry(ctx context.Context) error {
	var result error
	err := c.engine.loop.Do(ctx, func() {
		switch {
		case c.engine.active != c:
			result = errors.ErrConversationClosed
		case c.State() != domain.ViewFailed:
			result = errors.ErrNothingToRetry
		default:
			c.engine.load(c)
		}
	})
	if err != nil {
		return err
	}
	return result
}

// Open makes the conversation with peer the active view, closing the previous one.
// The returned view is Loading; the renderer learns about the history.
func (e *Engine) Open(ctx context.Context, peer domain.UserID) (*Conversation, error) {
	self, ok := e.session.CurrentUserID()
	if !ok {
		return nil, errors.ErrNoSession
	}
	key := domain.ResolveConversationKey(self, peer)
	conv := &Conversation{
		Key:      key,
		Peer:     peer,
		engine:   e,
		self:     self,
		timeline: projection.NewTimeline(key),
	}
	err := e.loop.Do(ctx, func() {
		e.disarm()
		conv.ctx, conv.cancel = context.WithCancel(e.lifetimeCtx())
		e.active = conv
		e.monitor.ViewOpened()
		e.log.Debug("Conversation opened", "conversation", conv.Key)
		e.load(conv)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// load issues the one history fetch of the Loading state. Runs on the loop.
func (e *Engine) load(conv *Conversation) {
	conv.setState(domain.ViewLoading)
	go func() {
		history, err := e.store.ListMessages(conv.ctx, conv.Key)
		_ = e.loop.Post(context.Background(), func() { e.loaded(conv, history, err) })
	}()
}

func (e *Engine) loaded(conv *Conversation, history []domain.Message, err error) {
	if e.active != conv || conv.State() != domain.ViewLoading {
		return
	}
	e.monitor.IncrHistory(err)
	if err != nil {
		e.log.Warn("History fetch failed", "conversation", conv.Key, "error", err)
		conv.setState(domain.ViewFailed)
		e.renderer.OnLoadFailed(conv.Key, fmt.Errorf("%w: %v", errors.ErrFetchFailure, err))
		return
	}
	conv.timeline.Load(history)
	e.renderer.OnHistory(conv.Key, conv.timeline.Messages())
	conv.setState(domain.ViewActive)
	e.arm(conv)
}

// arm starts the delivery of new inserts to an Active view. Runs on the loop.
func (e *Engine) arm(conv *Conversation) {
	if e.subscriber == nil {
		e.startPolling(conv)
		return
	}
	go func() {
		sub, err := e.subscriber.SubscribeToNewMessages(conv.ctx, e.table, func(msg domain.Message) {
			_ = e.Observe(conv.ctx, msg)
		})
		posted := e.loop.Post(context.Background(), func() { e.subscribed(conv, sub, err) })
		if posted != nil && sub != nil {
			_ = sub.Unsubscribe()
		}
	}()
}

func (e *Engine) subscribed(conv *Conversation, sub contract.Subscription, err error) {
	if e.active != conv || conv.ctx.Err() != nil {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
		return
	}
	if err != nil {
		e.log.Warn("Realtime unavailable, polling instead", "conversation", conv.Key,
			"error", fmt.Errorf("%w: %v", errors.ErrSubscriptionUnavailable, err))
		e.startPolling(conv)
		return
	}
	conv.sub = sub
	conv.setDelivery(domain.DeliveryRealtime)
	e.monitor.Subscribed()
	go e.poller(conv).Once(conv.ctx)

	go func() {
		select {
		case <-conv.ctx.Done():
		case <-sub.Done():
			_ = e.loop.Post(context.Background(), func() { e.subscriptionLost(conv, sub) })
		}
	}()
}

func (e *Engine) subscriptionLost(conv *Conversation, sub contract.Subscription) {
	if e.active != conv || conv.sub != sub {
		return
	}
	e.log.Warn("Realtime subscription ended, polling instead", "conversation", conv.Key)
	conv.sub = nil
	e.monitor.Unsubscribed()
	e.startPolling(conv)
}

func (e *Engine) startPolling(conv *Conversation) {
	conv.setDelivery(domain.DeliveryPolling)
	e.monitor.IncrPollFallback()
	e.supervisor.Start(conv.ctx, e.poller(conv))
}

func (e *Engine) poller(conv *Conversation) *workers.PollWorker {
	return workers.NewPollWorker(e.log, e.store, conv.Key, e.pollInterval, e.pollLimit, e.Observe)
}

// disarm is the single exit step of a view: it stops the poll worker and any
// in-flight fetch, releases the subscription and clears the active slot.
// Runs on the loop.
func (e *Engine) disarm() {
	conv := e.active
	if conv == nil {
		return
	}
	e.active = nil
	conv.cancel()
	if conv.sub != nil {
		if err := conv.sub.Unsubscribe(); err != nil {
			e.log.Warn("Unsubscribe failed", "conversation", conv.Key, "error", err)
		}
		conv.sub = nil
		e.monitor.Unsubscribed()
	}
	conv.setState(domain.ViewClosed)
	conv.setDelivery(domain.DeliveryNone)
	e.monitor.ViewClosed()
	e.log.Debug("Conversation closed", "conversation", conv.Key)
}
