package runtime

import (
	"business-connect/domain"
	"business-connect/errors"
	"business-connect/projection"
	"context"
	"fmt"
	"sync"
)

type SendStatus int

const (
	// SendSkipped means the text was blank and nothing happened.
	SendSkipped SendStatus = iota
	// SendSubmitted means a provisional message is visible and persistence is in flight.
	SendSubmitted
)

// Receipt follows one send until the store answered.
type Receipt struct {
	Status      SendStatus
	Provisional domain.Message

	once      sync.Once
	done      chan struct{}
	confirmed domain.Message
	err       error
}

func newReceipt(status SendStatus) *Receipt {
	r := &Receipt{Status: status, done: make(chan struct{})}
	if status == SendSkipped {
		r.finish(domain.Message{}, nil)
	}
	return r
}

// finish settles the receipt. Only the first outcome counts.
func (r *Receipt) finish(confirmed domain.Message, err error) {
	r.once.Do(func() {
		r.confirmed = confirmed
		r.err = err
		close(r.done)
	})
}

func (r *Receipt) Done() <-chan struct{} { return r.done }

// Wait returns the confirmed message, or the persistence failure.
// A skipped send returns a zero message and no error.
func (r *Receipt) Wait(ctx context.Context) (domain.Message, error) {
	select {
	case <-r.done:
		return r.confirmed, r.err
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

func (e *Engine) send(ctx context.Context, conv *Conversation, raw string) (*Receipt, error) {
	text := domain.NormalizeText(raw)
	if text == "" {
		return newReceipt(SendSkipped), nil
	}
	if err := e.validate.Var(text, fmt.Sprintf("max=%d", domain.MaxTextLength)); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMessageTooLarge, err)
	}

	receipt := newReceipt(SendSubmitted)
	var rejected error
	err := e.loop.Do(ctx, func() {
		if e.active != conv || !conv.acceptsInput() {
			rejected = errors.ErrConversationClosed
			return
		}
		e.seq++
		provisional := domain.NewProvisionalMessage(conv.Key, conv.self, text, e.now(), e.seq)
		conv.timeline.AddProvisional(provisional)
		e.renderer.OnProvisionalMessage(provisional)
		e.monitor.IncrSend()
		receipt.Provisional = provisional
		go e.persist(conv, provisional, raw, receipt)
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return nil, rejected
	}
	return receipt, nil
}

// persist writes the message even if the view closes meanwhile.
func (e *Engine) persist(conv *Conversation, provisional domain.Message, raw string, receipt *Receipt) {
	ack, err := e.store.CreateMessage(context.WithoutCancel(conv.ctx), provisional.ConversationKey, provisional.SenderID, provisional.Text)
	if err == nil && ack.ID == "" {
		err = errors.ErrInvalidAck
	}
	posted := e.loop.Post(context.Background(), func() { e.reconcile(conv, provisional, raw, ack, err, receipt) })
	if posted == nil {
		select {
		case <-receipt.Done():
		case <-e.loop.Stopped():
			receipt.finish(domain.Message{}, errors.ErrEventLoopStopped)
		}
		return
	}
	if err != nil {
		receipt.finish(domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, err))
		return
	}
	receipt.finish(provisional.Confirm(ack), nil)
}

// reconcile swaps the provisional entry for the stored record, or removes it.
// Runs on the loop.
func (e *Engine) reconcile(conv *Conversation, provisional domain.Message, raw string,
	ack domain.Ack, err error, receipt *Receipt) {
	live := e.active == conv
	if err != nil {
		failure := fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, err)
		e.log.Warn("Send failed", "conversation", provisional.ConversationKey, "provisional", provisional.ID, "error", err)
		e.monitor.IncrRolledBack()
		if live && conv.timeline.Rollback(provisional.ID) {
			e.renderer.OnProvisionalRollback(provisional.ID)
			e.composer.RestoreInput(raw)
		}
		e.composer.NotifyFailure(failure)
		receipt.finish(domain.Message{}, failure)
		return
	}

	confirmed := provisional.Confirm(ack)
	e.monitor.IncrConfirmed()
	if live {
		switch conv.timeline.Confirm(provisional.ID, confirmed) {
		case projection.ConfirmReplaced:
			e.renderer.OnConfirmedMessage(provisional.ID, confirmed)
		case projection.ConfirmMerged:
			e.renderer.OnProvisionalRollback(provisional.ID)
		}
	}
	receipt.finish(confirmed, nil)
}
