package runtime

import (
	"business-connect/domain"
	"business-connect/observability"
	"context"
)

// Observe is the single entry point of inserts, pushed or polled alike.
// Redundant observations are expected and dropped.
func (e *Engine) Observe(ctx context.Context, msg domain.Message) error {
	return e.loop.Do(ctx, func() { e.merge(msg) })
}

func (e *Engine) merge(msg domain.Message) {
	verdict := e.classify(msg)
	e.monitor.IncrObservation(verdict)
	if verdict != observability.VerdictAccepted {
		e.log.Debug("Observation dropped", "id", msg.ID, "conversation", msg.ConversationKey, "verdict", verdict)
		return
	}
	conv := e.active
	conv.timeline.Merge(msg)
	e.renderer.OnIncomingMessage(msg)
	e.markRead(conv, msg)
}

func (e *Engine) classify(msg domain.Message) string {
	conv := e.active
	switch {
	case conv == nil, conv.State() != domain.ViewActive, msg.ConversationKey != conv.Key:
		return observability.VerdictForeign
	case msg.SenderID == conv.self:
		return observability.VerdictSelf
	case msg.ID == "":
		return observability.VerdictInvalid
	case conv.timeline.Contains(msg.ID):
		return observability.VerdictDuplicate
	default:
		return observability.VerdictAccepted
	}
}

func (e *Engine) markRead(conv *Conversation, msg domain.Message) {
	if e.reads == nil {
		return
	}
	go func() {
		if err := e.reads.MarkRead(conv.ctx, conv.Key, conv.self, msg); err != nil && conv.ctx.Err() == nil {
			e.log.Warn("Read marker not saved", "conversation", conv.Key, "error", err)
		}
	}()
}
