// Package projection builds local timelines from observed messages.
// Handles ordering, deduplication, and provisional reconciliation.
// Does not emit events or interact with UI directly.
package projection

import (
	"business-connect/domain"
	"slices"
	"sort"
)

// ConfirmResult tells the caller what Confirm did to the visible set.
type ConfirmResult int

const (
	// ConfirmMissing means the provisional entry was no longer there.
	ConfirmMissing ConfirmResult = iota
	// ConfirmReplaced means the provisional entry became the confirmed one.
	ConfirmReplaced
	// ConfirmMerged means the confirmed id was already visible, so the
	// provisional entry was dropped instead.
	ConfirmMerged
)

// Timeline is the visible set of one conversation.
// Confirmed messages are kept ordered by CreatedAt, ties in arrival order,
// and provisional messages follow in insertion order.
// A Timeline is not safe for concurrent use; the event loop owns it.
type Timeline struct {
	Key         domain.ConversationKey
	confirmed   []domain.Message
	provisional []domain.Message
	ids         map[string]struct{}
}

func NewTimeline(key domain.ConversationKey) *Timeline {
	return &Timeline{
		Key: key,
		ids: make(map[string]struct{}),
	}
}

// Load merges a historical batch. Messages already visible are skipped.
func (t *Timeline) Load(history []domain.Message) {
	for _, msg := range history {
		t.Merge(msg)
	}
}

// Merge inserts a confirmed message at its chronological position.
// It returns false when the id is empty or already visible.
func (t *Timeline) Merge(msg domain.Message) bool {
	if msg.ID == "" || t.Contains(msg.ID) {
		return false
	}
	t.insertConfirmed(msg)
	return true
}

func (t *Timeline) AddProvisional(msg domain.Message) {
	t.provisional = append(t.provisional, msg)
	t.ids[msg.ID] = struct{}{}
}

// Confirm swaps a provisional entry for its persisted counterpart.
func (t *Timeline) Confirm(provisionalID string, confirmed domain.Message) ConfirmResult {
	if !t.removeProvisional(provisionalID) {
		return ConfirmMissing
	}
	if t.Contains(confirmed.ID) {
		return ConfirmMerged
	}
	t.insertConfirmed(confirmed)
	return ConfirmReplaced
}

// Rollback drops a provisional entry. It reports whether one was removed.
func (t *Timeline) Rollback(provisionalID string) bool {
	return t.removeProvisional(provisionalID)
}

func (t *Timeline) Contains(id string) bool {
	_, ok := t.ids[id]
	return ok
}

// Messages returns a copy of the visible set in display order.
func (t *Timeline) Messages() []domain.Message {
	res := make([]domain.Message, 0, t.Len())
	res = append(res, t.confirmed...)
	return append(res, t.provisional...)
}

func (t *Timeline) Len() int {
	return len(t.confirmed) + len(t.provisional)
}

func (t *Timeline) insertConfirmed(msg domain.Message) {
	i := sort.Search(len(t.confirmed), func(i int) bool {
		return t.confirmed[i].CreatedAt.After(msg.CreatedAt)
	})
	t.confirmed = slices.Insert(t.confirmed, i, msg)
	t.ids[msg.ID] = struct{}{}
}

func (t *Timeline) removeProvisional(id string) bool {
	i := slices.IndexFunc(t.provisional, func(m domain.Message) bool { return m.ID == id })
	if i < 0 {
		return false
	}
	t.provisional = slices.Delete(t.provisional, i, i+1)
	delete(t.ids, id)
	return true
}
