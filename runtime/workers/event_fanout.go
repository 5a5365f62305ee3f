package workers

import (
	"business-connect/contract"
	"business-connect/domain"
	"business-connect/infrastructure/realtime"
	"context"
	"log/slog"
	"sync"
)

// EventFanout broadcasts inserted messages to in-process listeners.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability or retries. EventFanout is not a message broker: a listener
// that misses an insert catches up through polling or a history reload.
//
// It is the realtime side of the local store and is safe for concurrent use.
type EventFanout struct {
	log       *slog.Logger
	table     string
	inserted  chan domain.Message
	mu        sync.RWMutex
	listeners map[uint64]func(domain.Message)
	nextID    uint64
	handles   map[uint64]*realtime.Handle
}

var _ contract.Subscriber = (*EventFanout)(nil)

func NewEventFanout(log *slog.Logger, table string, bufferSize int) *EventFanout {
	return &EventFanout{
		log:       log,
		table:     table,
		inserted:  make(chan domain.Message, bufferSize),
		listeners: make(map[uint64]func(domain.Message)),
		handles:   make(map[uint64]*realtime.Handle),
	}
}

// Publish queues an inserted message. A full queue drops it.
func (w *EventFanout) Publish(msg domain.Message) {
	select {
	case w.inserted <- msg:
	default:
		w.log.Debug("Insert event lost", "id", msg.ID)
	}
}

func (w *EventFanout) SubscribeToNewMessages(_ context.Context, table string, onInsert func(domain.Message)) (contract.Subscription, error) {
	if table != w.table {
		w.log.Debug("Subscription for another table", "table", table)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	handle := realtime.NewHandle(func() error {
		w.remove(id)
		return nil
	})
	w.listeners[id] = onInsert
	w.handles[id] = handle
	return handle, nil
}

func (w *EventFanout) remove(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.listeners, id)
	delete(w.handles, id)
}

// Run delivers queued inserts until ctx is done, then ends every open subscription.
func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-w.inserted:
			w.Fanout(msg)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping insert fan-out")
			w.terminateAll()
			return nil
		}
	}
}

// Fanout calls every listener with msg.
func (w *EventFanout) Fanout(msg domain.Message) {
	w.mu.RLock()
	listeners := make([]func(domain.Message), 0, len(w.listeners))
	for _, listener := range w.listeners {
		listeners = append(listeners, listener)
	}
	w.mu.RUnlock()

	for _, listener := range listeners {
		listener(msg)
	}
}

func (w *EventFanout) terminateAll() {
	w.mu.RLock()
	handles := make([]*realtime.Handle, 0, len(w.handles))
	for _, handle := range w.handles {
		handles = append(handles, handle)
	}
	w.mu.RUnlock()

	for _, handle := range handles {
		handle.Terminate()
	}
}
