package realtime

import (
	"sync"
)

// Handle is the Subscription returned by every push adapter.
// Done closes exactly once, either on Unsubscribe or when the transport
// reports the end of the stream through Terminate.
type Handle struct {
	done    chan struct{}
	once    sync.Once
	release func() error
	err     error
}

func NewHandle(release func() error) *Handle {
	return &Handle{done: make(chan struct{}), release: release}
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Unsubscribe releases the transport. Later calls return the first result.
func (h *Handle) Unsubscribe() error {
	h.once.Do(func() {
		if h.release != nil {
			h.err = h.release()
		}
		close(h.done)
	})
	return h.err
}

// Terminate marks the stream as ended by the transport itself.
func (h *Handle) Terminate() {
	_ = h.Unsubscribe()
}
