package realtime

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandle_Unsubscribe_Releases_Once(t *testing.T) {
	req := require.New(t)
	calls := 0
	handle := NewHandle(func() error {
		calls++
		return errors.New("already gone")
	})

	// When unsubscribing twice
	first := handle.Unsubscribe()
	second := handle.Unsubscribe()

	// Then the transport was released once and both calls report it
	req.Equal(1, calls)
	req.EqualError(first, "already gone")
	req.Equal(first, second)
	select {
	case <-handle.Done():
	default:
		req.Fail("Done should be closed")
	}
}

func TestHandle_Terminate_Closes_Done(t *testing.T) {
	req := require.New(t)
	handle := NewHandle(nil)

	go handle.Terminate()

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		req.Fail("Terminate should close Done")
	}
	req.NoError(handle.Unsubscribe())
}

func TestDecodeRow(t *testing.T) {
	req := require.New(t)
	payload := []byte(`{"id":"m1","conversation_id":"u_a_u_b","sender_id":"u_a",` +
		`"content":"hello","created_at":"2026-01-02T03:04:05.123456+00:00"}`)

	msg, err := DecodeRow(payload)

	req.NoError(err)
	req.Equal("m1", msg.ID)
	req.EqualValues("u_a_u_b", msg.ConversationKey)
	req.EqualValues("u_a", msg.SenderID)
	req.Equal("hello", msg.Text)
	req.Equal(time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC), msg.CreatedAt)

	_, err = DecodeRow([]byte("{"))
	req.Error(err)
}
