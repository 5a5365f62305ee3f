package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrEventLoopStopped = fmt.Errorf("event loop stopped")

	ErrNoSession          = fmt.Errorf("no signed-in user")
	ErrInvalidToken       = fmt.Errorf("invalid access token")
	ErrConversationClosed = fmt.Errorf("conversation is not active")
	ErrNothingToRetry     = fmt.Errorf("conversation history is not in a failed state")
	ErrMessageTooLarge    = fmt.Errorf("message too large")

	ErrPersistenceFailure      = fmt.Errorf("message could not be persisted")
	ErrInvalidAck              = fmt.Errorf("store acknowledged without an id")
	ErrFetchFailure            = fmt.Errorf("message history could not be loaded")
	ErrSubscriptionUnavailable = fmt.Errorf("realtime subscription unavailable")

	ErrBackendRequest   = fmt.Errorf("backend request failed")
	ErrJoinRejected     = fmt.Errorf("realtime channel join rejected")
	ErrNoReadMarker     = fmt.Errorf("no read marker")
)
