//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"business-connect/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// MessageStore is the row-level capability set of the hosted backend.
// Both list operations return messages in ascending CreatedAt order.
type MessageStore interface {
	CreateMessage(ctx context.Context, key domain.ConversationKey, senderID domain.UserID, text string) (domain.Ack, error)
	ListMessages(ctx context.Context, key domain.ConversationKey) ([]domain.Message, error)
	PollRecentMessages(ctx context.Context, key domain.ConversationKey, limit int) ([]domain.Message, error)
}

// Subscription is a live push channel. Done is closed once it stops delivering,
// whether Unsubscribe was called or the transport dropped.
type Subscription interface {
	Done() <-chan struct{}
	Unsubscribe() error
}

// Subscriber opens push channels for inserted rows of a table.
// The channel is not scoped to a conversation.
type Subscriber interface {
	SubscribeToNewMessages(ctx context.Context, table string, onInsert func(domain.Message)) (Subscription, error)
}

type IdentityProvider interface {
	CurrentUserID() (domain.UserID, bool)
}

// Renderer receives view changes. Every callback runs on the event loop
// and must not block.
type Renderer interface {
	OnHistory(key domain.ConversationKey, messages []domain.Message)
	OnProvisionalMessage(msg domain.Message)
	OnConfirmedMessage(provisionalID string, confirmed domain.Message)
	// OnProvisionalRollback removes the provisional entry from view.
	OnProvisionalRollback(provisionalID string)
	OnIncomingMessage(msg domain.Message)
	OnLoadFailed(key domain.ConversationKey, err error)
}

// Composer is the input side of the view.
type Composer interface {
	RestoreInput(text string)
	NotifyFailure(err error)
}

// ReadTracker records how far a reader has seen a conversation.
type ReadTracker interface {
	MarkRead(ctx context.Context, key domain.ConversationKey, reader domain.UserID, upTo domain.Message) error
}
