package domain

// KeySeparator joins the two sorted identities of a conversation key.
// Hosted identities are UUIDs, which never contain it.
const KeySeparator = "_"

// ConversationKey identifies a two-party conversation.
// It is derived, never stored on its own.
type ConversationKey string

// ResolveConversationKey derives the key shared by both participants.
// The pair is sorted first so either side gets the same key.
// Equal ids are not rejected and give a self-referential key.
func ResolveConversationKey(a, b UserID) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey(string(a) + KeySeparator + string(b))
}

// ViewState is the lifecycle of an open conversation view.
type ViewState int

const (
	ViewClosed ViewState = iota
	ViewLoading
	ViewActive
	ViewFailed
)

func (s ViewState) String() string {
	switch s {
	case ViewClosed:
		return "closed"
	case ViewLoading:
		return "loading"
	case ViewActive:
		return "active"
	case ViewFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DeliveryMode says how new messages reach an active view.
type DeliveryMode int

const (
	DeliveryNone DeliveryMode = iota
	DeliveryRealtime
	DeliveryPolling
)

func (d DeliveryMode) String() string {
	switch d {
	case DeliveryRealtime:
		return "realtime"
	case DeliveryPolling:
		return "polling"
	default:
		return "none"
	}
}
