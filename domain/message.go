// Package domain contains core concepts of the messaging core.
// This file defines Message values and the provisional/confirmed lifecycle.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProvisionalPrefix marks ids minted locally before the store acknowledged a message.
// Store ids never start with it.
const ProvisionalPrefix = "temp_"

// MaxTextLength is the largest accepted message, counted in runes.
const MaxTextLength = 5000

// UserID identifies a registered participant. It is owned by the identity provider.
type UserID string

// Message represents one chat utterance, provisional or confirmed.
type Message struct {
	ID              string
	ConversationKey ConversationKey
	SenderID        UserID
	Text            string
	CreatedAt       time.Time
}

// Ack is what the store hands back once a message is durable.
type Ack struct {
	ID        string
	CreatedAt time.Time
}

// NewProvisionalMessage builds the locally visible copy of a message being sent.
// The token combines the clock reading with a per-process sequence so two sends
// within the same clock tick stay distinct.
func NewProvisionalMessage(key ConversationKey, sender UserID, text string, now time.Time, seq uint64) Message {
	return Message{
		ID:              fmt.Sprintf("%s%d_%d", ProvisionalPrefix, now.UnixNano(), seq),
		ConversationKey: key,
		SenderID:        sender,
		Text:            text,
		CreatedAt:       now,
	}
}

// IsProvisionalID reports whether id is a local token rather than a store id.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

func (m Message) IsProvisional() bool {
	return IsProvisionalID(m.ID)
}

// Confirm returns the message with the authoritative id and timestamp.
// The text is kept as typed.
func (m Message) Confirm(ack Ack) Message {
	m.ID = ack.ID
	m.CreatedAt = ack.CreatedAt
	return m
}

// NormalizeText trims surrounding whitespace; an empty result means nothing to send.
func NormalizeText(raw string) string {
	return strings.TrimSpace(raw)
}
