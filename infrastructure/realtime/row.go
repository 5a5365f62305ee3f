package realtime

import (
	"business-connect/domain"
	"encoding/json"
	"fmt"
	"time"
)

// Row is the JSON shape of a messages row, shared by the PostgREST
// responses, Postgres notifications and Redis payloads.
type Row struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func (r Row) ToMessage() domain.Message {
	return domain.Message{
		ID:              r.ID,
		ConversationKey: domain.ConversationKey(r.ConversationID),
		SenderID:        domain.UserID(r.SenderID),
		Text:            r.Content,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

func FromMessage(msg domain.Message) Row {
	return Row{
		ID:             msg.ID,
		ConversationID: string(msg.ConversationKey),
		SenderID:       string(msg.SenderID),
		Content:        msg.Text,
		CreatedAt:      msg.CreatedAt,
	}
}

// DecodeRow parses one JSON row payload.
func DecodeRow(payload []byte) (domain.Message, error) {
	var row Row
	if err := json.Unmarshal(payload, &row); err != nil {
		return domain.Message{}, fmt.Errorf("decode message row: %w", err)
	}
	return row.ToMessage(), nil
}
