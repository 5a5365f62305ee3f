package repositories

import (
	"business-connect/domain"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the stored message record.
const (
	fieldID        protowire.Number = 1
	fieldKey       protowire.Number = 2
	fieldSender    protowire.Number = 3
	fieldContent   protowire.Number = 4
	fieldCreatedAt protowire.Number = 5
)

// encodeMessage writes msg in protobuf wire format, so records stay readable
// by any protobuf tooling and tolerate added fields.
func encodeMessage(msg domain.Message) []byte {
	var b []byte
	b = appendString(b, fieldID, msg.ID)
	b = appendString(b, fieldKey, string(msg.ConversationKey))
	b = appendString(b, fieldSender, string(msg.SenderID))
	b = appendString(b, fieldContent, msg.Text)
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(msg.CreatedAt.UnixNano()))
	return b
}

func appendString(b []byte, num protowire.Number, value string) []byte {
	if value == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, value)
}

// DecodeMessage reads a record written by the message or read marker repository.
func DecodeMessage(b []byte) (domain.Message, error) {
	var msg domain.Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.Message{}, fmt.Errorf("decode message tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num >= fieldID && num <= fieldContent:
			value, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.Message{}, fmt.Errorf("decode message field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldID:
				msg.ID = value
			case fieldKey:
				msg.ConversationKey = domain.ConversationKey(value)
			case fieldSender:
				msg.SenderID = domain.UserID(value)
			case fieldContent:
				msg.Text = value
			}
		case typ == protowire.VarintType && num == fieldCreatedAt:
			value, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Message{}, fmt.Errorf("decode message field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			msg.CreatedAt = time.Unix(0, int64(value)).UTC()
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return domain.Message{}, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return msg, nil
}
