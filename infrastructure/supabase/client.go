// Package supabase adapts the hosted backend: PostgREST for rows and the
// Realtime websocket for inserts.
package supabase

import (
	"business-connect/contract"
	"business-connect/domain"
	bcerrors "business-connect/errors"
	"business-connect/infrastructure/realtime"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/supabase-community/postgrest-go"
)

const (
	messagesTable = "messages"
	readsTable    = "conversation_reads"
	messageFields = "id,conversation_id,sender_id,content,created_at"
)

// TokenSource returns the signed-in user's access token, empty when signed out.
type TokenSource interface {
	AccessToken() string
}

// Client calls the PostgREST API of a project. Requests run as the signed-in
// user when tokens has one, as the anonymous role otherwise.
type Client struct {
	restURL string
	anonKey string
	tokens  TokenSource
	timeout time.Duration
}

var (
	_ contract.MessageStore = (*Client)(nil)
	_ contract.ReadTracker  = (*Client)(nil)
)

func NewClient(projectURL, anonKey string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		restURL: strings.TrimRight(projectURL, "/") + "/rest/v1",
		anonKey: anonKey,
		tokens:  tokens,
		timeout: timeout,
	}
}

type insertRow struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
}

func (c *Client) CreateMessage(ctx context.Context, key domain.ConversationKey, senderID domain.UserID, text string) (domain.Ack, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	rest, err := c.rest()
	if err != nil {
		return domain.Ack{}, err
	}
	var rows []realtime.Row
	_, err = rest.From(messagesTable).
		Insert(insertRow{ConversationID: string(key), SenderID: string(senderID), Content: text}, false, "", "representation", "").
		ExecuteToWithContext(ctx, &rows)
	if err != nil {
		return domain.Ack{}, requestFailed("insert into", messagesTable, err)
	}
	if len(rows) == 0 {
		return domain.Ack{}, bcerrors.ErrInvalidAck
	}
	return domain.Ack{ID: rows[0].ID, CreatedAt: rows[0].CreatedAt.UTC()}, nil
}

func (c *Client) ListMessages(ctx context.Context, key domain.ConversationKey) ([]domain.Message, error) {
	return c.selectMessages(ctx, key, true, 0)
}

// PollRecentMessages reads the newest rows first so limit keeps the tail.
func (c *Client) PollRecentMessages(ctx context.Context, key domain.ConversationKey, limit int) ([]domain.Message, error) {
	messages, err := c.selectMessages(ctx, key, false, limit)
	if err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}

// selectMessages reads one conversation ordered by created_at then id.
// A zero limit reads every row.
func (c *Client) selectMessages(ctx context.Context, key domain.ConversationKey, ascending bool, limit int) ([]domain.Message, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	rest, err := c.rest()
	if err != nil {
		return nil, err
	}
	order := &postgrest.OrderOpts{Ascending: ascending}
	query := rest.From(messagesTable).
		Select(messageFields, "", false).
		Eq("conversation_id", string(key)).
		Order("created_at", order).
		Order("id", order)
	if limit > 0 {
		query = query.Limit(limit, "")
	}
	var rows []realtime.Row
	if _, err := query.ExecuteToWithContext(ctx, &rows); err != nil {
		return nil, requestFailed("select from", messagesTable, err)
	}
	return toMessages(rows), nil
}

type readRow struct {
	ConversationID    string    `json:"conversation_id"`
	UserID            string    `json:"user_id"`
	LastReadMessageID string    `json:"last_read_message_id"`
	LastReadAt        time.Time `json:"last_read_at"`
}

func (c *Client) MarkRead(ctx context.Context, key domain.ConversationKey, reader domain.UserID, upTo domain.Message) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	rest, err := c.rest()
	if err != nil {
		return err
	}
	_, _, err = rest.From(readsTable).
		Upsert(readRow{
			ConversationID:    string(key),
			UserID:            string(reader),
			LastReadMessageID: upTo.ID,
			LastReadAt:        upTo.CreatedAt,
		}, "conversation_id,user_id", "minimal", "").
		ExecuteWithContext(ctx)
	if err != nil {
		return requestFailed("upsert into", readsTable, err)
	}
	return nil
}

// rest returns a PostgREST client carrying the current credentials.
// The token can change between calls, so headers are never shared.
func (c *Client) rest() (*postgrest.Client, error) {
	rest := postgrest.NewClient(c.restURL, "", map[string]string{
		"apikey":        c.anonKey,
		"Authorization": "Bearer " + c.bearer(),
	})
	if rest.ClientError != nil {
		return nil, fmt.Errorf("%w: %v", bcerrors.ErrBackendRequest, rest.ClientError)
	}
	return rest, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func requestFailed(action, table string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", bcerrors.ErrBackendRequest, action, table, err)
}

func (c *Client) bearer() string {
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			return token
		}
	}
	return c.anonKey
}

func toMessages(rows []realtime.Row) []domain.Message {
	return lo.Map(rows, func(row realtime.Row, _ int) domain.Message {
		return row.ToMessage()
	})
}
