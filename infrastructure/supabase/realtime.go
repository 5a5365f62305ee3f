package supabase

import (
	"business-connect/contract"
	"business-connect/domain"
	bcerrors "business-connect/errors"
	"business-connect/infrastructure/realtime"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"

	writeWait = 5 * time.Second
)

// envelope is one Phoenix channel frame.
type envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

type joinConfig struct {
	PostgresChanges []changeFilter `json:"postgres_changes"`
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changesPayload struct {
	Data struct {
		Type   string       `json:"type"`
		Table  string       `json:"table"`
		Record realtime.Row `json:"record"`
	} `json:"data"`
}

// Realtime subscribes to row inserts through the project's Realtime
// websocket, one connection per subscription.
type Realtime struct {
	log               *slog.Logger
	endpoint          string
	tokens            TokenSource
	dialer            *websocket.Dialer
	joinTimeout       time.Duration
	heartbeatInterval time.Duration
}

var _ contract.Subscriber = (*Realtime)(nil)

func NewRealtime(log *slog.Logger, projectURL, anonKey string, tokens TokenSource, joinTimeout time.Duration) (*Realtime, error) {
	endpoint, err := websocketURL(projectURL, anonKey)
	if err != nil {
		return nil, err
	}
	return &Realtime{
		log:               log,
		endpoint:          endpoint,
		tokens:            tokens,
		dialer:            &websocket.Dialer{HandshakeTimeout: joinTimeout},
		joinTimeout:       joinTimeout,
		heartbeatInterval: 25 * time.Second,
	}, nil
}

func websocketURL(projectURL, anonKey string) (string, error) {
	u, err := url.Parse(strings.TrimRight(projectURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path += "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {anonKey}, "vsn": {"1.0.0"}}.Encode()
	return u.String(), nil
}

func (r *Realtime) SubscribeToNewMessages(ctx context.Context, table string, onInsert func(domain.Message)) (contract.Subscription, error) {
	dialCtx, cancel := context.WithTimeout(ctx, r.joinTimeout)
	defer cancel()
	conn, _, err := r.dialer.DialContext(dialCtx, r.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", bcerrors.ErrSubscriptionUnavailable, err)
	}

	ch := &channel{
		log:   r.log,
		conn:  conn,
		topic: "realtime:public:" + table,
		table: table,
		stop:  make(chan struct{}),
	}
	if err := ch.join(r.accessToken(), r.joinTimeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	handle := realtime.NewHandle(ch.leave)
	go ch.heartbeat(r.heartbeatInterval)
	go ch.read(handle, onInsert)
	r.log.Debug("Realtime channel joined", "topic", ch.topic)
	return handle, nil
}

func (r *Realtime) accessToken() string {
	if r.tokens == nil {
		return ""
	}
	return r.tokens.AccessToken()
}

type channel struct {
	log     *slog.Logger
	conn    *websocket.Conn
	topic   string
	table   string
	writeMu sync.Mutex
	ref     atomic.Uint64
	joinRef string
	stop    chan struct{}
	closing atomic.Bool
}

func (c *channel) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

func (c *channel) send(topic, event string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	ref := c.nextRef()
	frame := envelope{Topic: topic, Event: event, Payload: raw, Ref: ref}
	if topic == c.topic {
		frame.JoinRef = c.joinRef
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ref, c.conn.WriteJSON(frame)
}

// join sends phx_join and waits for its reply.
func (c *channel) join(accessToken string, timeout time.Duration) error {
	c.joinRef = "1"
	c.ref.Store(0)
	payload := joinPayload{
		Config: joinConfig{PostgresChanges: []changeFilter{
			{Event: "INSERT", Schema: "public", Table: c.table},
		}},
		AccessToken: accessToken,
	}
	ref, err := c.send(c.topic, eventJoin, payload)
	if err != nil {
		return fmt.Errorf("%w: join: %v", bcerrors.ErrSubscriptionUnavailable, err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	for {
		var frame envelope
		if err := c.conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("%w: join: %v", bcerrors.ErrSubscriptionUnavailable, err)
		}
		if frame.Event != eventReply || frame.Ref != ref {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(frame.Payload, &reply); err != nil {
			return fmt.Errorf("%w: join reply: %v", bcerrors.ErrSubscriptionUnavailable, err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("%w: %w: %s", bcerrors.ErrSubscriptionUnavailable, bcerrors.ErrJoinRejected,
				strings.TrimSpace(string(reply.Response)))
		}
		return nil
	}
}

func (c *channel) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if _, err := c.send("phoenix", eventHeartbeat, struct{}{}); err != nil {
				c.log.Warn("Realtime heartbeat failed", "topic", c.topic, "error", err)
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *channel) read(handle *realtime.Handle, onInsert func(domain.Message)) {
	defer handle.Terminate()
	for {
		var frame envelope
		if err := c.conn.ReadJSON(&frame); err != nil {
			if !c.closing.Load() {
				c.log.Warn("Realtime connection lost", "topic", c.topic, "error", err)
			}
			return
		}
		if frame.Topic != c.topic {
			continue
		}
		switch frame.Event {
		case eventChanges:
			var changes changesPayload
			if err := json.Unmarshal(frame.Payload, &changes); err != nil {
				c.log.Warn("Malformed realtime change", "topic", c.topic, "error", err)
				continue
			}
			if changes.Data.Type != "INSERT" {
				continue
			}
			onInsert(changes.Data.Record.ToMessage())
		case eventError, eventClose:
			if !c.closing.Load() {
				c.log.Warn("Realtime channel closed by server", "topic", c.topic, "event", frame.Event)
			}
			return
		}
	}
}

// leave is the release step of the subscription handle.
func (c *channel) leave() error {
	c.closing.Store(true)
	close(c.stop)
	_, _ = c.send(c.topic, eventLeave, struct{}{})
	return c.conn.Close()
}
