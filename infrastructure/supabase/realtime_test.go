package supabase

import (
	"business-connect/domain"
	bcerrors "business-connect/errors"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// phoenix is a minimal Realtime server. It answers the join with status,
// then hands the connection to after.
type phoenix struct {
	status string
	frames chan envelope
	after  func(conn *websocket.Conn, join envelope)
}

func (p *phoenix) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var join envelope
	if err := conn.ReadJSON(&join); err != nil {
		return
	}
	p.frames <- join
	reply, _ := json.Marshal(map[string]any{"status": p.status, "response": map[string]any{}})
	_ = conn.WriteJSON(envelope{Topic: join.Topic, Event: eventReply, Payload: reply, Ref: join.Ref})
	if p.after != nil {
		p.after(conn, join)
	}
	for {
		var frame envelope
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		p.frames <- frame
	}
}

func newRealtime(t *testing.T, server *httptest.Server) *Realtime {
	t.Helper()
	rt, err := NewRealtime(logs.GetLoggerFromLevel(slog.LevelDebug), server.URL, "anon", staticToken("user-token"), time.Second)
	require.NoError(t, err)
	return rt
}

func insertFrame(topic, id string) envelope {
	payload, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			"type":  "INSERT",
			"table": "messages",
			"record": map[string]any{
				"id": id, "conversation_id": "u_a_u_b", "sender_id": "u_b",
				"content": "hey", "created_at": "2026-01-02T03:04:06.123+00:00",
			},
		},
	})
	return envelope{Topic: topic, Event: eventChanges, Payload: payload}
}

func TestWebsocketURL(t *testing.T) {
	req := require.New(t)

	endpoint, err := websocketURL("https://project.supabase.co/", "anon")

	req.NoError(err)
	req.Equal("wss://project.supabase.co/realtime/v1/websocket?apikey=anon&vsn=1.0.0", endpoint)
}

func TestRealtime_Join_Then_Receive_Inserts(t *testing.T) {
	req := require.New(t)
	server := httptest.NewServer(&phoenix{
		status: "ok",
		frames: make(chan envelope, 8),
		after: func(conn *websocket.Conn, join envelope) {
			_ = conn.WriteJSON(insertFrame(join.Topic, "m2"))
			// An update on the same table is not an insert
			update := insertFrame(join.Topic, "m3")
			update.Payload = []byte(`{"data":{"type":"UPDATE","record":{"id":"m3"}}}`)
			_ = conn.WriteJSON(update)
		},
	})
	defer server.Close()
	p := server.Config.Handler.(*phoenix)

	inserted := make(chan domain.Message, 2)
	sub, err := newRealtime(t, server).SubscribeToNewMessages(context.Background(), "messages",
		func(msg domain.Message) { inserted <- msg })
	req.NoError(err)

	// Then the join asked for inserts on the table with the user's token
	join := <-p.frames
	req.Equal("realtime:public:messages", join.Topic)
	req.Equal(eventJoin, join.Event)
	var payload joinPayload
	req.NoError(json.Unmarshal(join.Payload, &payload))
	req.Equal("user-token", payload.AccessToken)
	req.Equal([]changeFilter{{Event: "INSERT", Schema: "public", Table: "messages"}}, payload.Config.PostgresChanges)

	select {
	case msg := <-inserted:
		req.Equal("m2", msg.ID)
		req.EqualValues("u_a_u_b", msg.ConversationKey)
		req.Equal(time.Date(2026, 1, 2, 3, 4, 6, 123000000, time.UTC), msg.CreatedAt)
	case <-time.After(time.Second):
		req.Fail("Insert not delivered")
	}

	// When unsubscribing, the channel is left
	req.NoError(sub.Unsubscribe())
	select {
	case frame := <-p.frames:
		req.Equal(eventLeave, frame.Event)
	case <-time.After(time.Second):
		req.Fail("phx_leave not sent")
	}
	<-sub.Done()
	req.Empty(inserted)
}

func TestRealtime_Join_Rejected(t *testing.T) {
	req := require.New(t)
	server := httptest.NewServer(&phoenix{status: "error", frames: make(chan envelope, 8)})
	defer server.Close()

	_, err := newRealtime(t, server).SubscribeToNewMessages(context.Background(), "messages", func(domain.Message) {})

	req.ErrorIs(err, bcerrors.ErrSubscriptionUnavailable)
	req.ErrorIs(err, bcerrors.ErrJoinRejected)
}

func TestRealtime_Unreachable(t *testing.T) {
	req := require.New(t)
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := newRealtime(t, server).SubscribeToNewMessages(context.Background(), "messages", func(domain.Message) {})

	req.ErrorIs(err, bcerrors.ErrSubscriptionUnavailable)
}

func TestRealtime_Server_Drop_Ends_Subscription(t *testing.T) {
	req := require.New(t)
	server := httptest.NewServer(&phoenix{
		status: "ok",
		frames: make(chan envelope, 8),
		after: func(conn *websocket.Conn, _ envelope) {
			_ = conn.Close()
		},
	})
	defer server.Close()

	sub, err := newRealtime(t, server).SubscribeToNewMessages(context.Background(), "messages", func(domain.Message) {})
	req.NoError(err)

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		req.Fail("Subscription should end when the server drops the connection")
	}
}
