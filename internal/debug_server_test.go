package internal

import (
	"business-connect/domain"
	"business-connect/observability"
	"business-connect/repositories"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, server *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestDebugRouter(t *testing.T) {
	req := require.New(t)
	registry := prometheus.NewRegistry()
	monitor := observability.NewMessagingMonitor(registry)
	monitor.IncrSend()
	monitor.IncrConfirmed()
	var asked string
	source := func(_ context.Context, prefix string) ([]InspectRow, error) {
		asked = prefix
		return []InspectRow{{Key: "temp_1_1", Type: "PENDING", Detail: "u_a: <hi bob>"}}, nil
	}
	server := httptest.NewServer(NewDebugRouter(source, monitor.GetLatest, registry))
	defer server.Close()

	// The inspect page defaults to the timeline and escapes message text
	status, body := get(t, server, "/inspect")
	req.Equal(http.StatusOK, status)
	req.Equal(TimelinePrefix, asked)
	req.Contains(body, "temp_1_1")
	req.Contains(body, "u_a: &lt;hi bob&gt;")
	req.Contains(body, "sends 1")

	_, _ = get(t, server, "/inspect?prefix=msg:")
	req.Equal("msg:", asked)

	status, body = get(t, server, "/stats")
	req.Equal(http.StatusOK, status)
	var stats observability.MessagingStats
	req.NoError(json.Unmarshal([]byte(body), &stats))
	req.Equal(uint64(1), stats.Confirmed)

	status, body = get(t, server, "/metrics")
	req.Equal(http.StatusOK, status)
	req.Contains(body, `businessconnect_sends_total{outcome="submitted"} 1`)
}

func TestBadgerSource(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.WARNING))
	req.NoError(err)
	defer db.Close()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := domain.Message{ID: "3f0c2a9e-0000-4000-8000-000000000000", ConversationKey: "u_a_u_b", SenderID: "u_a", Text: "hello", CreatedAt: at}
	req.NoError(repositories.NewMessageRepository(db, log, nil).StoreMessage(msg))
	req.NoError(repositories.NewReadMarkerRepository(db).SaveReadMarker("u_a_u_b", "u_b", msg))
	source := BadgerSource(db)

	rows, err := source(context.Background(), "msg:")
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal("MSG", rows[0].Type)
	req.Equal("3f0c2a9e", rows[0].EntityID)
	req.Equal("u_a_u_b", rows[0].Namespace)
	req.Equal("u_a: hello", rows[0].Detail)

	rows, err = source(context.Background(), "read:")
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal("READ", rows[0].Type)
}

func TestDefaultMapper_Raw_Value(t *testing.T) {
	req := require.New(t)

	row := DefaultMapper("other:key", []byte{0x0a, 0x05, 'a'})

	req.Equal("RAW", row.Type)
	req.Equal("Size: 3 bytes", row.Detail)
}

func TestTimelineSource_Delegates_Other_Prefixes(t *testing.T) {
	req := require.New(t)
	var asked string
	next := func(_ context.Context, prefix string) ([]InspectRow, error) {
		asked = prefix
		return []InspectRow{{Key: prefix}}, nil
	}

	rows, err := TimelineSource(nil, next)(context.Background(), "read:")

	req.NoError(err)
	req.Len(rows, 1)
	req.Equal("read:", asked)
}
