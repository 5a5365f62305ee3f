package internal

import (
	"business-connect/domain"
	"business-connect/observability"
	"business-connect/repositories"
	"business-connect/runtime"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed inspect.html
var templatesFS embed.FS

const TimelinePrefix = "timeline"

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

// RowSource lists the rows shown for a prefix.
type RowSource func(ctx context.Context, prefix string) ([]InspectRow, error)

type StatsProvider func() observability.MessagingStats

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  observability.MessagingStats
	Error  string
}

// NewDebugRouter serves /inspect (HTML), /stats (JSON) and /metrics (Prometheus).
func NewDebugRouter(source RowSource, stats StatsProvider, gatherer prometheus.Gatherer) http.Handler {
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))
	r := chi.NewRouter()

	r.Get("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = TimelinePrefix
		}
		data := PageData{Prefix: prefix, Stats: stats()}
		items, err := source(r.Context(), prefix)
		if err != nil {
			data.Error = err.Error()
		}
		data.Items = items

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats())
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// StartDebugServer listens on port until ctx is done.
func StartDebugServer(ctx context.Context, log *slog.Logger, port int, handler http.Handler) *http.Server {
	server := &http.Server{Addr: fmt.Sprintf("0.0.0.0:%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("Debug server started", "address", fmt.Sprintf("http://localhost:%d/inspect", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Debug server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	return server
}

// TimelineSource shows the open conversation as the user sees it.
// Other prefixes are delegated to next when set.
func TimelineSource(engine *runtime.Engine, next RowSource) RowSource {
	return func(ctx context.Context, prefix string) ([]InspectRow, error) {
		if prefix != TimelinePrefix {
			if next == nil {
				return nil, nil
			}
			return next(ctx, prefix)
		}
		conv, err := engine.Active(ctx)
		if err != nil || conv == nil {
			return nil, err
		}
		messages, err := conv.Messages(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]InspectRow, 0, len(messages))
		for _, msg := range messages {
			row := MessageRow(msg.ID, msg)
			row.Type = conv.State().String()
			if msg.IsProvisional() {
				row.Type = "PENDING"
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
}

// BadgerSource lists the local store by key prefix ("msg:", "read:").
func BadgerSource(db *badger.DB) RowSource {
	return func(_ context.Context, prefix string) ([]InspectRow, error) {
		var rows []InspectRow
		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					rows = append(rows, DefaultMapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})
		return rows, err
	}
}

// DefaultMapper decodes a local record, falling back to its raw size.
func DefaultMapper(key string, val []byte) InspectRow {
	msg, err := repositories.DecodeMessage(val)
	if err != nil {
		return InspectRow{
			Key:       key,
			Type:      "RAW",
			Timestamp: "--:--:--",
			EntityID:  "--------",
			Namespace: "default",
			Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
		}
	}
	row := MessageRow(key, msg)
	row.Type = strings.ToUpper(strings.SplitN(key, ":", 2)[0])
	return row
}

func MessageRow(key string, msg domain.Message) InspectRow {
	entityID := msg.ID
	if len(entityID) > 8 {
		entityID = entityID[:8]
	}
	return InspectRow{
		Key:       key,
		Type:      "MSG",
		Timestamp: msg.CreatedAt.Local().Format("15:04:05.000"),
		EntityID:  entityID,
		Namespace: string(msg.ConversationKey),
		Detail:    fmt.Sprintf("%s: %s", msg.SenderID, msg.Text),
	}
}
