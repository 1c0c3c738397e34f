package logscrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/chatlogs/logscrape/internal/sink"
	"github.com/hazyhaar/chatlogs/logscrape/internal/status"
	"github.com/hazyhaar/chatlogs/logscrape/internal/store"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// Sink is the output interface for finished transcripts.
type Sink = sink.Sink

// Router fans a transcript out to several sinks.
type Router = sink.Router

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	return sink.NewRouter(logger, sinks...)
}

// NewFileSink creates a sink writing the messages as a JSON array to path.
func NewFileSink(path string) Sink {
	return sink.NewFile(path)
}

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, retries int, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookRetries(retries), sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink.
func NewCallbackSink(fn func(ctx context.Context, t record.Transcript) error) Sink {
	return sink.Callback(fn)
}

// Store persists runs and messages in SQLite.
type Store = store.Store

// OpenStore opens (creating if needed) the SQLite store at path.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	db, err := store.Open(path, store.WithMkdirAll())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return store.New(db, store.WithLogger(logger)), nil
}

// NewSQLiteSink creates a sink saving messages into st and, when runID is
// set, closing that run.
func NewSQLiteSink(st *Store, runID string, logger *slog.Logger) Sink {
	return sink.NewSQLite(st, runID, logger)
}

// BuildSinks creates the sinks of fc for window w. The JSON file sink at
// OutputPath is always first. A "sqlite" entry needs st.
func BuildSinks(fc *FileConfig, w record.Window, st *Store, runID string, logger *slog.Logger) (*Router, error) {
	r := NewRouter(logger, NewFileSink(OutputPath(fc, w)))
	for _, sc := range fc.Sinks {
		switch sc.Type {
		case "file":
			if sc.Path == "" {
				return nil, fmt.Errorf("logscrape: file sink needs a path")
			}
			r.Add(NewFileSink(sc.Path))
		case "stdout":
			r.Add(NewStdoutSink(nil))
		case "webhook":
			if sc.URL == "" {
				return nil, fmt.Errorf("logscrape: webhook sink needs a url")
			}
			r.Add(NewWebhookSink(sc.URL, sc.Retries, logger))
		case "sqlite":
			if st == nil {
				return nil, fmt.Errorf("logscrape: sqlite sink needs a database")
			}
			r.Add(NewSQLiteSink(st, runID, logger))
		default:
			return nil, fmt.Errorf("logscrape: unknown sink type %q", sc.Type)
		}
	}
	return r, nil
}

// StatusServer serves live progress over HTTP.
type StatusServer = status.Server

// NewStatusServer creates a StatusServer.
func NewStatusServer(logger *slog.Logger) *StatusServer {
	return status.New(logger)
}
