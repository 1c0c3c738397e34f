package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/chatlogs/logscrape/internal/store"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// SQLite saves messages into a store and, when bound to a run, closes that
// run with the transcript's outcome.
type SQLite struct {
	store  *store.Store
	runID  string
	logger *slog.Logger
}

// NewSQLite creates a SQLite sink. runID may be empty.
func NewSQLite(st *store.Store, runID string, logger *slog.Logger) *SQLite {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLite{store: st, runID: runID, logger: logger}
}

func (s *SQLite) Write(ctx context.Context, t record.Transcript) error {
	n, err := s.store.SaveMessages(ctx, s.runID, t.Window, t.Messages)
	if err != nil {
		return fmt.Errorf("sqlite sink: %w", err)
	}
	s.logger.Info("sink: messages stored", "new", n, "total", len(t.Messages))
	if s.runID == "" {
		return nil
	}
	if err := s.store.FinishRun(ctx, s.runID, t); err != nil {
		return fmt.Errorf("sqlite sink: %w", err)
	}
	return nil
}

// Close leaves the database open; it belongs to the caller.
func (s *SQLite) Close() error { return nil }
