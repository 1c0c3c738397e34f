// Package store persists scrape runs and their messages in SQLite. A run
// row tracks the live progress of one scrape so an aborted run can be
// resumed from its cursor; the messages table accumulates every channel's
// history across runs, deduplicated on the full message tuple.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// ErrUnknownRun is returned when a run ID does not exist.
var ErrUnknownRun = errors.New("store: unknown run")

// Store wraps a database opened with Open.
type Store struct {
	db     *sql.DB
	newID  func() string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator for run and event IDs. Default: UUIDv7.
func WithIDGenerator(gen func() string) Option { return func(s *Store) { s.newID = gen } }

// WithClock sets the clock used for bookkeeping timestamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// New creates a Store over db. The schema must already be applied, which
// Open does.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// BeginRun records the start of a scrape of w and returns its run ID.
func (s *Store) BeginRun(ctx context.Context, w record.Window, skipInfo bool) (string, error) {
	id := s.newID()
	now := s.now().UnixNano()
	_, err := s.exec(ctx, "begin run", `
		INSERT INTO runs (
			run_id, network, channel, window_start, window_end, skip_info,
			state, started_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		id, w.Network, w.Channel, w.Start.UnixNano(), w.End.UnixNano(), skipInfo,
		"navigating", now, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateProgress stores the latest progress snapshot of a run.
func (s *Store) UpdateProgress(ctx context.Context, runID string, p record.Progress) error {
	res, err := s.exec(ctx, "update progress", `
		UPDATE runs SET state = ?, current_end = ?, last_seen = ?, messages = ?,
			recoveries = ?, updated_at = ?
		WHERE run_id = ?`,
		p.State, nanos(p.CurrentEnd), nanos(p.LastSeen), p.Messages,
		p.Recoveries, s.now().UnixNano(), runID)
	if err != nil {
		return err
	}
	return mustAffect(res, runID)
}

// FinishRun closes a run with the outcome carried by t.
func (s *Store) FinishRun(ctx context.Context, runID string, t record.Transcript) error {
	state := "done"
	if !t.Complete {
		state = "aborted"
	}
	now := s.now().UnixNano()
	res, err := s.exec(ctx, "finish run", `
		UPDATE runs SET state = ?, current_end = ?, messages = ?, complete = ?,
			reason = ?, updated_at = ?, finished_at = ?
		WHERE run_id = ?`,
		state, nanos(t.CurrentEnd), len(t.Messages), t.Complete,
		t.Reason, now, now, runID)
	if err != nil {
		return err
	}
	return mustAffect(res, runID)
}

// RecordEvent appends an event to a run's journal. Failures are logged and
// never returned, so a failing journal does not stop a scrape.
func (s *Store) RecordEvent(ctx context.Context, runID, kind, detail string) {
	_, err := s.exec(ctx, "record event", `
		INSERT INTO run_events (event_id, run_id, kind, detail, created_at)
		VALUES (?,?,?,?,?)`,
		s.newID(), runID, kind, detail, s.now().UnixNano())
	if err != nil {
		s.logger.Warn("store: record event failed", "error", err, "run_id", runID, "kind", kind)
	}
}

// Event is one journal entry of a run.
type Event struct {
	ID        string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Events returns the journal of a run, oldest first.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, kind, COALESCE(detail, ''), created_at
		FROM run_events WHERE run_id = ? ORDER BY created_at, event_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var at int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e.CreatedAt = time.Unix(0, at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Run is the stored state of one scrape.
type Run struct {
	ID         string
	Window     record.Window
	SkipInfo   bool
	State      string
	CurrentEnd time.Time
	LastSeen   time.Time
	Messages   int
	Recoveries int
	Complete   bool
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		r                              Run
		start, end, started            int64
		currentEnd, lastSeen, finished sql.NullInt64
		reason                         sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, network, channel, window_start, window_end, skip_info, state,
			current_end, last_seen, messages, recoveries, complete, reason,
			started_at, finished_at
		FROM runs WHERE run_id = ?`, runID).Scan(
		&r.ID, &r.Window.Network, &r.Window.Channel, &start, &end, &r.SkipInfo, &r.State,
		&currentEnd, &lastSeen, &r.Messages, &r.Recoveries, &r.Complete, &reason,
		&started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	r.Window.Start = time.Unix(0, start).UTC()
	r.Window.End = time.Unix(0, end).UTC()
	r.CurrentEnd = fromNanos(currentEnd)
	r.LastSeen = fromNanos(lastSeen)
	r.Reason = reason.String
	r.StartedAt = time.Unix(0, started).UTC()
	r.FinishedAt = fromNanos(finished)
	return &r, nil
}

// ResumePoint returns the newest cursor recorded for w's channel by a run
// that can stand in for the head of w: its window started no later than
// the point reached so far, it kept info lines whenever w does, and its
// cursor lies strictly inside w. Resumed runs start at an earlier run's
// cursor, so the search repeats from each cursor found and follows the
// chain. ok is false when no run covers the start of w.
func (s *Store) ResumePoint(ctx context.Context, w record.Window, skipInfo bool) (t time.Time, ok bool, err error) {
	from := w.Start
	for {
		var v sql.NullInt64
		err = s.db.QueryRowContext(ctx, `
			SELECT MAX(last_seen) FROM runs
			WHERE network = ? AND channel = ?
				AND window_start <= ?
				AND (skip_info = 0 OR ?)
				AND last_seen > ? AND last_seen < ?`,
			w.Network, w.Channel, from.UnixNano(), skipInfo,
			from.UnixNano(), w.End.UnixNano()).Scan(&v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("store: resume point: %w", err)
		}
		if !v.Valid {
			return from, ok, nil
		}
		from, ok = fromNanos(v), true
	}
}

// SaveMessages stores msgs for w's channel and reports how many were new.
// A message already stored with the same timestamp, author, kind and text
// is ignored.
func (s *Store) SaveMessages(ctx context.Context, runID string, w record.Window, msgs []record.Message) (int, error) {
	var runRef any
	if runID != "" {
		runRef = runID
	}
	inserted := 0
	err := s.inTx(ctx, "save messages", func(tx *sql.Tx) error {
		inserted = 0
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO messages (network, channel, ts, nick, kind, body, run_id)
			VALUES (?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, m := range msgs {
			res, err := stmt.ExecContext(ctx, w.Network, w.Channel, m.Timestamp.UnixNano(),
				m.Author, string(m.Kind), m.Text, runRef)
			if err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Messages returns the stored messages of a channel with start < ts < end,
// oldest first. A zero end means no upper bound.
func (s *Store) Messages(ctx context.Context, network, channel string, start, end time.Time) ([]record.Message, error) {
	upper := int64(1<<63 - 1)
	if !end.IsZero() {
		upper = end.UnixNano()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, nick, kind, body FROM messages
		WHERE network = ? AND channel = ? AND ts > ? AND ts < ?
		ORDER BY ts, rowid`,
		network, channel, start.UnixNano(), upper)
	if err != nil {
		return nil, fmt.Errorf("store: messages: %w", err)
	}
	defer rows.Close()

	var out []record.Message
	for rows.Next() {
		var (
			m    record.Message
			ts   int64
			kind string
		)
		if err := rows.Scan(&ts, &m.Author, &kind, &m.Text); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.Timestamp = time.Unix(0, ts).UTC()
		m.Kind = record.Kind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func mustAffect(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

func nanos(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(0, v.Int64).UTC()
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
