package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
)

// busyBackoff is the wait before each retry of a statement that hit a
// locked database. Its length bounds the number of attempts.
var busyBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

// IsBusy reports whether err indicates an SQLite BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"SQLITE_BUSY", "database is locked", "database table is locked"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// retry runs fn until it succeeds, fails with a non-busy error, or the
// backoff schedule is exhausted. op names the operation in errors.
func (s *Store) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsBusy(err) || attempt >= len(busyBackoff) {
			return fmt.Errorf("store: %s: %w", op, err)
		}
		s.logger.Debug("store: database busy, retrying", "op", op, "attempt", attempt+1)
		if err := driver.Sleep(ctx, busyBackoff[attempt]); err != nil {
			return fmt.Errorf("store: %s: %w", op, err)
		}
	}
}

// exec runs a single statement under retry.
func (s *Store) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.retry(ctx, op, func() error {
		var err error
		res, err = s.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// inTx runs fn in a transaction under retry. fn may run more than once and
// must reset any state it accumulates.
func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	return s.retry(ctx, op, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
