package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// Which selects the first or last rendered entry.
type Which int

const (
	First Which = iota
	Last
)

func (w Which) String() string {
	if w == First {
		return "first"
	}
	return "last"
}

// timestampLayouts are tried in order. Values without an offset are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 datetime attribute.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("extract: empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("extract: unparsable timestamp %q", raw)
}

// Peek returns the timestamp of the first or last rendered entry. Entries
// without a readable timestamp are passed over; if none has one,
// ErrEmptyRender is returned.
func (x *Extractor) Peek(ctx context.Context, drv driver.Driver, which Which) (time.Time, error) {
	entries, err := drv.FindAll(ctx, x.sel.Entry)
	if err != nil {
		return time.Time{}, fmt.Errorf("extract: peek %s: %w", which, err)
	}
	n := len(entries)
	for i := range n {
		idx := i
		if which == Last {
			idx = n - 1 - i
		}
		if ts, err := x.timestamp(entries[idx]); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, ErrEmptyRender
}

// Position reads both ends of the current render.
func (x *Extractor) Position(ctx context.Context, drv driver.Driver) (record.Position, error) {
	first, err := x.Peek(ctx, drv, First)
	if err != nil {
		return record.Position{}, err
	}
	last, err := x.Peek(ctx, drv, Last)
	if err != nil {
		return record.Position{}, err
	}
	return record.Position{FirstVisible: first, LastVisible: last}, nil
}
