// Package extract reads rendered log entries from a driver and turns them
// into messages. It never mutates the page.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// ErrEmptyRender is returned when no timestamped entry is rendered.
// Callers treat it as transient: the page may still be loading.
var ErrEmptyRender = errors.New("extract: no log entries rendered")

// Selectors locate the parts of a log entry in the archive markup.
type Selectors struct {
	Entry    string `yaml:"entry"`     // one element per message, document order
	KindAttr string `yaml:"kind_attr"` // entry attribute holding chat | info
	NickAttr string `yaml:"nick_attr"` // entry attribute holding the author
	Time     string `yaml:"time"`      // timestamp element inside an entry
	TimeAttr string `yaml:"time_attr"` // ISO-8601 attribute of the timestamp element
	Body     string `yaml:"body"`      // body element, %s is replaced by the kind
}

// DefaultSelectors matches the botbot archive markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Entry:    "#Log > li",
		KindAttr: "data-type",
		NickAttr: "data-nick",
		Time:     "a time",
		TimeAttr: "datetime",
		Body:     "div.%s",
	}
}

// WithDefaults fills empty fields from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	if s.Entry == "" {
		s.Entry = d.Entry
	}
	if s.KindAttr == "" {
		s.KindAttr = d.KindAttr
	}
	if s.NickAttr == "" {
		s.NickAttr = d.NickAttr
	}
	if s.Time == "" {
		s.Time = d.Time
	}
	if s.TimeAttr == "" {
		s.TimeAttr = d.TimeAttr
	}
	if s.Body == "" {
		s.Body = d.Body
	}
	return s
}

// Extractor pulls messages and timestamps out of the current render.
type Extractor struct {
	sel    Selectors
	logger *slog.Logger
}

// New creates an Extractor. Zero-value selector fields use the defaults.
func New(sel Selectors, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{sel: sel.WithDefaults(), logger: logger}
}

// Extract returns rendered messages newer than cutoff, in document order.
// A zero cutoff keeps everything. Info lines are dropped when skipInfo is
// set. Entries without a readable timestamp are skipped.
func (x *Extractor) Extract(ctx context.Context, drv driver.Driver, cutoff time.Time, skipInfo bool) ([]record.Message, error) {
	entries, err := drv.FindAll(ctx, x.sel.Entry)
	if err != nil {
		return nil, fmt.Errorf("extract: find entries: %w", err)
	}

	var msgs []record.Message
	for i, el := range entries {
		kind, err := el.Attribute(x.sel.KindAttr)
		if err != nil {
			return nil, fmt.Errorf("extract: entry %d kind: %w", i, err)
		}
		if skipInfo && record.Kind(kind) == record.KindInfo {
			continue
		}

		ts, err := x.timestamp(el)
		if err != nil {
			x.logger.Debug("extract: skipping entry without timestamp", "index", i, "error", err)
			continue
		}
		if !cutoff.IsZero() && !ts.After(cutoff) {
			continue
		}

		nick, err := el.Attribute(x.sel.NickAttr)
		if err != nil {
			return nil, fmt.Errorf("extract: entry %d nick: %w", i, err)
		}
		text, err := x.body(el, kind)
		if err != nil {
			return nil, fmt.Errorf("extract: entry %d body: %w", i, err)
		}

		msgs = append(msgs, record.Message{
			Timestamp: ts,
			Text:      text,
			Author:    nick,
			Kind:      record.Kind(kind),
		})
	}
	return msgs, nil
}

// body reads the entry text. Chat and info rows render their text in
// differently classed elements, so the lookup depends on kind. A row with
// no body element yields an empty text.
func (x *Extractor) body(el driver.Element, kind string) (string, error) {
	if kind == "" {
		return "", nil
	}
	b, err := el.Find(fmt.Sprintf(x.sel.Body, kind))
	if errors.Is(err, driver.ErrNoElement) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	text, err := b.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (x *Extractor) timestamp(el driver.Element) (time.Time, error) {
	t, err := el.Find(x.sel.Time)
	if err != nil {
		return time.Time{}, err
	}
	raw, err := t.Attribute(x.sel.TimeAttr)
	if err != nil {
		return time.Time{}, err
	}
	return ParseTimestamp(raw)
}
