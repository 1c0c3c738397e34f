// Package drivertest provides a scripted, in-memory archive that hands out
// driver.Driver instances. It renders the same markup as the real archive
// so extraction runs against genuine selectors, and it records every
// interaction so tests can assert on scrolls, navigations and recoveries.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
	"github.com/hazyhaar/chatlogs/logscrape/driver/htmldoc"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// ErrClosed is returned when a closed driver is used.
var ErrClosed = errors.New("drivertest: driver closed")

// Entry is one archived log line.
type Entry struct {
	Time time.Time
	Kind record.Kind
	Nick string
	Text string
	// NoTime renders the entry without its timestamp element.
	NoTime bool
}

// Chat builds a chat entry.
func Chat(t time.Time, nick, text string) Entry {
	return Entry{Time: t, Kind: record.KindChat, Nick: nick, Text: text}
}

// Info builds an info entry.
func Info(t time.Time, nick, text string) Entry {
	return Entry{Time: t, Kind: record.KindInfo, Nick: nick, Text: text}
}

// Archive is a channel history served page by page. Navigation to a date
// renders PageSize entries starting at that day; each scroll reveals Step
// more unless Stall says otherwise.
type Archive struct {
	Entries  []Entry // chronological
	PageSize int     // default 10
	Step     int     // default 5

	// Stall reports whether scroll number n (0-based) of driver d reveals
	// nothing. Nil means scrolling always works.
	Stall func(d, n int) bool
	// FactoryErr returns an error for the n-th driver construction.
	FactoryErr func(n int) error
	// NavigateErr returns an error for a navigation of driver d.
	NavigateErr func(d int, url string) error
	// Blank reports whether driver d never renders any entry.
	Blank func(d int) bool

	mu          sync.Mutex
	drivers     []*Driver
	navigations []string
	screenshots []string
	overlap     bool
}

// Factory returns a driver.Factory producing drivers over a.
func (a *Archive) Factory() driver.Factory {
	return func(ctx context.Context) (driver.Driver, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		n := len(a.drivers)
		if a.FactoryErr != nil {
			if err := a.FactoryErr(n); err != nil {
				a.drivers = append(a.drivers, &Driver{archive: a, index: n, closed: true})
				return nil, err
			}
		}
		for _, d := range a.drivers {
			if !d.closed {
				a.overlap = true
			}
		}
		d := &Driver{archive: a, index: n}
		a.drivers = append(a.drivers, d)
		return d, nil
	}
}

// Opened returns how many drivers the factory was asked for.
func (a *Archive) Opened() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.drivers)
}

// Scrolls returns the number of scroll calls made on driver d.
func (a *Archive) Scrolls(d int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d >= len(a.drivers) {
		return 0
	}
	return a.drivers[d].scrolls
}

// Closed reports whether driver d has been closed.
func (a *Archive) Closed(d int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return d < len(a.drivers) && a.drivers[d].closed
}

// Overlapped reports whether a driver was built while another was open.
func (a *Archive) Overlapped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overlap
}

// Navigations returns every URL navigated to, across drivers.
func (a *Archive) Navigations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.navigations...)
}

// Screenshots returns every screenshot path requested.
func (a *Archive) Screenshots() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.screenshots...)
}

func (a *Archive) pageSize() int {
	if a.PageSize > 0 {
		return a.PageSize
	}
	return 10
}

func (a *Archive) step() int {
	if a.Step > 0 {
		return a.Step
	}
	return 5
}

// Driver renders a window [start, end) of the archive.
type Driver struct {
	archive *Archive
	index   int
	start   int
	end     int
	scrolls int
	closed  bool
}

func (d *Driver) Navigate(ctx context.Context, rawURL string) error {
	a := d.archive
	a.mu.Lock()
	defer a.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	a.navigations = append(a.navigations, rawURL)
	if a.NavigateErr != nil {
		if err := a.NavigateErr(d.index, rawURL); err != nil {
			return err
		}
	}

	day, err := dayFromURL(rawURL)
	if err != nil {
		return err
	}
	d.start = len(a.Entries)
	for i, e := range a.Entries {
		if !e.Time.Before(day) {
			d.start = i
			break
		}
	}
	d.end = min(d.start+a.pageSize(), len(a.Entries))
	return nil
}

func (d *Driver) FindAll(ctx context.Context, selector string) ([]driver.Element, error) {
	a := d.archive
	a.mu.Lock()
	if d.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	visible := a.Entries[d.start:d.end]
	if a.Blank != nil && a.Blank(d.index) {
		visible = nil
	}
	markup := render(visible)
	a.mu.Unlock()

	doc, err := htmldoc.ParseString(markup)
	if err != nil {
		return nil, err
	}
	return doc.FindAll(selector), nil
}

func (d *Driver) ScrollBy(ctx context.Context, pixels int) error {
	a := d.archive
	a.mu.Lock()
	defer a.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	n := d.scrolls
	d.scrolls++
	if a.Stall != nil && a.Stall(d.index, n) {
		return nil
	}
	d.end = min(d.end+a.step(), len(a.Entries))
	return nil
}

func (d *Driver) Wait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (d *Driver) Screenshot(ctx context.Context, p string) error {
	a := d.archive
	a.mu.Lock()
	defer a.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	a.screenshots = append(a.screenshots, p)
	return nil
}

func (d *Driver) Close() error {
	a := d.archive
	a.mu.Lock()
	defer a.mu.Unlock()
	d.closed = true
	return nil
}

// dayFromURL reads the trailing YYYY-MM-DD path segment of an archive URL.
func dayFromURL(rawURL string) (time.Time, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, err
	}
	seg := path.Base(strings.TrimSuffix(u.Path, "/"))
	day, err := time.Parse(time.DateOnly, seg)
	if err != nil {
		return time.Time{}, fmt.Errorf("drivertest: no date in %s: %w", rawURL, err)
	}
	return day, nil
}

// render produces archive markup for entries.
func render(entries []Entry) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul id="Log">`)
	for _, e := range entries {
		fmt.Fprintf(&b, `<li data-type="%s" data-nick="%s">`,
			html.EscapeString(string(e.Kind)), html.EscapeString(e.Nick))
		if !e.NoTime {
			fmt.Fprintf(&b, `<a href="#"><time datetime="%s">%s</time></a>`,
				e.Time.Format(record.TimestampLayout), e.Time.Format("15:04"))
		}
		fmt.Fprintf(&b, `<div class="message %s">%s</div></li>`,
			html.EscapeString(string(e.Kind)), html.EscapeString(e.Text))
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}
