// Package replay is a driver without a browser: it fetches archive pages
// over HTTP and simulates infinite scroll by revealing entries a few rows
// at a time, following the archive's next-page link when the fetched
// entries run out. It suits archives that render server-side and makes
// the scraper testable end to end against a plain HTTP server.
package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
	"github.com/hazyhaar/chatlogs/logscrape/driver/htmldoc"
)

// ErrClosed is returned when a closed driver is used.
var ErrClosed = errors.New("replay: driver closed")

// Config tunes the replay driver.
type Config struct {
	// Container selects the element holding the log entries. Default: "#Log".
	Container string
	// Entry filters the container's children. Default: "li".
	Entry string
	// Next selects the link to the following page. Default: "a[rel=next]".
	Next string

	// InitialRows is how many entries are visible after navigation. Default: 50.
	InitialRows int
	// RowHeight converts scroll pixels into revealed rows. Default: 45.
	RowHeight int

	// Timeout bounds each HTTP request. Default: 20s.
	Timeout time.Duration
	// Retries on transport errors and 5xx responses. Default: 2; negative
	// disables retrying.
	Retries   int
	UserAgent string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Container == "" {
		c.Container = "#Log"
	}
	if c.Entry == "" {
		c.Entry = "li"
	}
	if c.Next == "" {
		c.Next = "a[rel=next]"
	}
	if c.InitialRows <= 0 {
		c.InitialRows = 50
	}
	if c.RowHeight <= 0 {
		c.RowHeight = 45
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	} else if c.Retries == 0 {
		c.Retries = 2
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Option customises a Driver.
type Option func(*Driver)

// WithClient replaces the HTTP client. Timeout, retry and user agent
// settings from Config are not applied to it.
func WithClient(c *resty.Client) Option { return func(d *Driver) { d.client = c } }

// Factory returns a driver.Factory building independent replay drivers.
func Factory(cfg Config, opts ...Option) driver.Factory {
	return func(ctx context.Context) (driver.Driver, error) {
		return New(cfg, opts...), nil
	}
}

// Driver replays one archive session.
type Driver struct {
	cfg    Config
	client *resty.Client

	doc     *htmldoc.Document // first page; entries are rendered into it
	entries []string          // outer HTML of every fetched entry
	visible int
	next    string // absolute URL of the next page, "" when none
	dirty   bool
	closed  bool
}

// New creates a Driver. Unless WithClient is given it owns a fresh HTTP
// client.
func New(cfg Config, opts ...Option) *Driver {
	cfg.defaults()
	d := &Driver{cfg: cfg}
	for _, o := range opts {
		o(d)
	}
	if d.client == nil {
		d.client = resty.New().
			SetTimeout(cfg.Timeout).
			SetRetryCount(cfg.Retries).
			SetRetryWaitTime(500*time.Millisecond).
			SetHeader("User-Agent", cfg.UserAgent).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= 500
			})
	}
	return d
}

// Navigate fetches url and shows its first InitialRows entries.
func (d *Driver) Navigate(ctx context.Context, rawURL string) error {
	if d.closed {
		return ErrClosed
	}
	doc, err := d.fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	if doc.Selection().Find(d.cfg.Container).Length() == 0 {
		d.cfg.Logger.Warn("replay: no log container", "url", rawURL, "container", d.cfg.Container)
	}

	d.doc = doc
	d.entries = d.entries[:0]
	d.next = ""
	if err := d.absorb(doc, rawURL); err != nil {
		return err
	}
	d.visible = min(d.cfg.InitialRows, len(d.entries))
	d.dirty = true
	return nil
}

// ScrollBy reveals pixels/RowHeight more entries, fetching the next page
// when the revealed count runs past what has been fetched.
func (d *Driver) ScrollBy(ctx context.Context, pixels int) error {
	if d.closed {
		return ErrClosed
	}
	if d.doc == nil {
		return nil
	}
	want := d.visible + max(1, pixels/d.cfg.RowHeight)
	for want > len(d.entries) && d.next != "" {
		u := d.next
		d.next = ""
		doc, err := d.fetch(ctx, u)
		if err != nil {
			return err
		}
		if err := d.absorb(doc, u); err != nil {
			return err
		}
		d.cfg.Logger.Debug("replay: fetched next page", "url", u, "entries", len(d.entries))
	}
	if n := min(want, len(d.entries)); n != d.visible {
		d.visible = n
		d.dirty = true
	}
	return nil
}

func (d *Driver) FindAll(ctx context.Context, selector string) ([]driver.Element, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.doc == nil {
		return nil, nil
	}
	d.render()
	return d.doc.FindAll(selector), nil
}

func (d *Driver) Wait(ctx context.Context, dur time.Duration) error {
	return driver.Sleep(ctx, dur)
}

// Screenshot has no raster surface to capture; it writes the rendered
// document instead.
func (d *Driver) Screenshot(ctx context.Context, path string) error {
	if d.closed {
		return ErrClosed
	}
	markup := ""
	if d.doc != nil {
		d.render()
		var err error
		if markup, err = d.doc.HTML(); err != nil {
			return fmt.Errorf("replay: screenshot: %w", err)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("replay: screenshot dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(markup), 0o644)
}

func (d *Driver) Close() error {
	d.closed = true
	d.doc = nil
	d.entries = nil
	return nil
}

func (d *Driver) fetch(ctx context.Context, rawURL string) (*htmldoc.Document, error) {
	res, err := d.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("replay: GET %s: %w", rawURL, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("replay: GET %s: status %d", rawURL, res.StatusCode())
	}
	doc, err := htmldoc.Parse(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("replay: %s: %w", rawURL, err)
	}
	return doc, nil
}

// absorb appends the entries of doc and remembers its next-page link.
func (d *Driver) absorb(doc *htmldoc.Document, pageURL string) error {
	root := doc.Selection()
	var ferr error
	root.Find(d.cfg.Container).First().ChildrenFiltered(d.cfg.Entry).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		h, err := goquery.OuterHtml(s)
		if err != nil {
			ferr = fmt.Errorf("replay: entry: %w", err)
			return false
		}
		d.entries = append(d.entries, h)
		return true
	})
	if ferr != nil {
		return ferr
	}

	href, ok := root.Find(d.cfg.Next).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("replay: page url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		d.cfg.Logger.Warn("replay: bad next link", "href", href, "error", err)
		return nil
	}
	d.next = base.ResolveReference(ref).String()
	return nil
}

// render rewrites the container with the visible entries.
func (d *Driver) render() {
	if !d.dirty {
		return
	}
	c := d.doc.Selection().Find(d.cfg.Container).First()
	c.Empty()
	if d.visible > 0 {
		c.AppendHtml(strings.Join(d.entries[:d.visible], ""))
	}
	d.dirty = false
}
