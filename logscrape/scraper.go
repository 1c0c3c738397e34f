// Package logscrape extracts a channel's history from an infinite-scroll
// chat archive. The scraper drives a single rendering session, harvests the
// entries it renders, scrolls for more, and replaces the session when the
// page stalls, resuming from the last confirmed position.
//
// logscrape reads, it does not interpret: message bodies are kept as
// rendered and handed to sinks once the run ends.
package logscrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
	"github.com/hazyhaar/chatlogs/logscrape/internal/extract"
	"github.com/hazyhaar/chatlogs/logscrape/internal/scroll"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// Selectors locate log entry parts in the archive markup.
type Selectors = extract.Selectors

// DefaultSelectors matches the botbot archive markup.
func DefaultSelectors() Selectors { return extract.DefaultSelectors() }

// Config tunes a Scraper. Zero values take the documented defaults;
// negative durations disable the corresponding wait.
type Config struct {
	// BaseURL is the archive scheme and host. Default: DefaultBaseURL.
	BaseURL string

	// Settle is the wait after each navigation. Default: 4s.
	Settle time.Duration

	// ScrollPixels is the delta of one scroll. Default: 450.
	ScrollPixels int
	// ScrollPause is the wait after each scroll. Default: 2s.
	ScrollPause time.Duration
	// MaxScrollAttempts is the scroll budget before a stall. Default: 20.
	MaxScrollAttempts int

	// EmptyRetries is how many times an empty render is re-polled before
	// the driver is replaced. Default: 3.
	EmptyRetries int
	// EmptyRetryWait is the pause between empty-render polls. Default: 1s.
	EmptyRetryWait time.Duration

	// MaxRecoveries caps consecutive driver replacements that fail to move
	// the position forward. Default: 3.
	MaxRecoveries int
	// ScreenshotDir receives stall screenshots. Default: current directory.
	ScreenshotDir string

	Selectors Selectors

	// Now is the clock used for screenshot names and progress stamps.
	Now func() time.Time
	// OnProgress is called after every poll cycle, at each recovery and
	// when the run ends.
	OnProgress func(record.Progress)

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Settle == 0 {
		c.Settle = 4 * time.Second
	}
	if c.EmptyRetries <= 0 {
		c.EmptyRetries = 3
	}
	if c.EmptyRetryWait == 0 {
		c.EmptyRetryWait = time.Second
	}
	if c.MaxRecoveries <= 0 {
		c.MaxRecoveries = 3
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "."
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result is the outcome of a run, complete or not.
type Result struct {
	Messages    []record.Message
	CurrentEnd  time.Time
	Recoveries  int
	Polls       int
	Screenshots []string
}

// Transcript packages a result for sinks. runErr is the error Run returned.
func (r *Result) Transcript(w record.Window, runErr error) record.Transcript {
	t := record.Transcript{
		Window:     w,
		Messages:   r.Messages,
		CurrentEnd: r.CurrentEnd,
		Complete:   runErr == nil,
	}
	if runErr != nil {
		t.Reason = runErr.Error()
	}
	return t
}

// Scraper runs extractions. It holds no per-run state and may be reused
// for successive runs, one at a time.
type Scraper struct {
	cfg     Config
	factory driver.Factory
	x       *extract.Extractor
	scroll  *scroll.Controller
	logger  *slog.Logger
}

// New creates a Scraper that obtains drivers from factory.
func New(cfg Config, factory driver.Factory) *Scraper {
	cfg.defaults()
	x := extract.New(cfg.Selectors, cfg.Logger)
	return &Scraper{
		cfg:     cfg,
		factory: factory,
		x:       x,
		scroll: scroll.New(scroll.Config{
			Pixels:      cfg.ScrollPixels,
			Pause:       cfg.ScrollPause,
			MaxAttempts: cfg.MaxScrollAttempts,
			Logger:      cfg.Logger,
		}, x),
		logger: cfg.Logger,
	}
}

// Run extracts every message of w, oldest first. On failure it still
// returns the messages gathered so far, together with an *AbortError
// carrying the position to resume from.
func (s *Scraper) Run(ctx context.Context, w record.Window, skipInfo bool) (*Result, error) {
	if err := w.Validate(); err != nil {
		return &Result{}, err
	}

	r := &run{
		s:        s,
		window:   w,
		skipInfo: skipInfo,
		cursor:   record.Cursor{LastSeen: w.Start},
		logger:   s.logger.With("network", w.Network, "channel", w.Channel),
	}
	defer r.closeDriver()

	err := r.loop(ctx)
	r.res.CurrentEnd = r.currentEnd
	if err != nil {
		r.setState(stateAborted)
		r.publish()
		r.logger.Error("scrape: aborted",
			"error", err, "current_end", r.currentEnd, "messages", len(r.res.Messages))
		return &r.res, &AbortError{CurrentEnd: r.currentEnd, Recoveries: r.res.Recoveries, Err: err}
	}
	r.logger.Info("scrape: complete",
		"messages", len(r.res.Messages), "recoveries", r.res.Recoveries, "polls", r.res.Polls)
	return &r.res, nil
}

type state string

const (
	stateNavigating state = "navigating"
	statePolling    state = "polling"
	stateScrolling  state = "scrolling"
	stateRecovering state = "recovering"
	stateDone       state = "done"
	stateAborted    state = "aborted"
)

// run is the state of one Run call. The cursor and the driver belong to it
// exclusively.
type run struct {
	s        *Scraper
	window   record.Window
	skipInfo bool
	logger   *slog.Logger

	drv        driver.Driver
	state      state
	cursor     record.Cursor
	currentEnd time.Time // furthest confirmed last-visible timestamp
	stuck      int       // consecutive recoveries without progress
	res        Result
}

func (r *run) loop(ctx context.Context) error {
	if err := r.open(ctx, r.window.Start); err != nil {
		return err
	}
	end, err := r.poll(ctx)

	for {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if rerr := r.recover(ctx, err); rerr != nil {
				return rerr
			}
			end, err = r.poll(ctx)
			continue
		}

		r.setState(statePolling)
		r.observe(end)
		if err = r.collect(ctx); err != nil {
			continue
		}
		r.publish()

		if !r.currentEnd.Before(r.window.End) {
			r.setState(stateDone)
			r.publish()
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		r.setState(stateScrolling)
		end, err = r.s.scroll.AdvancePast(ctx, r.drv, r.currentEnd)
	}
}

// open builds a fresh driver and navigates it to the day containing t.
func (r *run) open(ctx context.Context, t time.Time) error {
	r.setState(stateNavigating)
	drv, err := r.s.factory(ctx)
	if err != nil {
		return &DriverConstructionError{Err: err}
	}
	r.drv = drv

	u := ArchiveURL(r.s.cfg.BaseURL, r.window.Network, r.window.Channel, t)
	r.logger.Info("scrape: navigating", "url", u)
	if err := drv.Navigate(ctx, u); err != nil {
		return &NavigationError{URL: u, Err: err}
	}
	return drv.Wait(ctx, r.s.cfg.Settle)
}

// poll reads the last visible timestamp, re-polling a bounded number of
// times while the render is empty.
func (r *run) poll(ctx context.Context) (time.Time, error) {
	r.setState(statePolling)
	for i := 0; ; i++ {
		ts, err := r.s.x.Peek(ctx, r.drv, extract.Last)
		if err == nil || !errors.Is(err, extract.ErrEmptyRender) || i >= r.s.cfg.EmptyRetries {
			return ts, err
		}
		r.logger.Debug("scrape: empty render, waiting", "retry", i+1)
		if err := r.drv.Wait(ctx, r.s.cfg.EmptyRetryWait); err != nil {
			return time.Time{}, err
		}
	}
}

// observe records a confirmed position. The position only moves forward,
// so after a recovery the scroll floor is the furthest point reached rather
// than whatever the fresh page happens to show first.
func (r *run) observe(end time.Time) {
	r.res.Polls++
	if end.After(r.currentEnd) {
		r.currentEnd = end
		r.stuck = 0
	}
	r.logger.Info("scrape: current end", "current_end", r.currentEnd, "messages", len(r.res.Messages))
}

// collect appends rendered messages newer than the cursor. Messages at or
// past the window end are dropped, and so is any entry older than the one
// before it: re-rendered rows are filtered, never reordered.
func (r *run) collect(ctx context.Context) error {
	msgs, err := r.s.x.Extract(ctx, r.drv, r.cursor.LastSeen, r.skipInfo)
	if err != nil {
		return err
	}
	prev := r.cursor.LastSeen
	n := 0
	for _, m := range msgs {
		if !m.Timestamp.Before(r.window.End) || m.Timestamp.Before(prev) {
			continue
		}
		r.res.Messages = append(r.res.Messages, m)
		prev = m.Timestamp
		n++
	}
	if n > 0 {
		r.cursor.Advance(prev)
		r.logger.Debug("scrape: collected", "new", n, "total", len(r.res.Messages), "last_seen", r.cursor.LastSeen)
	}
	return nil
}

// recover replaces a stalled driver: screenshot, close the old one, build
// a new one at the last confirmed position. Failures here are fatal.
func (r *run) recover(ctx context.Context, cause error) error {
	r.setState(stateRecovering)
	if r.stuck >= r.s.cfg.MaxRecoveries {
		return fmt.Errorf("scrape: %d recoveries without progress: %w", r.stuck, cause)
	}
	r.stuck++
	r.res.Recoveries++
	r.publish()
	r.logger.Warn("scrape: recovering", "cause", cause, "attempt", r.stuck, "current_end", r.currentEnd)

	if r.drv != nil {
		name := fmt.Sprintf("error_%s_%02d.png", r.s.cfg.Now().Format("01022006150405"), r.res.Recoveries)
		path := filepath.Join(r.s.cfg.ScreenshotDir, name)
		if err := r.drv.Screenshot(ctx, path); err != nil {
			r.logger.Warn("scrape: screenshot failed", "path", path, "error", err)
		} else {
			r.res.Screenshots = append(r.res.Screenshots, path)
		}
	}
	r.closeDriver()

	target := r.currentEnd
	if target.IsZero() {
		target = r.window.Start
	}
	return r.open(ctx, target)
}

func (r *run) closeDriver() {
	if r.drv == nil {
		return
	}
	if err := r.drv.Close(); err != nil {
		r.logger.Warn("scrape: close driver", "error", err)
	}
	r.drv = nil
}

func (r *run) setState(st state) {
	if r.state != st {
		r.logger.Debug("scrape: state", "from", r.state, "to", st)
	}
	r.state = st
}

func (r *run) publish() {
	if r.s.cfg.OnProgress == nil {
		return
	}
	r.s.cfg.OnProgress(record.Progress{
		Window:     r.window,
		State:      string(r.state),
		CurrentEnd: r.currentEnd,
		LastSeen:   r.cursor.LastSeen,
		Messages:   len(r.res.Messages),
		Recoveries: r.res.Recoveries,
		UpdatedAt:  r.s.cfg.Now(),
	})
}
