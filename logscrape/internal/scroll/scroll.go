// Package scroll pushes an infinite-scroll page forward until its last
// visible timestamp moves past a floor.
package scroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
	"github.com/hazyhaar/chatlogs/logscrape/internal/extract"
)

// StallError means the page stopped producing newer entries within the
// attempt budget, or the driver failed while scrolling.
type StallError struct {
	Floor    time.Time // timestamp that had to be exceeded
	Last     time.Time // last visible timestamp when giving up (zero if none)
	Attempts int       // scrolls issued
	Err      error     // driver failure, nil for a plain stall
}

func (e *StallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scroll: stalled after %d attempts past %s: %v",
			e.Attempts, e.Floor.Format(time.RFC3339), e.Err)
	}
	return fmt.Sprintf("scroll: stalled after %d attempts past %s",
		e.Attempts, e.Floor.Format(time.RFC3339))
}

func (e *StallError) Unwrap() error { return e.Err }

// Config tunes the controller.
type Config struct {
	Pixels      int           // scroll delta per attempt. Default: 450.
	Pause       time.Duration // wait after each scroll. Default: 2s, negative disables.
	MaxAttempts int           // scrolls before declaring a stall. Default: 20.
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.Pixels <= 0 {
		c.Pixels = 450
	}
	if c.Pause < 0 {
		c.Pause = 0
	} else if c.Pause == 0 {
		c.Pause = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller scrolls a driver forward.
type Controller struct {
	cfg Config
	x   *extract.Extractor
}

// New creates a Controller that reads positions through x.
func New(cfg Config, x *extract.Extractor) *Controller {
	cfg.defaults()
	return &Controller{cfg: cfg, x: x}
}

// MaxAttempts returns the configured attempt ceiling.
func (c *Controller) MaxAttempts() int { return c.cfg.MaxAttempts }

// AdvancePast returns the last visible timestamp once it is strictly after
// floor. It issues at most MaxAttempts scrolls; if the timestamp still has
// not moved it returns a *StallError.
func (c *Controller) AdvancePast(ctx context.Context, drv driver.Driver, floor time.Time) (time.Time, error) {
	var last time.Time
	for attempt := 0; ; attempt++ {
		ts, err := c.x.Peek(ctx, drv, extract.Last)
		switch {
		case err == nil:
			last = ts
			if ts.After(floor) {
				return ts, nil
			}
		case ctx.Err() != nil:
			return time.Time{}, ctx.Err()
		case !errors.Is(err, extract.ErrEmptyRender):
			return time.Time{}, &StallError{Floor: floor, Last: last, Attempts: attempt, Err: err}
		}

		if attempt == c.cfg.MaxAttempts {
			return time.Time{}, &StallError{Floor: floor, Last: last, Attempts: attempt}
		}

		if err := drv.ScrollBy(ctx, c.cfg.Pixels); err != nil {
			if ctx.Err() != nil {
				return time.Time{}, ctx.Err()
			}
			return time.Time{}, &StallError{Floor: floor, Last: last, Attempts: attempt + 1, Err: err}
		}
		if err := drv.Wait(ctx, c.cfg.Pause); err != nil {
			return time.Time{}, err
		}
		c.cfg.Logger.Debug("scroll: attempt", "attempt", attempt+1, "floor", floor, "last", last)
	}
}
