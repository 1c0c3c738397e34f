// Package driver defines the rendering surface logscrape needs from a
// page engine. The scraper only speaks these interfaces, so a headless
// browser, an HTTP replay or a scripted test double are interchangeable.
package driver

import (
	"context"
	"errors"
	"time"
)

// ErrNoElement is returned by Element.Find when nothing matches.
var ErrNoElement = errors.New("driver: no element matches selector")

// Driver is one rendering session. A Driver is owned by a single
// goroutine; once Close is called it must not be used again.
type Driver interface {
	// Navigate loads url and returns once the document is available.
	Navigate(ctx context.Context, url string) error
	// FindAll returns currently rendered elements matching a CSS selector,
	// in document order. No match is an empty slice, not an error.
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// ScrollBy scrolls the viewport vertically to request more content.
	ScrollBy(ctx context.Context, pixels int) error
	// Wait pauses to let asynchronous rendering catch up.
	Wait(ctx context.Context, d time.Duration) error
	// Screenshot writes a diagnostic capture of the current state to path.
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// Element is a rendered node.
type Element interface {
	// Attribute returns the attribute value, or "" when it is absent.
	Attribute(name string) (string, error)
	// Text returns the rendered text content.
	Text() (string, error)
	// Find returns the first descendant matching selector, or ErrNoElement.
	Find(selector string) (Element, error)
}

// Factory builds a fresh, independent Driver. The scraper calls it once
// at start and again every time a stalled driver has to be replaced.
type Factory func(ctx context.Context) (Driver, error)

// Sleep blocks for d or until ctx is done. Driver implementations use it
// for Wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
