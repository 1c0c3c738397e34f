package logscrape

import (
	"fmt"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/internal/extract"
	"github.com/hazyhaar/chatlogs/logscrape/internal/scroll"
)

// ErrEmptyRender means no timestamped entry was rendered when one was
// expected. Re-exported from the extractor.
var ErrEmptyRender = extract.ErrEmptyRender

// StallError means scrolling stopped advancing the page. Re-exported from
// the scroll controller.
type StallError = scroll.StallError

// DriverConstructionError means no usable rendering engine could be started.
type DriverConstructionError struct {
	Err error
}

func (e *DriverConstructionError) Error() string {
	return fmt.Sprintf("scrape: start driver: %v", e.Err)
}

func (e *DriverConstructionError) Unwrap() error { return e.Err }

// NavigationError means a navigation did not produce a loadable page.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("scrape: navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// AbortError is returned by Run when the run stopped before reaching the
// window end. CurrentEnd is the furthest confirmed position, the point a
// rerun should resume from.
type AbortError struct {
	CurrentEnd time.Time
	Recoveries int
	Err        error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("scrape: aborted at %s after %d recoveries: %v",
		e.CurrentEnd.Format(time.RFC3339), e.Recoveries, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
