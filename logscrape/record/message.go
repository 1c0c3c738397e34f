// Package record defines the structured types produced by logscrape.
// These are the public API contract: any consumer of a transcript (sinks,
// custom pipelines) imports this package to read extracted messages.
package record

import (
	"errors"
	"time"
)

// Kind is the log entry type carried by the archive's data-type attribute.
type Kind string

const (
	KindChat Kind = "chat" // regular channel message
	KindInfo Kind = "info" // join, quit, nick change
)

// Message is a single extracted log line. Values are never mutated after
// extraction.
type Message struct {
	Timestamp time.Time
	Text      string
	Author    string
	Kind      Kind
}

// Window is the requested range of a channel's history. Start is the
// initial cutoff; End is exclusive and also the termination point.
type Window struct {
	Network string
	Channel string
	Start   time.Time
	End     time.Time
}

var (
	ErrMissingNetwork = errors.New("record: window has no network")
	ErrMissingChannel = errors.New("record: window has no channel")
	ErrEmptyWindow    = errors.New("record: window end is not after start")
)

// Validate checks that w describes a scrapeable range.
func (w Window) Validate() error {
	switch {
	case w.Network == "":
		return ErrMissingNetwork
	case w.Channel == "":
		return ErrMissingChannel
	case !w.End.After(w.Start):
		return ErrEmptyWindow
	}
	return nil
}

// Cursor tracks the newest timestamp already captured during a run.
type Cursor struct {
	LastSeen time.Time
}

// Advance moves the cursor to t if t is newer. It reports whether the
// cursor moved; an older or equal t leaves it untouched.
func (c *Cursor) Advance(t time.Time) bool {
	if !t.After(c.LastSeen) {
		return false
	}
	c.LastSeen = t
	return true
}

// Position is the timestamp range currently rendered by a driver.
// Recomputed on every poll, never persisted.
type Position struct {
	FirstVisible time.Time
	LastVisible  time.Time
}

// Transcript is what a run hands to sinks: the accumulated messages plus
// enough context to resume when the run stopped early.
type Transcript struct {
	Window     Window
	Messages   []Message
	CurrentEnd time.Time
	Complete   bool
	Reason     string // failure reason when Complete is false
}

// Progress is a point-in-time view of a running scrape.
type Progress struct {
	Window     Window
	State      string
	CurrentEnd time.Time
	LastSeen   time.Time
	Messages   int
	Recoveries int
	UpdatedAt  time.Time
}
