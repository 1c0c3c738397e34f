// Package sink defines output backends for finished transcripts.
package sink

import (
	"context"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// Sink is the output interface. Write is called once per run, complete or
// not; Transcript.Complete tells the two apart.
type Sink interface {
	Write(ctx context.Context, t record.Transcript) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// summary is the run metadata sent alongside messages.
type summary struct {
	Network    string     `json:"network"`
	Channel    string     `json:"channel"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	CurrentEnd *time.Time `json:"current_end,omitempty"`
	Complete   bool       `json:"complete"`
	Reason     string     `json:"reason,omitempty"`
	Count      int        `json:"message_count"`
}

func summarize(t record.Transcript) summary {
	s := summary{
		Network:  t.Window.Network,
		Channel:  t.Window.Channel,
		Start:    t.Window.Start.UTC(),
		End:      t.Window.End.UTC(),
		Complete: t.Complete,
		Reason:   t.Reason,
		Count:    len(t.Messages),
	}
	if !t.CurrentEnd.IsZero() {
		ce := t.CurrentEnd.UTC()
		s.CurrentEnd = &ce
	}
	return s
}
