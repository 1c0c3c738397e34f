package sink

import (
	"context"

	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// Callback hands the transcript to a Go function, for embedding logscrape
// in a larger program.
type Callback func(ctx context.Context, t record.Transcript) error

func (c Callback) Write(ctx context.Context, t record.Transcript) error {
	if c == nil {
		return nil
	}
	return c(ctx, t)
}

func (c Callback) Close() error { return nil }
