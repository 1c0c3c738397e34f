package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout): one
// "message" envelope per message, then a "summary" envelope.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Write(_ context.Context, t record.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range t.Messages {
		if err := s.enc.Encode(envelope{Type: "message", Data: m}); err != nil {
			return err
		}
	}
	return s.enc.Encode(envelope{Type: "summary", Data: summarize(t)})
}

func (s *Stdout) Close() error { return nil }
