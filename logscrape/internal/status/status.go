// Package status serves the progress of a running scrape over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// Server exposes GET /status (latest progress) and GET /healthz.
type Server struct {
	mu      sync.RWMutex
	current record.Progress
	seen    bool
	logger  *slog.Logger
	router  chi.Router
}

// New creates a Server. Feed it with Update.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)
	s.router = r
	return s
}

// Update replaces the published progress. Safe for concurrent use.
func (s *Server) Update(p record.Progress) {
	s.mu.Lock()
	s.current = p
	s.seen = true
	s.mu.Unlock()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("status: listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("status: shutdown", "error", err)
		return err
	}
	return nil
}

type progressView struct {
	Network    string     `json:"network"`
	Channel    string     `json:"channel"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	State      string     `json:"state"`
	CurrentEnd *time.Time `json:"current_end,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	Messages   int        `json:"messages"`
	Recoveries int        `json:"recoveries"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	p, seen := s.current, s.seen
	s.mu.RUnlock()

	if !seen {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"state": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, progressView{
		Network:    p.Window.Network,
		Channel:    p.Window.Channel,
		Start:      p.Window.Start.UTC(),
		End:        p.Window.End.UTC(),
		State:      p.State,
		CurrentEnd: optional(p.CurrentEnd),
		LastSeen:   optional(p.LastSeen),
		Messages:   p.Messages,
		Recoveries: p.Recoveries,
		UpdatedAt:  p.UpdatedAt.UTC(),
	})
}

func optional(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
