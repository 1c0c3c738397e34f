package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/record"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatus_BeforeFirstUpdate(t *testing.T) {
	s := New(nil)
	if rec := get(t, s.Handler(), "/status"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rec.Code)
	}
	if rec := get(t, s.Handler(), "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz: got %d, want 200", rec.Code)
	}
}

func TestStatus_ReportsProgress(t *testing.T) {
	s := New(nil)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Update(record.Progress{
		Window:     record.Window{Network: "freenode", Channel: "docker", Start: day, End: day.Add(time.Hour)},
		State:      "scrolling",
		CurrentEnd: day.Add(10 * time.Minute),
		Messages:   42,
		Recoveries: 1,
		UpdatedAt:  day.Add(11 * time.Minute),
	})

	rec := get(t, s.Handler(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var got progressView
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.State != "scrolling" || got.Messages != 42 || got.Recoveries != 1 || got.Channel != "docker" {
		t.Errorf("progress: %+v", got)
	}
	if got.CurrentEnd == nil || !got.CurrentEnd.Equal(day.Add(10*time.Minute)) {
		t.Errorf("current_end: got %v", got.CurrentEnd)
	}
	if got.LastSeen != nil {
		t.Errorf("last_seen: got %v, want omitted", got.LastSeen)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := New(nil)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
