package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

var jan1 = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

func minute(m int) time.Time { return jan1.Add(time.Duration(m) * time.Minute) }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newArchive serves one day of freenode/docker: chats at minutes 1 to 5 and
// one past the hour.
func newArchive(t *testing.T) *httptest.Server {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<html><body><ul id="Log">`)
	for _, m := range []int{1, 2, 3, 4, 5, 90} {
		fmt.Fprintf(&b, `<li data-type="chat" data-nick="alice"><a href="#"><time datetime="%s">x</time></a><div class="message chat">m%d</div></li>`,
			minute(m).Format(time.RFC3339), m)
	}
	b.WriteString(`</ul></body></html>`)
	page := b.String()

	mux := http.NewServeMux()
	mux.HandleFunc("/freenode/docker/2016-01-01/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a replay configuration without settle or scroll waits.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logscrape.yaml")
	cfg := `driver: replay
screenshot_dir: ` + t.TempDir() + `
scroll:
  pause: -1ms
  max_attempts: 2
recovery:
  settle: -1ms
  empty_retry_wait: -1ms
` + extra
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// scrapeOptions describes a run over the first hour of Jan 1 2016.
func scrapeOptions(t *testing.T, srv *httptest.Server, db string) options {
	t.Helper()
	o := options{
		configPath: writeConfig(t, ""),
		network:    "freenode",
		channel:    "docker",
		start:      "2016-01-01",
		end:        "2016-01-01T01:00:00Z",
		output:     filepath.Join(t.TempDir(), "out.json"),
		db:         db,
		baseURL:    srv.URL,
	}
	o.set = map[string]bool{"network": true, "channel": true, "start": true, "end": true,
		"output": true, "db": true, "base-url": true}
	return o
}

func readTranscript(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := record.UnmarshalMessages(data)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

// seedRun records an earlier run over w that reached lastSeen.
func seedRun(t *testing.T, db string, w record.Window, lastSeen time.Time) {
	t.Helper()
	ctx := context.Background()
	st, err := logscrape.OpenStore(db, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	id, err := st.BeginRun(ctx, w, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.UpdateProgress(ctx, id, record.Progress{State: "aborted", LastSeen: lastSeen}); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfig(t, "network: filenet\nchannel: filechan\nbase_url: http://file.example\n")
	t.Setenv("LOGSCRAPE_NETWORK", "envnet")
	t.Setenv("LOGSCRAPE_CHANNEL", "envchan")

	fc, err := loadConfig(options{
		configPath: path,
		network:    "flagnet",
		channel:    "ignored",
		skipInfo:   false,
		set:        map[string]bool{"network": true, "skip-info": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if fc.Network != "flagnet" {
		t.Errorf("network: got %q, want flag value", fc.Network)
	}
	if fc.Channel != "envchan" {
		t.Errorf("channel: got %q, want env value", fc.Channel)
	}
	if fc.BaseURL != "http://file.example" {
		t.Errorf("base url: got %q, want file value", fc.BaseURL)
	}
	if fc.Driver != "replay" {
		t.Errorf("driver: got %q, want replay", fc.Driver)
	}
	if *fc.SkipInfo {
		t.Error("skip-info flag not applied")
	}
}

func TestLoadConfig_TestMode(t *testing.T) {
	fc, err := loadConfig(options{
		test:    true,
		network: "other",
		start:   "2016-01-01",
		set:     map[string]bool{"network": true, "start": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if fc.Network != "freenode" || fc.Channel != "docker" {
		t.Errorf("channel: got %s/%s, want freenode/docker", fc.Network, fc.Channel)
	}
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	w, err := fc.Resolve(now)
	if err != nil {
		t.Fatal(err)
	}
	if !w.Start.Equal(now.Add(-24*time.Hour)) || !w.End.Equal(now) {
		t.Errorf("window: got %v..%v, want the last 24h", w.Start, w.End)
	}
}

func TestRun_WritesTranscriptAndStore(t *testing.T) {
	srv := newArchive(t)
	db := filepath.Join(t.TempDir(), "logs.db")
	o := scrapeOptions(t, srv, db)

	if err := run(context.Background(), quietLogger(), o); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(readTranscript(t, o.output), ","); got != "m1,m2,m3,m4,m5" {
		t.Errorf("transcript: got %s", got)
	}

	// -db without a sqlite sink still stores the messages and closes the run.
	st, err := logscrape.OpenStore(db, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	msgs, err := st.Messages(context.Background(), "freenode", "docker", jan1, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 5 {
		t.Errorf("stored messages: got %d, want 5", len(msgs))
	}
	var state string
	if err := st.DB().QueryRow(`SELECT state FROM runs`).Scan(&state); err != nil {
		t.Fatal(err)
	}
	if state != "done" {
		t.Errorf("run state: got %q, want done", state)
	}
}

func TestRun_ResumeFromCoveringRun(t *testing.T) {
	srv := newArchive(t)
	db := filepath.Join(t.TempDir(), "logs.db")
	seedRun(t, db, record.Window{Network: "freenode", Channel: "docker", Start: jan1, End: minute(60)}, minute(3))

	o := scrapeOptions(t, srv, db)
	o.resume = true
	o.set["resume"] = true
	if err := run(context.Background(), quietLogger(), o); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(readTranscript(t, o.output), ","); got != "m4,m5" {
		t.Errorf("transcript: got %s, want m4,m5", got)
	}
}

func TestRun_ResumeIgnoresOtherWindows(t *testing.T) {
	srv := newArchive(t)
	db := filepath.Join(t.TempDir(), "logs.db")
	feb1 := time.Date(2016, 2, 1, 0, 0, 0, 0, time.UTC)
	seedRun(t, db, record.Window{Network: "freenode", Channel: "docker", Start: feb1, End: feb1.AddDate(0, 1, 0)},
		time.Date(2016, 2, 28, 0, 0, 0, 0, time.UTC))
	seedRun(t, db, record.Window{Network: "freenode", Channel: "docker", Start: minute(2), End: minute(30)}, minute(4))

	o := scrapeOptions(t, srv, db)
	o.resume = true
	o.set["resume"] = true
	if err := run(context.Background(), quietLogger(), o); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(readTranscript(t, o.output), ","); got != "m1,m2,m3,m4,m5" {
		t.Errorf("transcript: got %s, want the whole window", got)
	}
}

func TestRun_ResumeNeedsDB(t *testing.T) {
	srv := newArchive(t)
	o := scrapeOptions(t, srv, "")
	o.resume = true
	o.set["resume"] = true
	if err := run(context.Background(), quietLogger(), o); err == nil {
		t.Fatal("expected error")
	}
}
