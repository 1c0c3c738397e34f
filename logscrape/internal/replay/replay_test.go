package replay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func entry(min int, kind, nick, text string) string {
	ts := day.Add(time.Duration(min) * time.Minute).Format(time.RFC3339)
	return fmt.Sprintf(`<li data-type="%s" data-nick="%s"><a href="#"><time datetime="%s">x</time></a><div class="message %s">%s</div></li>`,
		kind, nick, ts, kind, text)
}

func page(next string, entries ...string) string {
	link := ""
	if next != "" {
		link = fmt.Sprintf(`<a rel="next" href="%s">older</a>`, next)
	}
	return `<html><body><ul id="Log">` + strings.Join(entries, "") + `</ul>` + link + `</body></html>`
}

type archive struct {
	srv   *httptest.Server
	page2 atomic.Int32
}

func newArchive(t *testing.T) *archive {
	t.Helper()
	a := &archive{}
	mux := http.NewServeMux()
	mux.HandleFunc("/freenode/docker/2024-01-01/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			a.page2.Add(1)
			fmt.Fprint(w, page("",
				entry(4, "chat", "dave", "four"),
				entry(5, "chat", "erin", "five"),
				entry(90, "chat", "late", "past end"),
			))
			return
		}
		fmt.Fprint(w, page("?page=2",
			entry(1, "chat", "alice", "one"),
			entry(2, "info", "bob", "bob joined"),
			entry(3, "chat", "carol", "three"),
		))
	})
	a.srv = httptest.NewServer(mux)
	t.Cleanup(a.srv.Close)
	return a
}

func (a *archive) url() string { return a.srv.URL + "/freenode/docker/2024-01-01/" }

func TestDriver_RevealsRowsAndFollowsNext(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()
	d := New(Config{InitialRows: 2, RowHeight: 45})
	defer d.Close()

	if err := d.Navigate(ctx, a.url()); err != nil {
		t.Fatal(err)
	}
	count := func() int {
		t.Helper()
		els, err := d.FindAll(ctx, "#Log > li")
		if err != nil {
			t.Fatal(err)
		}
		return len(els)
	}

	if got := count(); got != 2 {
		t.Fatalf("after navigate: got %d entries, want 2", got)
	}
	if err := d.ScrollBy(ctx, 45); err != nil {
		t.Fatal(err)
	}
	if got := count(); got != 3 {
		t.Errorf("after one row: got %d entries, want 3", got)
	}
	if a.page2.Load() != 0 {
		t.Errorf("next page fetched too early")
	}
	if err := d.ScrollBy(ctx, 90); err != nil {
		t.Fatal(err)
	}
	if got := count(); got != 5 {
		t.Errorf("after next page: got %d entries, want 5", got)
	}
	if err := d.ScrollBy(ctx, 450); err != nil {
		t.Fatal(err)
	}
	if got := count(); got != 6 {
		t.Errorf("at end: got %d entries, want 6", got)
	}
	if err := d.ScrollBy(ctx, 450); err != nil {
		t.Fatal(err)
	}
	if got := count(); got != 6 {
		t.Errorf("past end: got %d entries, want 6", got)
	}
	if n := a.page2.Load(); n != 1 {
		t.Errorf("page 2 fetched %d times, want 1", n)
	}
}

func TestDriver_HTTPError(t *testing.T) {
	a := newArchive(t)
	d := New(Config{Retries: -1})
	defer d.Close()

	err := d.Navigate(context.Background(), a.srv.URL+"/missing/")
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("got %v, want status 404 error", err)
	}
}

func TestDriver_ScreenshotWritesMarkup(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()
	d := New(Config{InitialRows: 1})
	defer d.Close()

	if err := d.Navigate(ctx, a.url()); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "shots", "error_1.png")
	if err := d.Screenshot(ctx, path); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "alice") || strings.Contains(string(b), "carol") {
		t.Errorf("screenshot does not reflect the visible rows:\n%s", b)
	}
}

func TestDriver_WithClient(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.Header.Get("User-Agent"))
		fmt.Fprint(w, page("", entry(1, "chat", "alice", "one")))
	}))
	defer srv.Close()

	client := resty.New().SetHeader("User-Agent", "logscrape-test")
	d := New(Config{}, WithClient(client))
	defer d.Close()

	if err := d.Navigate(context.Background(), srv.URL+"/n/c/2024-01-01/"); err != nil {
		t.Fatal(err)
	}
	if got, _ := agent.Load().(string); got != "logscrape-test" {
		t.Errorf("user agent: got %q, want %q", got, "logscrape-test")
	}
}

func TestDriver_Closed(t *testing.T) {
	d := New(Config{})
	d.Close()
	if _, err := d.FindAll(context.Background(), "li"); err != ErrClosed {
		t.Errorf("got %v, want ErrClosed", err)
	}
}
