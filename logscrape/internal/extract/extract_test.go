package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
	"github.com/hazyhaar/chatlogs/logscrape/driver/drivertest"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return day.Add(time.Duration(sec) * time.Second) }

func openDriver(t *testing.T, a *drivertest.Archive) driver.Driver {
	t.Helper()
	ctx := context.Background()
	drv, err := a.Factory()(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := drv.Navigate(ctx, "https://botbot.me/freenode/docker/2024-01-01/"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { drv.Close() })
	return drv
}

func mixedArchive() *drivertest.Archive {
	return &drivertest.Archive{
		PageSize: 20,
		Entries: []drivertest.Entry{
			drivertest.Chat(at(10), "alice", "one"),
			drivertest.Info(at(20), "bob", "bob joined"),
			drivertest.Chat(at(30), "bob", "  two  "),
			drivertest.Chat(at(40), "carol", "three"),
			drivertest.Info(at(50), "dave", "dave quit"),
			drivertest.Chat(at(60), "alice", "four"),
			drivertest.Chat(at(70), "bob", "five"),
		},
	}
}

func TestExtract_SkipInfo(t *testing.T) {
	drv := openDriver(t, mixedArchive())
	x := New(Selectors{}, nil)

	msgs, err := x.Extract(context.Background(), drv, time.Time{}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
	for _, m := range msgs {
		if m.Kind == record.KindInfo {
			t.Errorf("info line leaked: %+v", m)
		}
	}
	if msgs[1].Text != "two" {
		t.Errorf("text not trimmed: %q", msgs[1].Text)
	}
	for i := 1; i < len(msgs); i++ {
		if !msgs[i].Timestamp.After(msgs[i-1].Timestamp) {
			t.Errorf("not in document order at %d", i)
		}
	}
}

func TestExtract_KeepInfo(t *testing.T) {
	drv := openDriver(t, mixedArchive())
	x := New(Selectors{}, nil)

	msgs, err := x.Extract(context.Background(), drv, time.Time{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 7 {
		t.Fatalf("got %d messages, want 7", len(msgs))
	}
	if msgs[1].Kind != record.KindInfo || msgs[1].Text != "bob joined" || msgs[1].Author != "bob" {
		t.Errorf("info entry: %+v", msgs[1])
	}
}

func TestExtract_Cutoff(t *testing.T) {
	drv := openDriver(t, mixedArchive())
	x := New(Selectors{}, nil)

	msgs, err := x.Extract(context.Background(), drv, at(40), false)
	if err != nil {
		t.Fatal(err)
	}
	// at(40) itself is already captured.
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if !msgs[0].Timestamp.Equal(at(50)) {
		t.Errorf("first after cutoff: got %v, want %v", msgs[0].Timestamp, at(50))
	}
}

func TestExtract_EmptyRender(t *testing.T) {
	drv := openDriver(t, &drivertest.Archive{})
	x := New(Selectors{}, nil)

	msgs, err := x.Extract(context.Background(), drv, time.Time{}, true)
	if err != nil {
		t.Fatalf("empty render should not fail: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0", len(msgs))
	}
}

func TestExtract_SkipsEntryWithoutTimestamp(t *testing.T) {
	a := &drivertest.Archive{Entries: []drivertest.Entry{
		drivertest.Chat(at(1), "alice", "one"),
		{Time: at(2), Kind: record.KindChat, Nick: "bob", Text: "broken", NoTime: true},
		drivertest.Chat(at(3), "carol", "three"),
	}}
	drv := openDriver(t, a)

	msgs, err := New(Selectors{}, nil).Extract(context.Background(), drv, time.Time{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[1].Author != "carol" {
		t.Fatalf("got %+v", msgs)
	}
}

func TestPeek(t *testing.T) {
	drv := openDriver(t, mixedArchive())
	x := New(Selectors{}, nil)
	ctx := context.Background()

	first, err := x.Peek(ctx, drv, First)
	if err != nil {
		t.Fatal(err)
	}
	last, err := x.Peek(ctx, drv, Last)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(at(10)) || !last.Equal(at(70)) {
		t.Errorf("peek: first=%v last=%v", first, last)
	}

	pos, err := x.Position(ctx, drv)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.FirstVisible.Equal(first) || !pos.LastVisible.Equal(last) {
		t.Errorf("position: %+v", pos)
	}
}

func TestPeek_PassesOverUntimedTail(t *testing.T) {
	a := &drivertest.Archive{Entries: []drivertest.Entry{
		drivertest.Chat(at(1), "alice", "one"),
		{Time: at(2), Kind: record.KindChat, Nick: "bob", NoTime: true},
	}}
	drv := openDriver(t, a)

	last, err := New(Selectors{}, nil).Peek(context.Background(), drv, Last)
	if err != nil {
		t.Fatal(err)
	}
	if !last.Equal(at(1)) {
		t.Errorf("last: got %v, want %v", last, at(1))
	}
}

func TestPeek_EmptyRender(t *testing.T) {
	drv := openDriver(t, &drivertest.Archive{})
	_, err := New(Selectors{}, nil).Peek(context.Background(), drv, Last)
	if !errors.Is(err, ErrEmptyRender) {
		t.Fatalf("got %v, want ErrEmptyRender", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Time{
		"2024-01-01T00:00:01Z":             at(1),
		"2024-01-01T00:00:01+00:00":        at(1),
		"2024-01-01T01:00:01+01:00":        at(1),
		"2024-01-01T00:00:01.500000+00:00": at(1).Add(500 * time.Millisecond),
		"2024-01-01T00:00:01":              at(1),
		"2024-01-01 00:00:01":              at(1),
	}
	for raw, want := range cases {
		got, err := ParseTimestamp(raw)
		if err != nil {
			t.Errorf("%s: %v", raw, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("%s: got %v, want %v", raw, got, want)
		}
	}

	if _, err := ParseTimestamp("not a time"); err == nil {
		t.Error("expected error for garbage")
	}
	if _, err := ParseTimestamp(""); err == nil {
		t.Error("expected error for empty")
	}
}
