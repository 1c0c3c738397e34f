package scroll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
	"github.com/hazyhaar/chatlogs/logscrape/driver/drivertest"
	"github.com/hazyhaar/chatlogs/logscrape/internal/extract"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return day.Add(time.Duration(sec) * time.Second) }

func archive(n int) *drivertest.Archive {
	a := &drivertest.Archive{PageSize: 3, Step: 2}
	for i := range n {
		a.Entries = append(a.Entries, drivertest.Chat(at(i+1), "alice", "msg"))
	}
	return a
}

func open(t *testing.T, a *drivertest.Archive) driver.Driver {
	t.Helper()
	ctx := context.Background()
	drv, err := a.Factory()(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := drv.Navigate(ctx, "https://botbot.me/freenode/docker/2024-01-01/"); err != nil {
		t.Fatal(err)
	}
	return drv
}

func newController(max int) *Controller {
	return New(Config{MaxAttempts: max, Pause: -1}, extract.New(extract.Selectors{}, nil))
}

func TestAdvancePast_AlreadyPast(t *testing.T) {
	a := archive(10)
	drv := open(t, a)

	ts, err := newController(3).AdvancePast(context.Background(), drv, at(1))
	if err != nil {
		t.Fatal(err)
	}
	if !ts.Equal(at(3)) {
		t.Errorf("got %v, want %v", ts, at(3))
	}
	if a.Scrolls(0) != 0 {
		t.Errorf("scrolls: got %d, want 0", a.Scrolls(0))
	}
}

func TestAdvancePast_ScrollsUntilPast(t *testing.T) {
	a := archive(10)
	drv := open(t, a)

	ts, err := newController(20).AdvancePast(context.Background(), drv, at(6))
	if err != nil {
		t.Fatal(err)
	}
	// 3 visible, +2 per scroll: 5, 7 — two scrolls needed.
	if !ts.Equal(at(7)) {
		t.Errorf("got %v, want %v", ts, at(7))
	}
	if a.Scrolls(0) != 2 {
		t.Errorf("scrolls: got %d, want 2", a.Scrolls(0))
	}
}

func TestAdvancePast_StallAfterExactlyMaxAttempts(t *testing.T) {
	a := archive(10)
	a.Stall = func(_, _ int) bool { return true }
	drv := open(t, a)

	_, err := newController(3).AdvancePast(context.Background(), drv, at(3))
	var stall *StallError
	if !errors.As(err, &stall) {
		t.Fatalf("got %v, want *StallError", err)
	}
	if a.Scrolls(0) != 3 {
		t.Errorf("scrolls: got %d, want exactly 3", a.Scrolls(0))
	}
	if stall.Attempts != 3 {
		t.Errorf("Attempts: got %d, want 3", stall.Attempts)
	}
	if !stall.Last.Equal(at(3)) || !stall.Floor.Equal(at(3)) {
		t.Errorf("stall: %+v", stall)
	}
}

func TestAdvancePast_EndOfArchiveStalls(t *testing.T) {
	a := archive(4)
	drv := open(t, a)

	_, err := newController(5).AdvancePast(context.Background(), drv, at(4))
	var stall *StallError
	if !errors.As(err, &stall) {
		t.Fatalf("got %v, want *StallError", err)
	}
	if a.Scrolls(0) != 5 {
		t.Errorf("scrolls: got %d, want 5", a.Scrolls(0))
	}
}

func TestAdvancePast_EmptyRenderCountsAsNoProgress(t *testing.T) {
	a := &drivertest.Archive{}
	drv := open(t, a)

	_, err := newController(2).AdvancePast(context.Background(), drv, day)
	var stall *StallError
	if !errors.As(err, &stall) {
		t.Fatalf("got %v, want *StallError", err)
	}
	if !stall.Last.IsZero() {
		t.Errorf("Last: got %v, want zero", stall.Last)
	}
}

func TestAdvancePast_DriverFailureIsStall(t *testing.T) {
	a := archive(10)
	drv := open(t, a)
	drv.Close()

	_, err := newController(3).AdvancePast(context.Background(), drv, at(5))
	var stall *StallError
	if !errors.As(err, &stall) {
		t.Fatalf("got %v, want *StallError", err)
	}
	if !errors.Is(err, drivertest.ErrClosed) {
		t.Errorf("stall should wrap the driver error, got %v", err)
	}
}

func TestAdvancePast_Cancelled(t *testing.T) {
	a := archive(10)
	a.Stall = func(_, _ int) bool { return true }
	drv := open(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newController(3).AdvancePast(ctx, drv, at(5))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
