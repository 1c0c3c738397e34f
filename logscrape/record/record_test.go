package record

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMessagesRoundtrip(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	msgs := []Message{
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), Text: "hello", Author: "alice", Kind: KindChat},
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 2, 123456000, time.UTC), Text: "alice joined", Author: "alice", Kind: KindInfo},
		{Timestamp: time.Date(2024, 1, 1, 1, 0, 3, 0, paris), Text: "bonjour \"quoted\"", Author: "bob", Kind: KindChat},
	}

	data, err := MarshalMessages(msgs)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalMessages(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(msgs, got); diff != "" {
		t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalMessages_WireKeys(t *testing.T) {
	data, err := MarshalMessages([]Message{{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
		Text:      "hi",
		Author:    "alice",
		Kind:      KindChat,
	}})
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"timestamp":"2024-01-01T00:00:01Z","message":"hi","nick":"alice","datatype":"chat"}]`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestMarshalMessages_Nil(t *testing.T) {
	data, err := MarshalMessages(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("got %s, want []", data)
	}
}

func TestUnmarshalMessages_BadTimestamp(t *testing.T) {
	_, err := UnmarshalMessages([]byte(`[{"timestamp":"yesterday","message":"x","nick":"a","datatype":"chat"}]`))
	if err == nil || !strings.Contains(err.Error(), "yesterday") {
		t.Fatalf("expected timestamp error, got %v", err)
	}
}

func TestCursor_NeverRegresses(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Cursor{LastSeen: base}

	if !c.Advance(base.Add(time.Minute)) {
		t.Fatal("advance to newer time should move the cursor")
	}
	if c.Advance(base) {
		t.Error("advance to older time should be ignored")
	}
	if c.Advance(base.Add(time.Minute)) {
		t.Error("advance to equal time should be ignored")
	}
	if !c.LastSeen.Equal(base.Add(time.Minute)) {
		t.Errorf("LastSeen: got %v, want %v", c.LastSeen, base.Add(time.Minute))
	}
}

func TestWindow_Validate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ok := Window{Network: "freenode", Channel: "docker", Start: start, End: start.Add(time.Hour)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid window: %v", err)
	}

	noNet := ok
	noNet.Network = ""
	if err := noNet.Validate(); err != ErrMissingNetwork {
		t.Errorf("missing network: got %v", err)
	}

	noChan := ok
	noChan.Channel = ""
	if err := noChan.Validate(); err != ErrMissingChannel {
		t.Errorf("missing channel: got %v", err)
	}

	backwards := ok
	backwards.End = start
	if err := backwards.Validate(); err != ErrEmptyWindow {
		t.Errorf("empty window: got %v", err)
	}
}
