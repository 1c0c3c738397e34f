package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire format for message timestamps. It keeps the
// original offset and sub-second precision so values survive a round trip.
const TimestampLayout = time.RFC3339Nano

// wireMessage is the persisted shape shared with existing transcript files.
type wireMessage struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Nick      string `json:"nick"`
	Datatype  string `json:"datatype"`
}

// MarshalJSON encodes m in the transcript file format.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Timestamp: m.Timestamp.Format(TimestampLayout),
		Message:   m.Text,
		Nick:      m.Author,
		Datatype:  string(m.Kind),
	})
}

// UnmarshalJSON decodes a transcript file entry.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := time.Parse(TimestampLayout, w.Timestamp)
	if err != nil {
		return fmt.Errorf("record: timestamp %q: %w", w.Timestamp, err)
	}
	*m = Message{
		Timestamp: ts,
		Text:      w.Message,
		Author:    w.Nick,
		Kind:      Kind(w.Datatype),
	}
	return nil
}

// MarshalMessages serialises an ordered message list. A nil slice encodes
// as an empty array so output files are always valid lists.
func MarshalMessages(msgs []Message) ([]byte, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	return json.Marshal(msgs)
}

// UnmarshalMessages deserialises a list written by MarshalMessages.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
