// ABOUTME: Message value type with snake_case wire encoding and validation.
// ABOUTME: Accepts RFC 3339 (zoned or naive UTC) or Unix-millisecond timestamps.

package messages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidMessage is returned when a payload does not have the shape of a Message.
var ErrInvalidMessage = errors.New("invalid message")

// DefaultType is the message type assumed when the server omits one.
const DefaultType = "text"

// naiveLayouts are the zone-less layouts the server uses for datetimes.
// They are interpreted as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Message is an immutable chat message as assigned by the server.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	SenderAvatar   string
	Content        string
	Timestamp      time.Time
	Type           string
}

// wireMessage mirrors the JSON representation. Pointer fields let Decode
// distinguish a missing field from an empty one.
type wireMessage struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	SenderName     string          `json:"sender_name"`
	SenderAvatar   *string         `json:"sender_avatar,omitempty"`
	Content        *string         `json:"content"`
	Timestamp      json.RawMessage `json:"timestamp"`
	Type           string          `json:"message_type,omitempty"`
}

// Decode parses and validates a single message payload.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if w.Content == nil {
		return Message{}, fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	msg, err := w.toMessage()
	if err != nil {
		return Message{}, err
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Validate checks the fields every routed message must carry.
func (m Message) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidMessage)
	case m.ConversationID == "":
		return fmt.Errorf("%w: conversation_id is required", ErrInvalidMessage)
	case m.SenderID == "":
		return fmt.Errorf("%w: sender_id is required", ErrInvalidMessage)
	case m.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidMessage)
	}
	return nil
}

// UnmarshalJSON decodes a message without requiring every field; history
// responses are trusted more than pushed frames. Use Decode for validation.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	msg, err := w.toMessage()
	if err != nil {
		return err
	}
	*m = msg
	return nil
}

// MarshalJSON encodes the message in the server's wire shape.
func (m Message) MarshalJSON() ([]byte, error) {
	content := m.Content
	w := wireMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Content:        &content,
		Type:           m.Type,
	}
	if m.SenderAvatar != "" {
		avatar := m.SenderAvatar
		w.SenderAvatar = &avatar
	}
	ts, err := json.Marshal(m.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	w.Timestamp = ts
	return json.Marshal(w)
}

func (w *wireMessage) toMessage() (Message, error) {
	msg := Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		SenderID:       w.SenderID,
		SenderName:     w.SenderName,
		Type:           w.Type,
	}
	if w.SenderAvatar != nil {
		msg.SenderAvatar = *w.SenderAvatar
	}
	if w.Content != nil {
		msg.Content = *w.Content
	}
	if msg.Type == "" {
		msg.Type = DefaultType
	}
	if len(w.Timestamp) > 0 && !bytes.Equal(w.Timestamp, []byte("null")) {
		ts, err := ParseTimestamp(w.Timestamp)
		if err != nil {
			return Message{}, err
		}
		msg.Timestamp = ts
	}
	return msg, nil
}

// ParseTimestamp decodes a JSON timestamp: an RFC 3339 string, a zone-less
// ISO 8601 string (taken as UTC), or an integer count of Unix milliseconds.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalidMessage)
	}

	if raw[0] != '"' {
		millis, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %s: %v", ErrInvalidMessage, raw, err)
		}
		return time.UnixMilli(millis).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidMessage, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrInvalidMessage, s)
}
