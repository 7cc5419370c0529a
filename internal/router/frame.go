// ABOUTME: Tagged-union frame variants and the validating classifier.
// ABOUTME: Malformed or unknown frames become Unrecognized rather than errors.

package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/coven-chat/internal/messages"
)

// ErrMalformedFrame is the cause recorded on Unrecognized frames that could
// not be decoded.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame type discriminants on the wire.
const (
	TypeNewMessage  = "new_message"
	TypeUserOnline  = "user_online"
	TypeUserOffline = "user_offline"
)

// Frame is one classified inbound frame: NewMessage, UserOnline,
// UserOffline or Unrecognized.
type Frame interface {
	// Kind names the variant for logs and metrics.
	Kind() string
	isFrame()
}

// NewMessage carries a validated message pushed by the server.
type NewMessage struct {
	Message messages.Message
}

// UserOnline reports that a user connected.
type UserOnline struct {
	UserID string
}

// UserOffline reports that a user disconnected.
type UserOffline struct {
	UserID string
}

// Unrecognized is a frame that is not a well-formed, known envelope.
type Unrecognized struct {
	Type string // discriminant if one could be read
	Raw  []byte
	Err  error
}

func (NewMessage) Kind() string   { return TypeNewMessage }
func (UserOnline) Kind() string   { return TypeUserOnline }
func (UserOffline) Kind() string  { return TypeUserOffline }
func (Unrecognized) Kind() string { return "unrecognized" }

func (NewMessage) isFrame()   {}
func (UserOnline) isFrame()   {}
func (UserOffline) isFrame()  {}
func (Unrecognized) isFrame() {}

// Classify decodes raw into a Frame. It never fails: anything that is not a
// valid known envelope comes back as Unrecognized with the cause in Err.
func Classify(raw []byte) Frame {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return unrecognized("", raw, "envelope is not a JSON object")
	}

	typeField, ok := fields["type"]
	if !ok {
		return unrecognized("", raw, "missing type")
	}
	var typ string
	if err := json.Unmarshal(typeField, &typ); err != nil {
		return unrecognized("", raw, "type is not a string")
	}

	switch typ {
	case TypeNewMessage:
		payload, ok := fields["message"]
		if !ok {
			return unrecognized(typ, raw, "missing message")
		}
		msg, err := messages.Decode(payload)
		if err != nil {
			return Unrecognized{Type: typ, Raw: raw, Err: fmt.Errorf("%w: %w", ErrMalformedFrame, err)}
		}
		return NewMessage{Message: msg}

	case TypeUserOnline, TypeUserOffline:
		userID, err := decodeUserID(fields)
		if err != nil {
			return unrecognized(typ, raw, err.Error())
		}
		if typ == TypeUserOnline {
			return UserOnline{UserID: userID}
		}
		return UserOffline{UserID: userID}

	default:
		return unrecognized(typ, raw, "unknown type")
	}
}

func decodeUserID(fields map[string]json.RawMessage) (string, error) {
	raw, ok := fields["user_id"]
	if !ok {
		return "", errors.New("missing user_id")
	}
	var userID string
	if err := json.Unmarshal(raw, &userID); err != nil {
		return "", errors.New("user_id is not a string")
	}
	if userID == "" {
		return "", errors.New("empty user_id")
	}
	return userID, nil
}

func unrecognized(typ string, raw []byte, reason string) Unrecognized {
	return Unrecognized{Type: typ, Raw: raw, Err: fmt.Errorf("%w: %s", ErrMalformedFrame, reason)}
}
