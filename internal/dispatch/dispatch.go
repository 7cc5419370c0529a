// ABOUTME: OutboundDispatcher posting locally authored text to the chat server.
// ABOUTME: Fails fast with connection.ErrNotConnected; never queues or retries.

// Package dispatch submits locally authored messages. A submission is only
// attempted while the push channel is open, so the server's fan-out of the
// new message reaches this client too. It either goes out immediately or
// fails; the caller decides whether to let the user try again.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/2389/coven-chat/internal/connection"
	"github.com/2389/coven-chat/internal/messages"
	"github.com/2389/coven-chat/internal/metrics"
)

// MaxContentLength is the longest message body the server accepts, in characters.
const MaxContentLength = 1000

// Submission errors
var (
	ErrEmptyContent        = errors.New("message content is empty")
	ErrContentTooLong      = errors.New("message content too long")
	ErrMissingConversation = errors.New("conversation id is required")
)

// Gate reports the push channel's state. *connection.Manager satisfies it.
type Gate interface {
	State() connection.State
}

// Poster stores a message on the server, which then pushes it to every
// participant. *api.Client satisfies it.
type Poster interface {
	SendMessage(ctx context.Context, conversationID, content string) (messages.Message, error)
}

// Dispatcher validates and posts outbound messages.
type Dispatcher struct {
	gate   Gate
	poster Poster
	logger *slog.Logger
}

// New creates a Dispatcher. Pass nil logger for default.
func New(gate Gate, poster Poster, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		gate:   gate,
		poster: poster,
		logger: logger.With("component", "dispatcher"),
	}
}

// Submit posts content to conversationID. Arguments are validated first;
// then, if the channel is not connected, connection.ErrNotConnected is
// returned and nothing is kept for later. On success the message as stored
// by the server is returned; its id matches the one the server pushes back.
func (d *Dispatcher) Submit(ctx context.Context, conversationID, content string) (messages.Message, error) {
	content, err := validate(conversationID, content)
	if err != nil {
		metrics.SubmitsTotal.WithLabelValues("invalid").Inc()
		return messages.Message{}, err
	}

	if d.gate.State() != connection.Connected {
		metrics.SubmitsTotal.WithLabelValues("not_connected").Inc()
		d.logger.Debug("submit rejected, not connected", "conversation_id", conversationID)
		return messages.Message{}, connection.ErrNotConnected
	}

	msg, err := d.poster.SendMessage(ctx, conversationID, content)
	if err != nil {
		metrics.SubmitsTotal.WithLabelValues("error").Inc()
		d.logger.Warn("submit failed", "conversation_id", conversationID, "error", err)
		return messages.Message{}, fmt.Errorf("posting message: %w", err)
	}

	metrics.SubmitsTotal.WithLabelValues("sent").Inc()
	d.logger.Debug("message submitted",
		"conversation_id", conversationID,
		"message_id", msg.ID)
	return msg, nil
}

// validate returns the trimmed content.
func validate(conversationID, content string) (string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return "", ErrMissingConversation
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if n := utf8.RuneCountInString(content); n > MaxContentLength {
		return "", fmt.Errorf("%w: %d > %d characters", ErrContentTooLong, n, MaxContentLength)
	}
	return content, nil
}

// Validate checks conversationID and content the way Submit does and
// returns the trimmed content.
func Validate(conversationID, content string) (string, error) {
	return validate(conversationID, content)
}
