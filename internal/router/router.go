// ABOUTME: Routes classified frames to the message store and presence collaborators.
// ABOUTME: Unrecognized frames are logged for diagnostics and dropped.

package router

import (
	"log/slog"

	"github.com/2389/coven-chat/internal/messages"
	"github.com/2389/coven-chat/internal/metrics"
)

// MessageSink receives pushed messages. Merge reports whether anything changed.
type MessageSink interface {
	Merge(msg messages.Message) bool
}

// PresenceSink receives online/offline notices.
type PresenceSink interface {
	SetOnline(userID string, online bool)
}

// Router classifies raw frames and dispatches them.
type Router struct {
	messages MessageSink
	presence PresenceSink
	logger   *slog.Logger
}

// New creates a Router. presence may be nil, in which case presence frames
// are classified and dropped. Pass nil logger for default.
func New(sink MessageSink, presence PresenceSink, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		messages: sink,
		presence: presence,
		logger:   logger.With("component", "router"),
	}
}

// Route classifies raw and forwards it. It returns the classified frame so
// callers can observe what happened; it never panics on bad input.
func (r *Router) Route(raw []byte) Frame {
	frame := Classify(raw)
	metrics.FramesTotal.WithLabelValues(frame.Kind()).Inc()

	switch f := frame.(type) {
	case NewMessage:
		changed := r.messages.Merge(f.Message)
		r.logger.Debug("routed message",
			"conversation_id", f.Message.ConversationID,
			"message_id", f.Message.ID,
			"changed", changed)

	case UserOnline:
		if r.presence != nil {
			r.presence.SetOnline(f.UserID, true)
		}

	case UserOffline:
		if r.presence != nil {
			r.presence.SetOnline(f.UserID, false)
		}

	case Unrecognized:
		r.logger.Debug("dropping unrecognized frame",
			"type", f.Type,
			"error", f.Err,
			"bytes", len(f.Raw))
	}

	return frame
}

// Handle routes raw and discards the result; it fits connection.Manager.OnFrame.
func (r *Router) Handle(raw []byte) {
	r.Route(raw)
}
