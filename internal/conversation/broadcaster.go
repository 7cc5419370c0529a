// ABOUTME: In-memory fan-out of message store changes to interested views
// ABOUTME: Publishes Loaded and Appended updates keyed by conversation, "" matches all

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/messages"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllConversations subscribes to updates for every conversation.
	AllConversations = ""
)

// UpdateKind says what happened to a conversation's message list.
type UpdateKind int

const (
	// Loaded means the list was replaced by a history load.
	Loaded UpdateKind = iota
	// Appended means a single new message was merged.
	Appended
)

func (k UpdateKind) String() string {
	switch k {
	case Loaded:
		return "loaded"
	case Appended:
		return "appended"
	default:
		return "unknown"
	}
}

// Update is delivered to subscribers after the store changes. Message is
// set for Appended only; on Loaded, views re-read the snapshot.
type Update struct {
	Kind           UpdateKind
	ConversationID string
	Message        messages.Message
}

// Broadcaster provides in-memory pub/sub for store updates. Subscribers
// register for a conversation ID, or AllConversations, and receive updates
// as they happen.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Update // conversationID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Update),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for updates on conversationID. Returns a
// channel that receives updates and a subscription ID for Unsubscribe. The
// subscription is removed when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan Update, string) {
	subID := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan Update)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish delivers u to subscribers of u.ConversationID and of
// AllConversations. Non-blocking: updates are dropped for subscribers whose
// channels are full.
func (b *Broadcaster) Publish(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.deliver(b.subscribers[u.ConversationID], u)
	if u.ConversationID != AllConversations {
		b.deliver(b.subscribers[AllConversations], u)
	}
}

// deliver must be called with at least the read lock held, so Unsubscribe
// cannot close a channel mid-send.
func (b *Broadcaster) deliver(subs map[string]chan Update, u Update) {
	for subID, ch := range subs {
		select {
		case ch <- u:
		default:
			b.logger.Debug("dropped update for slow subscriber",
				"conversation_id", u.ConversationID,
				"kind", u.Kind,
				"sub_id", subID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}

	b.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}

	b.logger.Debug("broadcaster closed")
}
