// ABOUTME: Realtime Client wiring connection, router, store, presence and dispatcher.
// ABOUTME: One Client per signed-in session; views read snapshots and subscribe to updates.

package realtime

import (
	"context"
	"iter"
	"log/slog"

	"github.com/2389/coven-chat/internal/connection"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dispatch"
	"github.com/2389/coven-chat/internal/messages"
	"github.com/2389/coven-chat/internal/presence"
	"github.com/2389/coven-chat/internal/router"
	"github.com/2389/coven-chat/internal/session"
)

// Client is the synchronization core for one session.
type Client struct {
	manager     *connection.Manager
	store       *messages.Store
	presence    *presence.Tracker
	dispatcher  *dispatch.Dispatcher
	broadcaster *conversation.Broadcaster
	router      *router.Router
	logger      *slog.Logger

	unsubscribeFrames func()
}

// New builds a Client and its components. Submitted messages are stored on
// the server through poster, usually an *api.Client. cfg.Logger is shared
// by every component. Call Close to release it.
func New(cfg connection.Config, poster dispatch.Poster) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger

	c := &Client{
		manager:     connection.NewManager(cfg),
		store:       messages.NewStore(logger),
		presence:    presence.NewTracker(logger),
		broadcaster: conversation.NewBroadcaster(logger),
		logger:      logger.With("component", "realtime"),
	}
	c.dispatcher = dispatch.New(c.manager, poster, logger)
	c.router = router.New(storeSink{c}, c.presence, logger)
	c.unsubscribeFrames = c.manager.OnFrame(c.router.Handle)
	return c
}

// storeSink merges routed messages and announces the ones that were new.
type storeSink struct{ c *Client }

func (s storeSink) Merge(msg messages.Message) bool {
	return s.c.Merge(msg)
}

// Connect opens the channel for identity. See connection.Manager.Connect.
func (c *Client) Connect(identity session.Identity) error {
	return c.manager.Connect(identity)
}

// Disconnect closes the channel and cancels any pending reconnection.
func (c *Client) Disconnect() {
	c.manager.Disconnect()
}

// Close disconnects, stops the connection loop and ends every subscription.
func (c *Client) Close() {
	c.unsubscribeFrames()
	c.manager.Close()
	c.broadcaster.Close()
}

// Load replaces a conversation's messages with a history result and returns
// the number of entries kept.
func (c *Client) Load(conversationID string, history []messages.Message) int {
	n := c.store.Load(conversationID, history)
	c.broadcaster.Publish(conversation.Update{
		Kind:           conversation.Loaded,
		ConversationID: conversationID,
	})
	return n
}

// Merge inserts one message unless its id is already present. Returns true
// if the message was new.
func (c *Client) Merge(msg messages.Message) bool {
	if !c.store.Merge(msg) {
		return false
	}
	c.broadcaster.Publish(conversation.Update{
		Kind:           conversation.Appended,
		ConversationID: msg.ConversationID,
		Message:        msg,
	})
	return true
}

// Snapshot returns the ordered messages of a conversation as of the call.
func (c *Client) Snapshot(conversationID string) iter.Seq[messages.Message] {
	return c.store.Snapshot(conversationID)
}

// Submit posts content to a conversation and merges the stored message.
// It fails with connection.ErrNotConnected when the channel is not open.
// The server's push of the same message is absorbed by the store.
func (c *Client) Submit(ctx context.Context, conversationID, content string) (messages.Message, error) {
	msg, err := c.dispatcher.Submit(ctx, conversationID, content)
	if err != nil {
		return messages.Message{}, err
	}
	c.Merge(msg)
	return msg, nil
}

// Subscribe delivers store updates for conversationID, or for every
// conversation when conversationID is conversation.AllConversations, until
// ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, conversationID string) <-chan conversation.Update {
	ch, _ := c.broadcaster.Subscribe(ctx, conversationID)
	return ch
}

// OnConnectivity registers fn for connectivity changes. Returns a function
// that removes the subscription.
func (c *Client) OnConnectivity(fn func(connected bool)) func() {
	return c.manager.OnConnectivity(fn)
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// Err reports connection.ErrReconnectionExhausted once the client has
// given up reconnecting.
func (c *Client) Err() error {
	return c.manager.Err()
}

// Presence returns the presence tracker fed by the channel.
func (c *Client) Presence() *presence.Tracker {
	return c.presence
}
