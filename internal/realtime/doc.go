// Package realtime assembles the synchronization core for one session.
//
// A Client owns a connection.Manager, a router.Router, a messages.Store, a
// presence.Tracker, a dispatch.Dispatcher and a conversation.Broadcaster:
//
//	rest := api.New("https://chat.example.com", token)
//	c := realtime.New(connection.Config{BaseURL: rest.BaseURL}, rest)
//	defer c.Close()
//
//	c.Load("c-1", history)            // from the REST API
//	_ = c.Connect(identity)            // open the push channel
//	updates := c.Subscribe(ctx, "c-1") // Loaded / Appended
//	_, err := c.Submit(ctx, "c-1", "hi") // POST /messages, only while connected
//
// Inbound frames flow manager -> router -> store; every message the store
// accepts is announced to subscribers exactly once. History loads and live
// pushes may arrive in either order: the store keeps a single copy of each
// message id, ordered by timestamp.
package realtime
