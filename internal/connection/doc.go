// Package connection owns the single persistent duplex channel of a user
// session and keeps it alive across network interruptions.
//
// # States
//
//	Idle -> Connecting -> Connected -> Reconnecting -> Connecting -> ... -> Disconnected
//
// Connect enters Connecting and dials ws(s)://<host>/ws/<user id>. When the
// transport opens the manager enters Connected, resets its attempt count and
// reports connectivity true. When the transport closes or fails while
// Connecting or Connected, the manager either schedules a retry after
// BaseDelay * attempt (3s, 6s, 9s, 12s, 15s with the defaults) or, once
// MaxAttempts retries have failed, enters Disconnected and reports
// connectivity false for good.
//
// Disconnect stops any pending retry timer before it returns; timers that
// fire late and transport events from torn-down attempts are recognised by
// their attempt epoch and ignored.
//
// # Event Loop
//
// Transitions are applied on one goroutine. Dial and read goroutines, and
// retry timers, only post events to it. Subscriber callbacks registered with
// OnFrame, OnConnectivity and OnStateChange run on that goroutine in order.
//
// # Sending
//
// Send writes a frame only while Connected and otherwise returns
// ErrNotConnected. Nothing is queued.
//
// # Usage
//
//	m := connection.NewManager(connection.Config{BaseURL: "https://chat.example.com"})
//	defer m.Close()
//	m.OnFrame(router.Route)
//	m.OnConnectivity(func(up bool) { ... })
//	err := m.Connect(session.Identity{UserID: "..."})
package connection
