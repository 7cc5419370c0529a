// ABOUTME: Presence tracker fed by user_online / user_offline frames.
// ABOUTME: Remembers each user's last known status and notifies on changes.

// Package presence tracks which users the server reports as online.
package presence

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Status is a user's last reported presence.
type Status struct {
	Online bool
	Since  time.Time
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	users  map[string]Status
	subs   map[int]func(userID string, online bool)
	nextID int
	now    func() time.Time
	logger *slog.Logger
}

// NewTracker creates an empty tracker. Pass nil logger for default.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		users:  make(map[string]Status),
		subs:   make(map[int]func(string, bool)),
		now:    time.Now,
		logger: logger.With("component", "presence"),
	}
}

// SetOnline records a presence report. Subscribers are only notified when
// the user's status actually changes.
func (t *Tracker) SetOnline(userID string, online bool) {
	t.mu.Lock()
	prev, known := t.users[userID]
	if known && prev.Online == online {
		t.mu.Unlock()
		return
	}
	t.users[userID] = Status{Online: online, Since: t.now()}
	subs := make([]func(string, bool), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	t.logger.Debug("presence changed", "user_id", userID, "online", online)

	for _, fn := range subs {
		fn(userID, online)
	}
}

// Online reports whether userID was last seen online.
func (t *Tracker) Online(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.users[userID].Online
}

// Status returns the last report for userID.
func (t *Tracker) Status(userID string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.users[userID]
	return s, ok
}

// OnlineUsers returns the ids of users currently online, sorted.
func (t *Tracker) OnlineUsers() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.users))
	for id, s := range t.users {
		if s.Online {
			ids = append(ids, id)
		}
	}
	t.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// OnChange registers fn for presence changes. Returns a function that
// removes the subscription.
func (t *Tracker) OnChange(fn func(userID string, online bool)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}
