// ABOUTME: Per-conversation message store merging pushed messages with loaded history.
// ABOUTME: Guarantees no duplicate ids per conversation and hands out read-only snapshots.

package messages

import (
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/metrics"
)

// conversationLog is the ordered message sequence for one conversation plus
// the set of ids it contains.
type conversationLog struct {
	entries []Message
	seen    *dedupe.Set
}

// Store owns every conversation log. Logs are only mutated through Load and
// Merge; readers get snapshots.
type Store struct {
	mu     sync.RWMutex
	logs   map[string]*conversationLog
	logger *slog.Logger
}

// NewStore creates an empty store. Pass nil logger for default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logs:   make(map[string]*conversationLog),
		logger: logger.With("component", "message_store"),
	}
}

// Load replaces the log for conversationID with msgs, typically the result
// of a history fetch. Entries are ordered by timestamp ascending with id as
// the tie-break, and the seen-id set is rebuilt. Messages belonging to a
// different conversation are skipped; repeated ids keep their first
// occurrence. Returns the resulting log length.
func (s *Store) Load(conversationID string, msgs []Message) int {
	entries := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		if m.ConversationID != conversationID {
			s.logger.Warn("skipping history entry for another conversation",
				"conversation_id", conversationID,
				"message_id", m.ID,
				"message_conversation_id", m.ConversationID)
			continue
		}
		entries = append(entries, m)
	}

	slices.SortStableFunc(entries, compareMessages)

	seen := dedupe.NewSet(len(entries))
	deduped := entries[:0]
	for _, m := range entries {
		if seen.CheckAndMark(m.ID) {
			continue
		}
		deduped = append(deduped, m)
	}

	s.mu.Lock()
	s.logs[conversationID] = &conversationLog{entries: deduped, seen: seen}
	s.mu.Unlock()

	metrics.HistoryLoads.Inc()
	s.logger.Debug("history loaded",
		"conversation_id", conversationID,
		"received", len(msgs),
		"stored", len(deduped))

	return len(deduped)
}

// Merge appends a pushed message to the tail of its conversation's log.
// A message whose id was already seen in that conversation is ignored.
// Returns true if the store changed.
func (s *Store) Merge(msg Message) bool {
	if msg.ConversationID == "" {
		s.logger.Warn("dropping message without conversation", "message_id", msg.ID)
		return false
	}

	s.mu.Lock()
	log, ok := s.logs[msg.ConversationID]
	if !ok {
		log = &conversationLog{seen: dedupe.NewSet(0)}
		s.logs[msg.ConversationID] = log
	}
	if log.seen.CheckAndMark(msg.ID) {
		s.mu.Unlock()
		metrics.MessagesMerged.WithLabelValues("duplicate").Inc()
		s.logger.Debug("duplicate message ignored",
			"conversation_id", msg.ConversationID,
			"message_id", msg.ID)
		return false
	}
	log.entries = append(log.entries, msg)
	s.mu.Unlock()

	metrics.MessagesMerged.WithLabelValues("appended").Inc()
	return true
}

// Snapshot returns the log of conversationID as it stands now. The sequence
// is finite and restartable, and later Load or Merge calls do not affect it.
func (s *Store) Snapshot(conversationID string) iter.Seq[Message] {
	s.mu.RLock()
	var view []Message
	if log, ok := s.logs[conversationID]; ok {
		// Full slice expression: appends never write inside the view and
		// Load always installs a fresh slice.
		view = log.entries[:len(log.entries):len(log.entries)]
	}
	s.mu.RUnlock()

	return func(yield func(Message) bool) {
		for _, m := range view {
			if !yield(m) {
				return
			}
		}
	}
}

// Len returns the number of messages held for conversationID.
func (s *Store) Len(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if log, ok := s.logs[conversationID]; ok {
		return len(log.entries)
	}
	return 0
}

// Contains reports whether messageID has been seen in conversationID.
func (s *Store) Contains(conversationID, messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[conversationID]
	return ok && log.seen.Check(messageID)
}

// Last returns the tail of the conversation's log.
func (s *Store) Last(conversationID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[conversationID]
	if !ok || len(log.entries) == 0 {
		return Message{}, false
	}
	return log.entries[len(log.entries)-1], true
}

// Conversations returns the ids of all conversations with a log, sorted.
func (s *Store) Conversations() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.logs))
	for id := range s.logs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func compareMessages(a, b Message) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
