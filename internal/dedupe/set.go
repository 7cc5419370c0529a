// ABOUTME: Exact membership set for de-duplicating message ids within a conversation.
// ABOUTME: Entries never expire; the set is rebuilt wholesale when history is reloaded.

package dedupe

// Set records which keys have been seen. Unlike a TTL cache it never forgets
// a key, so a redelivered message is rejected no matter how late it arrives.
//
// Set is not safe for concurrent use; the owning store serializes access.
type Set struct {
	seen map[string]struct{}
}

// NewSet creates an empty set sized for roughly capacity keys.
func NewSet(capacity int) *Set {
	if capacity < 0 {
		capacity = 0
	}
	return &Set{seen: make(map[string]struct{}, capacity)}
}

// Check returns true if the key has been seen.
func (s *Set) Check(key string) bool {
	_, ok := s.seen[key]
	return ok
}

// CheckAndMark reports whether the key was already seen and marks it if not.
// Returns true for a duplicate, false if the key is new and now marked.
func (s *Set) CheckAndMark(key string) bool {
	if _, ok := s.seen[key]; ok {
		return true
	}
	s.seen[key] = struct{}{}
	return false
}

// Len returns the number of distinct keys marked.
func (s *Set) Len() int {
	return len(s.seen)
}
