// ABOUTME: Tests for the exact seen-id set backing conversation logs.
// ABOUTME: Validates check, check-and-mark semantics and sizing edge cases.

package dedupe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_Check_NotSeen(t *testing.T) {
	s := NewSet(4)
	assert.False(t, s.Check("never-seen-key"))
	assert.Equal(t, 0, s.Len())
}

func TestSet_CheckAndMark_NewKey(t *testing.T) {
	s := NewSet(4)

	assert.False(t, s.CheckAndMark("msg-1"), "first CheckAndMark should report a new key")
	assert.True(t, s.Check("msg-1"), "key should be marked after CheckAndMark")
	assert.Equal(t, 1, s.Len())
}

func TestSet_CheckAndMark_SeenKey(t *testing.T) {
	s := NewSet(4)
	s.CheckAndMark("msg-1")

	for i := 0; i < 3; i++ {
		assert.True(t, s.CheckAndMark("msg-1"), "repeat %d should be a duplicate", i)
	}
	assert.Equal(t, 1, s.Len())
}

func TestSet_NeverForgets(t *testing.T) {
	s := NewSet(0)
	for i := 0; i < 10_000; i++ {
		s.CheckAndMark(fmt.Sprintf("msg-%d", i))
	}

	// The very first key must still be known after many inserts.
	assert.True(t, s.Check("msg-0"))
	assert.Equal(t, 10_000, s.Len())
}

func TestSet_NegativeCapacity(t *testing.T) {
	s := NewSet(-1)
	assert.False(t, s.CheckAndMark("a"))
	assert.True(t, s.Check("a"))
}
