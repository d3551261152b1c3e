package logcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/deckstream/pkg/api"
)

func snap(seqs ...int64) Snapshot {
	s := Snapshot{Cursor: "c", HasMore: true}
	for _, seq := range seqs {
		s.Entries = append(s.Entries, api.LogEntry{Sequence: seq, Content: fmt.Sprintf("entry %d", seq)})
	}
	return s
}

func TestCache_PutGet(t *testing.T) {
	c := New(4, time.Minute)

	c.Put("proc-1", snap(1, 2, 3), false)
	got, ok := c.Get("proc-1")
	require.True(t, ok)
	assert.Len(t, got.Entries, 3)
	assert.Equal(t, "c", got.Cursor)
	assert.True(t, got.HasMore)

	_, ok = c.Get("proc-2")
	assert.False(t, ok)
}

func TestCache_NeverStoresLiveProcesses(t *testing.T) {
	c := New(4, time.Minute)

	c.Put("proc-live", snap(1), true)
	_, ok := c.Get("proc-live")
	assert.False(t, ok, "a running process must never be cached")
	assert.Equal(t, 0, c.Len())

	// The same process is cacheable once it has completed.
	c.Put("proc-live", snap(1, 2), false)
	got, ok := c.Get("proc-live")
	require.True(t, ok)
	assert.Len(t, got.Entries, 2)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(4, time.Minute)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("proc-1", snap(1), false)

	current = current.Add(59 * time.Second)
	_, ok := c.Get("proc-1")
	assert.True(t, ok, "still fresh just inside the TTL")

	current = current.Add(2 * time.Second)
	_, ok = c.Get("proc-1")
	assert.False(t, ok, "expired past the TTL")
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on read")
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(2, time.Minute)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("proc-1", snap(1), false)
	current = current.Add(time.Second)
	c.Put("proc-2", snap(2), false)

	// Touch proc-1 so proc-2 becomes the eviction candidate.
	current = current.Add(time.Second)
	_, ok := c.Get("proc-1")
	require.True(t, ok)

	current = current.Add(time.Second)
	c.Put("proc-3", snap(3), false)

	_, ok = c.Get("proc-1")
	assert.True(t, ok)
	_, ok = c.Get("proc-2")
	assert.False(t, ok, "least recently used snapshot is evicted")
	_, ok = c.Get("proc-3")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := New(2, time.Minute)
	c.Put("proc-1", snap(1), false)
	c.Put("proc-2", snap(2), false)
	c.Put("proc-1", snap(1, 2, 3), false)

	got, ok := c.Get("proc-1")
	require.True(t, ok)
	assert.Len(t, got.Entries, 3)
	_, ok = c.Get("proc-2")
	assert.True(t, ok)
}

func TestCache_Delete(t *testing.T) {
	c := New(2, time.Minute)
	c.Put("proc-1", snap(1), false)
	c.Delete("proc-1")
	_, ok := c.Get("proc-1")
	assert.False(t, ok)

	// Deleting a missing key is fine.
	c.Delete("proc-404")
}
