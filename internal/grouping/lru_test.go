package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRobotsLRUEvictsOldest(t *testing.T) {
	t.Parallel()

	c := newRobotsLRU(2)
	c.put("a.example.com", "rules-a")
	c.put("b.example.com", "rules-b")
	c.put("c.example.com", "rules-c")

	_, ok := c.get("a.example.com")
	assert.False(t, ok, "oldest entry evicted at capacity")
	_, ok = c.get("b.example.com")
	assert.True(t, ok)
	_, ok = c.get("c.example.com")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestRobotsLRUGetRefreshesRecency(t *testing.T) {
	t.Parallel()

	c := newRobotsLRU(2)
	c.put("a.example.com", "rules-a")
	c.put("b.example.com", "rules-b")

	// Touch a, so b becomes the eviction candidate.
	_, ok := c.get("a.example.com")
	assert.True(t, ok)

	c.put("c.example.com", "rules-c")
	_, ok = c.get("b.example.com")
	assert.False(t, ok)
	_, ok = c.get("a.example.com")
	assert.True(t, ok)
}

func TestRobotsLRUPutReplacesExisting(t *testing.T) {
	t.Parallel()

	c := newRobotsLRU(2)
	c.put("a.example.com", "old")
	c.put("a.example.com", "new")

	v, ok := c.get("a.example.com")
	assert.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.len())
}
