package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowReportsUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	got := clk.Now()

	assert.Equal(t, time.UTC, got.Location())
	assert.WithinDuration(t, time.Now().UTC(), got, time.Second)
}

func TestNowNeverGoesBackward(t *testing.T) {
	t.Parallel()

	clk := New()
	prev := clk.Now()
	for i := 0; i < 100; i++ {
		cur := clk.Now()
		require.False(t, cur.Before(prev), "clock went backward: %v then %v", prev, cur)
		prev = cur
	}
}
