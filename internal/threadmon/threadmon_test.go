package threadmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvancingCounterNeverFlaggedStuck(t *testing.T) {
	tr := NewTracker(20*time.Millisecond, nil)
	h := tr.Register("recv-0")

	start := time.Now()
	for time.Since(start) < 100*time.Millisecond {
		h.Awake()
		tr.sample(time.Now())
		time.Sleep(5 * time.Millisecond)
	}

	assert.Empty(t, tr.Stuck())
}

func TestStalledCounterFlaggedAfterBound(t *testing.T) {
	tr := NewTracker(10*time.Millisecond, nil)
	h := tr.Register("gc")
	h.Awake()

	tr.sample(time.Now())
	assert.Empty(t, tr.Stuck())

	tr.sample(time.Now().Add(20 * time.Millisecond))
	require.Contains(t, tr.Stuck(), "gc")
}

func TestRecoveryClearsStuckFlag(t *testing.T) {
	tr := NewTracker(10*time.Millisecond, nil)
	h := tr.Register("gc")
	h.Awake()

	tr.sample(time.Now())
	tr.sample(time.Now().Add(20 * time.Millisecond))
	require.Contains(t, tr.Stuck(), "gc")

	h.Awake()
	tr.sample(time.Now().Add(21 * time.Millisecond))
	assert.Empty(t, tr.Stuck())
}

func TestIdleThreadNeverFlagged(t *testing.T) {
	tr := NewTracker(5*time.Millisecond, nil)
	tr.Register("idle")

	tr.sample(time.Now())
	tr.sample(time.Now().Add(time.Second))
	assert.Empty(t, tr.Stuck())
}
