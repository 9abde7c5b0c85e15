package postgres

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeNextRetry_Bounds(t *testing.T) {
	rand.Seed(1)

	d0 := computeNextRetry(-1)
	require.GreaterOrEqual(t, d0, 4*time.Second)
	require.LessOrEqual(t, d0, 6*time.Second)

	d10 := computeNextRetry(10)
	require.GreaterOrEqual(t, d10, 850*time.Second)
	require.LessOrEqual(t, d10, 1250*time.Second)

	d20 := computeNextRetry(20)
	require.GreaterOrEqual(t, d20, 1500*time.Second)
	require.LessOrEqual(t, d20, 2100*time.Second)
}

func TestComputeNextRetry_Monotonic(t *testing.T) {
	rand.Seed(7)

	// jitter is +/-10%, so doubling always wins once past the 5s floor
	prev := computeNextRetry(3)
	for attempt := 4; attempt <= 10; attempt++ {
		d := computeNextRetry(attempt)
		require.Greater(t, d, prev, "attempt %d", attempt)
		prev = d
	}
}
