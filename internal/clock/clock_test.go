package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dantelabs/dantesync/internal/clock"
)

func TestMonotonic(t *testing.T) {
	t.Parallel()

	first := clock.Monotonic()
	time.Sleep(time.Millisecond)
	second := clock.Monotonic()
	require.Greater(t, second, first)
}

func TestMonotonicFrequency(t *testing.T) {
	t.Parallel()

	// The counter is reported in nanoseconds on every platform.
	require.Equal(t, uint64(1_000_000_000), clock.MonotonicFrequency())
}
