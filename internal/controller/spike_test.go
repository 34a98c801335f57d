package controller_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dantelabs/dantesync/internal/controller"
)

func TestSpikeFilter(t *testing.T) {
	t.Run("first sample passes through", func(t *testing.T) {
		t.Parallel()

		f := controller.NewSpikeFilter(8, 10.0)
		out, substituted := f.Apply(42.0)
		require.Equal(t, 42.0, out)
		require.False(t, substituted)
	})

	t.Run("outlier replaced with median", func(t *testing.T) {
		t.Parallel()

		f := controller.NewSpikeFilter(8, 10.0)
		for _, v := range []float64{4.0, 5.0, 6.0} {
			out, substituted := f.Apply(v)
			require.Equal(t, v, out)
			require.False(t, substituted)
		}

		// Median of {4, 5, 6} is 5; a 500 µs/s sample deviates far
		// beyond the 10 µs/s threshold.
		out, substituted := f.Apply(500.0)
		require.True(t, substituted)
		require.Equal(t, 5.0, out)
	})

	t.Run("substituted value enters the window", func(t *testing.T) {
		t.Parallel()

		f := controller.NewSpikeFilter(8, 10.0)
		f.Apply(5.0)
		f.Apply(500.0) // substituted with 5.0

		// If the raw 500 had been inserted, the median of {5, 500}
		// would be 252.5 and 12.0 would be substituted.
		out, substituted := f.Apply(12.0)
		require.False(t, substituted)
		require.Equal(t, 12.0, out)
	})

	t.Run("deviation within threshold passes", func(t *testing.T) {
		t.Parallel()

		f := controller.NewSpikeFilter(8, 10.0)
		f.Apply(5.0)
		out, substituted := f.Apply(15.0) // exactly at threshold, not beyond
		require.False(t, substituted)
		require.Equal(t, 15.0, out)
	})

	t.Run("even window uses mean of middle pair", func(t *testing.T) {
		t.Parallel()

		f := controller.NewSpikeFilter(8, 10.0)
		f.Apply(2.0)
		f.Apply(8.0)

		// Median of {2, 8} is 5; 100.0 deviates by 95.
		out, substituted := f.Apply(100.0)
		require.True(t, substituted)
		require.Equal(t, 5.0, out)
	})

	t.Run("window evicts oldest on overflow", func(t *testing.T) {
		t.Parallel()

		f := controller.NewSpikeFilter(3, 10.0)
		f.Apply(0.0)
		f.Apply(100.0) // substituted with 0
		f.Apply(1.0)
		f.Apply(2.0) // evicts the first 0.0

		// Window is now {0, 1, 2}, median 1.
		out, substituted := f.Apply(50.0)
		require.True(t, substituted)
		require.Equal(t, 1.0, out)
	})

	t.Run("reset clears window", func(t *testing.T) {
		t.Parallel()

		f := controller.NewSpikeFilter(8, 10.0)
		f.Apply(5.0)
		f.Reset()

		out, substituted := f.Apply(500.0)
		require.False(t, substituted)
		require.Equal(t, 500.0, out)
	})
}
