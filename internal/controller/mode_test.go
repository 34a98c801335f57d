package controller_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dantelabs/dantesync/internal/controller"
)

func TestMode(t *testing.T) {
	t.Run("wire values", func(t *testing.T) {
		t.Parallel()

		// These values are part of the time query protocol.
		require.Equal(t, controller.Mode(0), controller.ModeInit)
		require.Equal(t, controller.Mode(1), controller.ModeAcquiring)
		require.Equal(t, controller.Mode(2), controller.ModeProducing)
		require.Equal(t, controller.Mode(3), controller.ModeLocked)
		require.Equal(t, controller.Mode(4), controller.ModeNano)
		require.Equal(t, controller.Mode(5), controller.ModeNTPOnly)
	})

	t.Run("gains", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, 0.0, controller.ModeInit.Gain())
		require.Equal(t, 1.0, controller.ModeAcquiring.Gain())
		require.Equal(t, 0.5, controller.ModeProducing.Gain())
		require.Equal(t, 0.5, controller.ModeLocked.Gain())
		require.Equal(t, 0.1, controller.ModeNano.Gain())
		require.Equal(t, 0.0, controller.ModeNTPOnly.Gain())
	})

	t.Run("locked flag", func(t *testing.T) {
		t.Parallel()

		require.False(t, controller.ModeInit.Locked())
		require.False(t, controller.ModeAcquiring.Locked())
		require.False(t, controller.ModeProducing.Locked())
		require.True(t, controller.ModeLocked.Locked())
		require.True(t, controller.ModeNano.Locked())
		require.False(t, controller.ModeNTPOnly.Locked())
	})
}

func TestModeTracker(t *testing.T) {
	newTracker := func() *controller.ModeTracker {
		return controller.NewModeTracker(5.0, 0.5, 10)
	}

	t.Run("starts in init", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, controller.ModeInit, newTracker().Mode())
	})

	t.Run("high drift acquires", func(t *testing.T) {
		t.Parallel()

		tr := newTracker()
		require.Equal(t, controller.ModeAcquiring, tr.Advance(20.0, true))
	})

	t.Run("below producing threshold", func(t *testing.T) {
		t.Parallel()

		tr := newTracker()
		require.Equal(t, controller.ModeProducing, tr.Advance(3.0, true))
	})

	t.Run("threshold boundary is exclusive", func(t *testing.T) {
		t.Parallel()

		tr := newTracker()
		require.Equal(t, controller.ModeAcquiring, tr.Advance(5.0, true))
	})

	t.Run("sustained low drift locks", func(t *testing.T) {
		t.Parallel()

		tr := newTracker()
		for i := 0; i < 9; i++ {
			require.Equal(t, controller.ModeProducing, tr.Advance(3.0, true))
		}
		require.Equal(t, controller.ModeLocked, tr.Advance(3.0, true))
	})

	t.Run("sustained nano drift reaches nano", func(t *testing.T) {
		t.Parallel()

		tr := newTracker()
		for i := 0; i < 9; i++ {
			tr.Advance(0.1, true)
		}
		require.Equal(t, controller.ModeNano, tr.Advance(0.1, true))
	})

	t.Run("single high sample breaks the streak", func(t *testing.T) {
		t.Parallel()

		tr := newTracker()
		for i := 0; i < 9; i++ {
			tr.Advance(3.0, true)
		}
		require.Equal(t, controller.ModeAcquiring, tr.Advance(20.0, true))

		// The counter restarted; nine more low samples are not enough.
		for i := 0; i < 9; i++ {
			require.Equal(t, controller.ModeProducing, tr.Advance(3.0, true))
		}
		require.Equal(t, controller.ModeLocked, tr.Advance(3.0, true))
	})

	t.Run("producing streak survives a nano streak break", func(t *testing.T) {
		t.Parallel()

		tr := newTracker()
		for i := 0; i < 9; i++ {
			tr.Advance(0.1, true)
		}
		// A sample in the producing band resets only the nano streak.
		tr.Advance(3.0, true)
		require.Equal(t, controller.ModeLocked, tr.Advance(3.0, true))
	})

	t.Run("ptp loss forces ntp only", func(t *testing.T) {
		t.Parallel()

		tr := newTracker()
		for i := 0; i < 10; i++ {
			tr.Advance(0.1, true)
		}
		require.Equal(t, controller.ModeNano, tr.Mode())

		require.Equal(t, controller.ModeNTPOnly, tr.Advance(0.0, false))

		// Recovery restarts the streaks from scratch.
		require.Equal(t, controller.ModeProducing, tr.Advance(0.1, true))
	})

	t.Run("soft reset returns to acquiring", func(t *testing.T) {
		t.Parallel()

		tr := newTracker()
		for i := 0; i < 10; i++ {
			tr.Advance(0.1, true)
		}
		tr.SoftReset()
		require.Equal(t, controller.ModeAcquiring, tr.Mode())

		for i := 0; i < 9; i++ {
			tr.Advance(0.1, true)
		}
		require.Equal(t, controller.ModeNano, tr.Advance(0.1, true))
	})
}
