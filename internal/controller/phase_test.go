package controller_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dantelabs/dantesync/internal/controller"
)

func TestPhaseAccountant(t *testing.T) {
	t.Run("accumulates drift over time", func(t *testing.T) {
		t.Parallel()

		p := controller.NewPhaseAccountant()
		p.Tick(1.0, 10*time.Second) // 1 µs/s for 10 s
		require.Equal(t, 10*time.Microsecond, p.Accumulated())
	})

	t.Run("sign of drift does not matter", func(t *testing.T) {
		t.Parallel()

		p := controller.NewPhaseAccountant()
		p.Tick(-2.0, 5*time.Second)
		require.Equal(t, 10*time.Microsecond, p.Accumulated())
	})

	t.Run("interval bands", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			rate float64 // µs/s over 10 s
			want time.Duration
		}{
			{"small error polls slow", 1.0, 30 * time.Second},
			{"exactly 20us stays slow", 2.0, 30 * time.Second},
			{"above 20us polls medium", 2.5, 15 * time.Second},
			{"exactly 50us stays medium", 5.0, 15 * time.Second},
			{"above 50us polls fast", 10.0, 10 * time.Second},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				p := controller.NewPhaseAccountant()
				p.Tick(tt.rate, 10*time.Second)
				require.Equal(t, tt.want, p.Interval())
			})
		}
	})

	t.Run("zero error polls at default", func(t *testing.T) {
		t.Parallel()

		p := controller.NewPhaseAccountant()
		require.Equal(t, controller.PollDefault, p.Interval())
	})

	t.Run("reset zeroes exactly", func(t *testing.T) {
		t.Parallel()

		p := controller.NewPhaseAccountant()
		p.Tick(50.0, 10*time.Second)
		p.Reset()
		require.Equal(t, time.Duration(0), p.Accumulated())
		require.Equal(t, controller.PollDefault, p.Interval())
	})
}
