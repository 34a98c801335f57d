//go:build linux
// +build linux

package clock

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// ppm16Shift converts ppm to the kernel's scaled ppm format (2^16 per ppm).
const ppm16Shift = 65536

type systemAdjuster struct {
	maxPPM float64
}

// NewSystemAdjuster returns an Adjuster backed by adjtimex(2).
// Adjustments beyond maxPPM are clamped; the kernel itself rejects
// frequency offsets above 500 ppm.
func NewSystemAdjuster(maxPPM float64) (Adjuster, error) {
	a := &systemAdjuster{maxPPM: maxPPM}
	// Probe read-only so privilege failures surface at startup, not on the
	// first correction.
	tx := unix.Timex{}
	if _, err := unix.Adjtimex(&tx); err != nil {
		return nil, fmt.Errorf("adjtimex probe: %w", err)
	}
	return a, nil
}

func (a *systemAdjuster) AdjustFrequency(ctx context.Context, ppm float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.maxPPM > 0 {
		if ppm > a.maxPPM {
			ppm = a.maxPPM
		} else if ppm < -a.maxPPM {
			ppm = -a.maxPPM
		}
	}
	tx := unix.Timex{
		Modes: unix.ADJ_FREQUENCY,
		Freq:  int64(ppm * ppm16Shift),
	}
	if _, err := unix.Adjtimex(&tx); err != nil {
		return fmt.Errorf("adjtimex ADJ_FREQUENCY: %w", err)
	}
	return nil
}

type systemStepper struct{}

// NewSystemStepper returns a Stepper backed by clock_settime(2) on
// CLOCK_REALTIME.
func NewSystemStepper() (Stepper, error) {
	return &systemStepper{}, nil
}

func (s *systemStepper) Step(ctx context.Context, offset time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return fmt.Errorf("clock_gettime CLOCK_REALTIME: %w", err)
	}
	target := time.Unix(ts.Sec, ts.Nsec).Add(offset)
	ts = unix.NsecToTimespec(target.UnixNano())
	if err := unix.ClockSettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return fmt.Errorf("clock_settime CLOCK_REALTIME: %w", err)
	}
	return nil
}

// Monotonic returns the raw hardware tick counter, CLOCK_MONOTONIC_RAW in
// nanoseconds. It is unaffected by frequency adjustments and steps, which is
// what makes it usable for cross-host comparison.
func Monotonic() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*1_000_000_000 + uint64(ts.Nsec)
}

// MonotonicFrequency returns the counter's ticks per second.
func MonotonicFrequency() uint64 {
	// CLOCK_MONOTONIC_RAW reads in nanoseconds.
	return 1_000_000_000
}
