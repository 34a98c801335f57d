//go:build !linux
// +build !linux

package clock

import "time"

var processStart = time.Now()

func NewSystemAdjuster(maxPPM float64) (Adjuster, error) {
	return nil, ErrPlatformNotSupported
}

func NewSystemStepper() (Stepper, error) {
	return nil, ErrPlatformNotSupported
}

// Monotonic falls back to nanoseconds since process start. Good enough for
// the time query protocol to keep producing increasing values, but not
// comparable across hosts.
func Monotonic() uint64 {
	return uint64(time.Since(processStart))
}

func MonotonicFrequency() uint64 {
	return 1_000_000_000
}
