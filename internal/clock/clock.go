// Package clock exposes the two system clock control primitives the
// controller depends on: stepping absolute time and adjusting tick rate.
//
// The two capabilities are deliberately separate interfaces. Stepping time
// must never change the tick rate, and adjusting frequency must never change
// absolute time; keeping them apart makes it impossible to wire up a
// collaborator that conflates the two.
package clock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPlatformNotSupported is returned on platforms without clock
	// adjustment syscall support.
	ErrPlatformNotSupported = errors.New("platform not supported")
)

// Adjuster sets the system clock tick rate. Implementations must leave
// absolute time untouched.
type Adjuster interface {
	// AdjustFrequency applies a frequency offset in parts per million.
	// Positive ppm speeds the clock up.
	AdjustFrequency(ctx context.Context, ppm float64) error
}

// Stepper sets absolute wall time. Implementations must leave the tick rate
// untouched.
type Stepper interface {
	// Step shifts the system clock by offset. Positive offset moves the
	// clock forward.
	Step(ctx context.Context, offset time.Duration) error
}
