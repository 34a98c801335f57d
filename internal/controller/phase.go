package controller

import (
	"math"
	"time"
)

const (
	// Phase error bands and the NTP polling cadence they select.
	phaseErrorHigh = 50 * time.Microsecond
	phaseErrorMid  = 20 * time.Microsecond

	pollFast    = 10 * time.Second
	pollMedium  = 15 * time.Second
	PollDefault = 30 * time.Second
)

// PhaseAccountant integrates the estimated phase error accumulated between
// NTP corrections and derives the NTP polling cadence from it. The
// accumulator grows by |drift rate| x dt every tick and is reset to exactly
// zero when, and only when, an absolute time step is applied.
type PhaseAccountant struct {
	accumulated time.Duration
}

// NewPhaseAccountant creates an accountant with zero accumulated error.
func NewPhaseAccountant() *PhaseAccountant {
	return &PhaseAccountant{}
}

// Tick integrates a drift-rate observation (µs/s) over dt.
func (p *PhaseAccountant) Tick(rate float64, dt time.Duration) {
	drift := math.Abs(rate) * 1e-6 * dt.Seconds()
	p.accumulated += time.Duration(drift * float64(time.Second))
}

// Interval returns the NTP polling interval warranted by the current
// accumulated error. The comparisons are strict: exactly 50 µs selects the
// medium band and exactly 20 µs the default.
func (p *PhaseAccountant) Interval() time.Duration {
	switch {
	case p.accumulated > phaseErrorHigh:
		return pollFast
	case p.accumulated > phaseErrorMid:
		return pollMedium
	default:
		return PollDefault
	}
}

// Accumulated returns the phase error integrated since the last reset.
func (p *PhaseAccountant) Accumulated() time.Duration {
	return p.accumulated
}

// Reset zeroes the accumulator. Called atomically with each applied NTP
// step, and on soft reset.
func (p *PhaseAccountant) Reset() {
	p.accumulated = 0
}
