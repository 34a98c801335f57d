package controller

import "time"

// Status is an immutable snapshot of controller state, published atomically
// after every cycle. Telemetry readers only ever see a complete snapshot,
// never the live mutable structures, so they can query concurrently without
// touching the control loop.
type Status struct {
	// Mode is the current operating regime.
	Mode Mode

	// Locked reports sustained sub-threshold drift.
	Locked bool

	// Grandmaster identifies the tracked PTP source, zero if none yet.
	Grandmaster GrandmasterID

	// PTPOffsetNs is the last raw PTP offset in nanoseconds. Meaningful
	// only as a rate across samples, never as an absolute value.
	PTPOffsetNs int64

	// DriftRatePPM is the smoothed drift rate in ppm (µs/s).
	DriftRatePPM float64

	// FreqAdjustmentPPM is the last frequency correction issued.
	FreqAdjustmentPPM float64

	// PhaseError is the accumulated phase error since the last NTP step.
	PhaseError time.Duration

	// NTPPollInterval is the polling cadence the phase accountant
	// currently calls for.
	NTPPollInterval time.Duration

	// LastPTPSample is when the last PTP sample was processed.
	LastPTPSample time.Time

	// LastNTPStep is when the last absolute time step was applied.
	LastNTPStep time.Time
}
