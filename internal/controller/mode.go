package controller

// Mode is the controller's operating regime. The numeric values are part of
// the time query wire protocol and must not be reordered.
type Mode uint8

const (
	// ModeInit: process start, no PTP observed yet. No correction issued.
	ModeInit Mode = iota

	// ModeAcquiring: PTP live, drift rate not yet below the producing
	// threshold for a sustained interval. Aggressive gain.
	ModeAcquiring

	// ModeProducing: drift rate below the producing threshold. Moderate
	// gain.
	ModeProducing

	// ModeLocked: drift rate sustained below the producing threshold.
	// Same gain as producing; the locked flag is exposed externally.
	ModeLocked

	// ModeNano: drift rate sustained below the nano threshold.
	// Minimal gain, sub-microsecond stability.
	ModeNano

	// ModeNTPOnly: no PTP packet for the liveness timeout. The frequency
	// path is disabled; the NTP phase path continues independently.
	ModeNTPOnly
)

func (m Mode) String() string {
	switch m {
	case ModeInit:
		return "INIT"
	case ModeAcquiring:
		return "ACQ"
	case ModeProducing:
		return "PROD"
	case ModeLocked:
		return "LOCK"
	case ModeNano:
		return "NANO"
	case ModeNTPOnly:
		return "NTP-only"
	default:
		return "UNKNOWN"
	}
}

// Gain returns the servo correction scale for the mode.
func (m Mode) Gain() float64 {
	switch m {
	case ModeAcquiring:
		return 1.0
	case ModeProducing, ModeLocked:
		return 0.5
	case ModeNano:
		return 0.1
	default:
		// Init and NTP-only issue no frequency corrections.
		return 0
	}
}

// Locked reports whether the mode exposes the external locked flag.
func (m Mode) Locked() bool {
	return m == ModeLocked || m == ModeNano
}

// ModeTracker holds the single authoritative transition function for the
// operating regime. It is advanced exactly once per processed sample and
// once per liveness tick; no manual transition exists.
//
// Thresholds are crossed on raw smoothed magnitude with no hysteresis band.
// Flapping at an exact boundary is an accepted, documented trade-off.
type ModeTracker struct {
	mode Mode

	producingThreshold float64 // µs/s
	nanoThreshold      float64 // µs/s
	sustained          int     // consecutive samples for "sustained"

	belowProducing int
	belowNano      int
}

// NewModeTracker creates a tracker starting in ModeInit.
func NewModeTracker(producingThreshold, nanoThreshold float64, sustained int) *ModeTracker {
	return &ModeTracker{
		mode:               ModeInit,
		producingThreshold: producingThreshold,
		nanoThreshold:      nanoThreshold,
		sustained:          sustained,
	}
}

// Advance maps the smoothed drift-rate magnitude and PTP liveness to the
// next mode. The mapping is total: every observation yields exactly one
// mode.
func (t *ModeTracker) Advance(absRate float64, ptpLive bool) Mode {
	if !ptpLive {
		t.mode = ModeNTPOnly
		t.belowProducing = 0
		t.belowNano = 0
		return t.mode
	}

	switch {
	case absRate < t.nanoThreshold:
		t.belowNano++
		t.belowProducing++
	case absRate < t.producingThreshold:
		t.belowNano = 0
		t.belowProducing++
	default:
		t.belowNano = 0
		t.belowProducing = 0
	}

	switch {
	case t.belowNano >= t.sustained:
		t.mode = ModeNano
	case t.belowProducing >= t.sustained:
		t.mode = ModeLocked
	case absRate < t.producingThreshold:
		t.mode = ModeProducing
	default:
		t.mode = ModeAcquiring
	}
	return t.mode
}

// Mode returns the current mode.
func (t *ModeTracker) Mode() Mode {
	return t.mode
}

// SoftReset forces re-acquisition after a grandmaster change.
func (t *ModeTracker) SoftReset() {
	t.mode = ModeAcquiring
	t.belowProducing = 0
	t.belowNano = 0
}
