package controller

import (
	"fmt"
	"time"
)

// Source identifies which timing source produced a sample.
type Source int

const (
	// SourcePTP samples carry offsets against the grandmaster's uptime
	// clock. They are meaningful only as rates, never as absolute values.
	SourcePTP Source = iota

	// SourceNTP samples carry absolute wall-clock offsets.
	SourceNTP
)

func (s Source) String() string {
	switch s {
	case SourcePTP:
		return "ptp"
	case SourceNTP:
		return "ntp"
	default:
		return "unknown"
	}
}

// GrandmasterID is the 6-byte PTPv1 clock UUID of the tracked grandmaster.
type GrandmasterID [6]byte

func (g GrandmasterID) IsZero() bool {
	return g == GrandmasterID{}
}

func (g GrandmasterID) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", g[0], g[1], g[2], g[3], g[4], g[5])
}

// Sample is one offset observation delivered by a timing source. Samples are
// ephemeral: they are consumed by exactly one controller cycle and never
// retained.
type Sample struct {
	// Timestamp is the local receipt time of the observation. Consecutive
	// timestamps drive the drift-rate denominator, so this must come from
	// a monotonic reading.
	Timestamp time.Time

	// Offset is the source-relative clock offset at Timestamp.
	Offset time.Duration

	// Source identifies the producing collaborator.
	Source Source

	// Grandmaster is the identity of the PTP source, zero for NTP.
	Grandmaster GrandmasterID
}

// NTPResult is a completed NTP measurement, funneled into the controller
// loop so that step decisions and phase accounting stay serialized.
type NTPResult struct {
	Timestamp time.Time
	Offset    time.Duration
	RTT       time.Duration
}
