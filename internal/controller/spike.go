package controller

import (
	"math"
	"sort"
)

// SpikeFilter suppresses outlier drift-rate samples caused by transient
// network queuing ("lucky packets"). A sample that deviates from the window
// median by more than the threshold is replaced with the median rather than
// dropped, so the downstream cadence is preserved.
//
// The spike window is intentionally separate from the jitter window: this
// filter measures absolute deviation while the jitter estimator measures
// oscillation. The two must never share storage.
type SpikeFilter struct {
	window    []float64
	next      int
	count     int
	threshold float64
}

// NewSpikeFilter creates a filter over a window of size samples with the
// given deviation threshold in µs/s.
func NewSpikeFilter(size int, threshold float64) *SpikeFilter {
	return &SpikeFilter{
		window:    make([]float64, size),
		threshold: threshold,
	}
}

// Apply accepts a raw drift-rate sample and returns the value to feed
// downstream, substituting the window median for outliers. The returned
// boolean reports whether a substitution happened. The (possibly
// substituted) value is inserted into the window, evicting the oldest
// entry on overflow.
func (f *SpikeFilter) Apply(rate float64) (float64, bool) {
	substituted := false
	if f.count > 0 {
		median := f.median()
		if math.Abs(rate-median) > f.threshold {
			rate = median
			substituted = true
		}
	}
	f.window[f.next] = rate
	f.next = (f.next + 1) % len(f.window)
	if f.count < len(f.window) {
		f.count++
	}
	return rate, substituted
}

// Reset clears the window.
func (f *SpikeFilter) Reset() {
	f.next = 0
	f.count = 0
}

func (f *SpikeFilter) median() float64 {
	vals := append([]float64(nil), f.window[:f.count]...)
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}
