package controller

import "math"

const (
	// DefaultAlpha is the smoothing coefficient used while the estimator
	// warms up and whenever measured jitter is at or below JitterLow.
	DefaultAlpha = 0.3

	// MinAlpha is the floor reached at or above JitterHigh.
	MinAlpha = 0.1

	// JitterLow and JitterHigh are the standard-deviation anchor points of
	// the linear alpha ramp, in µs/s.
	JitterLow  = 2.0
	JitterHigh = 8.0
)

// JitterEstimator maps the measured oscillation of recent drift-rate samples
// to an EMA smoothing coefficient. High variance means network jitter, so
// smoothing gets heavier (smaller alpha). A sustained unidirectional
// frequency step produces high mean but low variance and must not reduce
// alpha; the estimator therefore reacts only to oscillation, never to the
// magnitude of drift alone.
//
// Alpha is recomputed fresh from the window on every call. There is no
// latched state, so the coefficient recovers smoothly as jitter subsides.
type JitterEstimator struct {
	window []float64
	next   int
	count  int
	warmup int
}

// NewJitterEstimator creates an estimator over a ring of size samples that
// stays at DefaultAlpha until warmup samples have accumulated. The warm-up
// keeps early-startup variance from triggering false smoothing.
func NewJitterEstimator(size, warmup int) *JitterEstimator {
	return &JitterEstimator{
		window: make([]float64, size),
		warmup: warmup,
	}
}

// Observe inserts a drift-rate sample and returns the smoothing coefficient
// derived from the current window. O(window size) per call.
func (j *JitterEstimator) Observe(rate float64) float64 {
	j.window[j.next] = rate
	j.next = (j.next + 1) % len(j.window)
	if j.count < len(j.window) {
		j.count++
	}

	if j.count < j.warmup {
		return DefaultAlpha
	}

	sigma := stddev(j.window[:j.count])
	t := (sigma - JitterLow) / (JitterHigh - JitterLow)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return DefaultAlpha - (DefaultAlpha-MinAlpha)*t
}

// Reset clears the window, returning the estimator to its warm-up state.
func (j *JitterEstimator) Reset() {
	j.next = 0
	j.count = 0
}

// stddev computes the sample standard deviation.
func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	var sum float64
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}
