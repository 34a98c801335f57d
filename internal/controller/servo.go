package controller

// RateServo converts smoothed drift-rate estimates into a frequency
// correction. Smoothing and correction are deliberately split: the
// jitter-adaptive alpha applies only to the EMA, and the mode gain applies
// only to the PI output afterward. The two are orthogonal.
type RateServo struct {
	kp, ki        float64
	maxIntegral   float64
	maxAdjustment float64

	smoothed   float64
	primed     bool
	integral   float64
	correction float64
}

// NewRateServo creates a servo with the given PI gains. maxIntegral clamps
// the accumulated term and maxAdjustment clamps the final output, both in
// ppm.
func NewRateServo(kp, ki, maxIntegral, maxAdjustment float64) *RateServo {
	return &RateServo{
		kp:            kp,
		ki:            ki,
		maxIntegral:   maxIntegral,
		maxAdjustment: maxAdjustment,
	}
}

// Smooth folds a drift-rate sample into the EMA with the given coefficient
// and returns the new smoothed rate. The first sample primes the EMA
// directly so the estimate does not have to climb up from zero.
func (s *RateServo) Smooth(rate, alpha float64) float64 {
	if !s.primed {
		s.smoothed = rate
		s.primed = true
		return s.smoothed
	}
	s.smoothed = (1-alpha)*s.smoothed + alpha*rate
	return s.smoothed
}

// Correct produces the frequency correction in ppm for the current smoothed
// rate, scaled by the mode gain. If no sample has been accepted yet, or the
// gain is zero, the previous correction is held and no new one derived.
func (s *RateServo) Correct(gain float64) float64 {
	if !s.primed || gain == 0 {
		return s.correction
	}

	// Drive the smoothed rate to zero. A positive drift rate means the
	// local clock runs fast relative to the master, so the correction is
	// negative.
	err := -s.smoothed

	s.integral += err * s.ki
	if s.integral > s.maxIntegral {
		s.integral = s.maxIntegral
	} else if s.integral < -s.maxIntegral {
		s.integral = -s.maxIntegral
	}

	out := (err*s.kp + s.integral) * gain
	if out > s.maxAdjustment {
		out = s.maxAdjustment
	} else if out < -s.maxAdjustment {
		out = -s.maxAdjustment
	}
	s.correction = out
	return out
}

// Smoothed returns the current EMA state.
func (s *RateServo) Smoothed() float64 {
	return s.smoothed
}

// Correction returns the last issued frequency correction.
func (s *RateServo) Correction() float64 {
	return s.correction
}

// Reset discards all learned state. Used for process-level restart only; a
// grandmaster change performs a soft reset that leaves the servo untouched,
// because the learned frequency estimate is a property of the local
// oscillator, not of the timing source.
func (s *RateServo) Reset() {
	s.smoothed = 0
	s.primed = false
	s.integral = 0
	s.correction = 0
}
