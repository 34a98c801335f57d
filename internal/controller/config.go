package controller

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dantelabs/dantesync/internal/clock"
)

const (
	defaultSpikeWindowSize  = 8
	defaultSpikeThreshold   = 10.0 // µs/s
	defaultJitterWindowSize = 30
	defaultJitterWarmup     = 15

	defaultServoKp           = 0.8
	defaultServoKi           = 0.2
	defaultMaxIntegralPPM    = 200.0
	defaultMaxAdjustmentPPM  = 500.0
	defaultProducingRate     = 5.0 // µs/s
	defaultNanoRate          = 0.5 // µs/s
	defaultSustainedSamples  = 10
	defaultPTPTimeout        = 10 * time.Second
	defaultMinSampleInterval = 1 * time.Millisecond
	defaultMaxSampleInterval = 2 * time.Second
	defaultStepThreshold     = 1 * time.Millisecond
	defaultActionTimeout     = 500 * time.Millisecond
	defaultQueueSize         = 64
)

type Config struct {
	// Adjuster applies frequency corrections. Required.
	Adjuster clock.Adjuster

	// Stepper applies absolute time steps. Required.
	Stepper clock.Stepper

	// Clock is the time source for liveness and phase accounting.
	// Defaults to the real clock.
	Clock clockwork.Clock

	// SpikeWindowSize and SpikeThreshold configure outlier suppression.
	SpikeWindowSize int
	SpikeThreshold  float64

	// JitterWindowSize and JitterWarmup configure the jitter estimator.
	JitterWindowSize int
	JitterWarmup     int

	// ServoKp, ServoKi, MaxIntegralPPM and MaxAdjustmentPPM configure the
	// PI servo.
	ServoKp          float64
	ServoKi          float64
	MaxIntegralPPM   float64
	MaxAdjustmentPPM float64

	// ProducingThreshold and NanoThreshold are the mode boundaries in
	// µs/s; SustainedSamples defines "sustained".
	ProducingThreshold float64
	NanoThreshold      float64
	SustainedSamples   int

	// PTPTimeout is how long without a PTP sample before falling back to
	// NTP-only.
	PTPTimeout time.Duration

	// MinSampleInterval and MaxSampleInterval bound the accepted spacing
	// between consecutive PTP samples.
	MinSampleInterval time.Duration
	MaxSampleInterval time.Duration

	// StepThreshold is the minimum NTP offset magnitude worth stepping
	// the clock for.
	StepThreshold time.Duration

	// ActionTimeout bounds each clock-control call.
	ActionTimeout time.Duration

	// QueueSize is the inbound sample queue depth.
	QueueSize int
}

func (c *Config) Validate() error {
	if c.Adjuster == nil {
		return errors.New("adjuster is required")
	}
	if c.Stepper == nil {
		return errors.New("stepper is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.SpikeWindowSize <= 0 {
		c.SpikeWindowSize = defaultSpikeWindowSize
	}
	if c.SpikeThreshold <= 0 {
		c.SpikeThreshold = defaultSpikeThreshold
	}
	if c.JitterWindowSize <= 0 {
		c.JitterWindowSize = defaultJitterWindowSize
	}
	if c.JitterWarmup <= 0 {
		c.JitterWarmup = defaultJitterWarmup
	}
	if c.JitterWarmup > c.JitterWindowSize {
		return errors.New("jitter warmup must not exceed jitter window size")
	}
	if c.ServoKp <= 0 {
		c.ServoKp = defaultServoKp
	}
	if c.ServoKi <= 0 {
		c.ServoKi = defaultServoKi
	}
	if c.MaxIntegralPPM <= 0 {
		c.MaxIntegralPPM = defaultMaxIntegralPPM
	}
	if c.MaxAdjustmentPPM <= 0 {
		c.MaxAdjustmentPPM = defaultMaxAdjustmentPPM
	}
	if c.ProducingThreshold <= 0 {
		c.ProducingThreshold = defaultProducingRate
	}
	if c.NanoThreshold <= 0 {
		c.NanoThreshold = defaultNanoRate
	}
	if c.NanoThreshold >= c.ProducingThreshold {
		return errors.New("nano threshold must be below producing threshold")
	}
	if c.SustainedSamples <= 0 {
		c.SustainedSamples = defaultSustainedSamples
	}
	if c.PTPTimeout <= 0 {
		c.PTPTimeout = defaultPTPTimeout
	}
	if c.MinSampleInterval <= 0 {
		c.MinSampleInterval = defaultMinSampleInterval
	}
	if c.MaxSampleInterval <= 0 {
		c.MaxSampleInterval = defaultMaxSampleInterval
	}
	if c.MaxSampleInterval <= c.MinSampleInterval {
		return errors.New("max sample interval must exceed min sample interval")
	}
	if c.StepThreshold <= 0 {
		c.StepThreshold = defaultStepThreshold
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = defaultActionTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	return nil
}
