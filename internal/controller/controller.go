// Package controller implements the synchronization controller: it ingests
// offset samples from a frequency-only PTP stream and a phase-only NTP
// source and produces two independent corrective actions, a frequency
// adjustment and an absolute time step.
package controller

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/dantelabs/dantesync/internal/metrics"
)

// Controller owns the spike filter, jitter estimator, rate servo, mode
// tracker and phase accountant. All of their state is mutated by a single
// loop that processes one sample to completion before admitting the next,
// so none of it needs locking. External readers get an atomically published
// Status snapshot.
type Controller struct {
	log *slog.Logger
	cfg Config

	samples    chan Sample
	ntpResults chan NTPResult

	spike  *SpikeFilter
	jitter *JitterEstimator
	servo  *RateServo
	modes  *ModeTracker
	phase  *PhaseAccountant

	grandmaster GrandmasterID
	prevTime    time.Time
	prevOffset  time.Duration
	havePrev    bool
	lastOffset  time.Duration
	lastPTP     time.Time
	lastStep    time.Time

	status atomic.Pointer[Status]
}

func New(log *slog.Logger, cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		log:        log,
		cfg:        cfg,
		samples:    make(chan Sample, cfg.QueueSize),
		ntpResults: make(chan NTPResult, 1),
		spike:      NewSpikeFilter(cfg.SpikeWindowSize, cfg.SpikeThreshold),
		jitter:     NewJitterEstimator(cfg.JitterWindowSize, cfg.JitterWarmup),
		servo:      NewRateServo(cfg.ServoKp, cfg.ServoKi, cfg.MaxIntegralPPM, cfg.MaxAdjustmentPPM),
		modes:      NewModeTracker(cfg.ProducingThreshold, cfg.NanoThreshold, cfg.SustainedSamples),
		phase:      NewPhaseAccountant(),
	}
	c.publish()
	return c, nil
}

// Submit hands a sample to the control loop. It never blocks: if the queue
// is full the sample is dropped and superseded by the next one, which
// carries fresher information anyway.
func (c *Controller) Submit(s Sample) {
	select {
	case c.samples <- s:
	default:
		metrics.SamplesDropped.Inc()
		c.log.Debug("Sample queue full, dropping sample", "source", s.Source.String())
	}
}

// SubmitNTP hands a completed NTP measurement to the control loop.
func (c *Controller) SubmitNTP(r NTPResult) {
	select {
	case c.ntpResults <- r:
	default:
		c.log.Debug("NTP result queue full, dropping result")
	}
}

// Status returns the most recently published snapshot.
func (c *Controller) Status() Status {
	return *c.status.Load()
}

// Run executes the serialized control loop until the context is cancelled.
// The in-flight cycle always finishes before Run returns, so no partial
// window mutation is ever visible to a restarted loop.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("Starting sync controller",
		"jitterWindow", c.cfg.JitterWindowSize,
		"spikeWindow", c.cfg.SpikeWindowSize,
		"ptpTimeout", c.cfg.PTPTimeout,
	)

	liveness := c.cfg.Clock.NewTicker(time.Second)
	defer liveness.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Sync controller stopped")
			return nil
		case s := <-c.samples:
			c.process(ctx, s)
		case r := <-c.ntpResults:
			c.handleNTP(ctx, r)
		case <-liveness.Chan():
			c.checkLiveness()
		}
	}
}

// process runs one full cycle: filter, estimate, servo, mode update,
// corrective action, snapshot publish.
func (c *Controller) process(ctx context.Context, s Sample) {
	if s.Source != SourcePTP {
		return
	}
	now := c.cfg.Clock.Now()

	if !s.Grandmaster.IsZero() {
		switch {
		case c.grandmaster.IsZero():
			c.grandmaster = s.Grandmaster
			c.log.Info("Tracking grandmaster", "grandmaster", s.Grandmaster.String())
		case s.Grandmaster != c.grandmaster:
			c.softReset(s.Grandmaster)
		}
	}

	c.lastPTP = now
	c.lastOffset = s.Offset

	if !c.havePrev {
		c.prevTime = s.Timestamp
		c.prevOffset = s.Offset
		c.havePrev = true
		c.publish()
		return
	}

	dt := s.Timestamp.Sub(c.prevTime)
	dOffset := s.Offset - c.prevOffset
	c.prevTime = s.Timestamp
	c.prevOffset = s.Offset

	if dt < c.cfg.MinSampleInterval || dt > c.cfg.MaxSampleInterval {
		metrics.SamplesRejected.Inc()
		c.log.Debug("Sample interval out of range, rejecting", "dt", dt)
		return
	}

	// Drift rate in µs/s (numerically equal to ppm).
	rate := float64(dOffset.Nanoseconds()) / 1000.0 / dt.Seconds()
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		metrics.SamplesRejected.Inc()
		c.log.Debug("Non-finite drift rate, rejecting", "dOffset", dOffset, "dt", dt)
		return
	}

	filtered, substituted := c.spike.Apply(rate)
	if substituted {
		metrics.SamplesSubstituted.Inc()
		c.log.Debug("Outlier suppressed", "raw", rate, "substituted", filtered)
	}
	metrics.SamplesAccepted.Inc()

	alpha := c.jitter.Observe(filtered)
	smoothed := c.servo.Smooth(filtered, alpha)
	mode := c.modes.Advance(math.Abs(smoothed), true)

	if gain := mode.Gain(); gain > 0 {
		correction := c.servo.Correct(gain)
		actx, cancel := context.WithTimeout(ctx, c.cfg.ActionTimeout)
		err := c.cfg.Adjuster.AdjustFrequency(actx, correction)
		cancel()
		if err != nil {
			// Not retried; a missed correction is superseded by the
			// next cycle.
			metrics.Errors.WithLabelValues(metrics.ErrorTypeAdjustFrequency).Inc()
			c.log.Warn("Frequency adjustment failed", "ppm", correction, "error", err)
		}
	}

	c.phase.Tick(filtered, dt)
	c.publish()
}

// handleNTP decides whether an absolute time step is warranted. Stepping
// never touches the servo: the frequency and phase paths are fully
// decoupled.
func (c *Controller) handleNTP(ctx context.Context, r NTPResult) {
	metrics.NTPPolls.Inc()

	offset := r.Offset
	if offset > -c.cfg.StepThreshold && offset < c.cfg.StepThreshold {
		c.log.Debug("NTP offset below step threshold, not stepping", "offset", offset, "rtt", r.RTT)
		c.publish()
		return
	}

	actx, cancel := context.WithTimeout(ctx, c.cfg.ActionTimeout)
	err := c.cfg.Stepper.Step(actx, offset)
	cancel()
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.ErrorTypeStepClock).Inc()
		c.log.Warn("Clock step failed", "offset", offset, "error", err)
		c.publish()
		return
	}

	metrics.ClockSteps.Inc()
	c.phase.Reset()
	c.lastStep = c.cfg.Clock.Now()
	c.log.Info("Stepped clock from NTP", "offset", offset, "rtt", r.RTT)
	c.publish()
}

// checkLiveness drops the frequency path to NTP-only when no PTP sample has
// arrived within the timeout. This is a state, not an error.
func (c *Controller) checkLiveness() {
	if c.lastPTP.IsZero() {
		return
	}
	if c.cfg.Clock.Now().Sub(c.lastPTP) < c.cfg.PTPTimeout {
		return
	}
	if c.modes.Mode() != ModeNTPOnly {
		c.log.Warn("No PTP samples within timeout, falling back to NTP-only", "timeout", c.cfg.PTPTimeout)
	}
	c.modes.Advance(0, false)
	c.havePrev = false
	c.publish()
}

// softReset handles a grandmaster change: windows and accumulators are
// cleared and the mode drops to acquiring, but the servo keeps its learned
// frequency estimate so re-acquisition is fast.
func (c *Controller) softReset(gm GrandmasterID) {
	c.log.Info("Grandmaster changed, soft reset",
		"previous", c.grandmaster.String(),
		"current", gm.String(),
	)
	metrics.SoftResets.Inc()

	c.grandmaster = gm
	c.spike.Reset()
	c.jitter.Reset()
	c.phase.Reset()
	c.modes.SoftReset()
	c.havePrev = false
}

// publish stores an immutable snapshot for concurrent telemetry readers and
// refreshes the exported gauges.
func (c *Controller) publish() {
	mode := c.modes.Mode()
	st := &Status{
		Mode:              mode,
		Locked:            mode.Locked(),
		Grandmaster:       c.grandmaster,
		PTPOffsetNs:       c.lastOffset.Nanoseconds(),
		DriftRatePPM:      c.servo.Smoothed(),
		FreqAdjustmentPPM: c.servo.Correction(),
		PhaseError:        c.phase.Accumulated(),
		NTPPollInterval:   c.phase.Interval(),
		LastPTPSample:     c.lastPTP,
		LastNTPStep:       c.lastStep,
	}
	c.status.Store(st)

	metrics.SyncMode.Set(float64(mode))
	metrics.DriftRatePPM.Set(st.DriftRatePPM)
	metrics.FreqAdjustmentPPM.Set(st.FreqAdjustmentPPM)
	metrics.PhaseErrorMicros.Set(float64(st.PhaseError.Nanoseconds()) / 1000.0)
}
