// Package rtc keeps the hardware clock loosely following the disciplined
// system clock, so the machine boots with roughly correct time before the
// sync daemon has converged.
package rtc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	clockctl "github.com/dantelabs/dantesync/internal/clock"
	"github.com/dantelabs/dantesync/internal/metrics"
)

// DefaultInterval is how often the hardware clock is rewritten. RTC drift
// is irrelevant between updates; only boot time cares.
const DefaultInterval = 10 * time.Minute

type UpdaterConfig struct {
	// Interval between updates. Defaults to DefaultInterval.
	Interval time.Duration

	// Clock schedules the updates. Defaults to the real clock.
	Clock clockwork.Clock

	// Set writes the given wall time to the hardware clock. Defaults to
	// the platform implementation.
	Set func(time.Time) error
}

func (cfg *UpdaterConfig) Validate() error {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Set == nil {
		cfg.Set = setHardwareClock
	}
	return nil
}

// Updater rewrites the hardware clock on a fixed schedule. Updates are best
// effort: a missing or unwritable RTC device is logged and the updater keeps
// running in case the device appears. Unsupported platforms stay silent.
type Updater struct {
	log *slog.Logger
	cfg UpdaterConfig
}

func NewUpdater(log *slog.Logger, cfg UpdaterConfig) (*Updater, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Updater{log: log.With("component", "rtc"), cfg: cfg}, nil
}

// Run updates the hardware clock until the context is canceled. The first
// update happens after one full interval, giving the servo time to settle.
func (u *Updater) Run(ctx context.Context) error {
	ticker := u.cfg.Clock.NewTicker(u.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			u.update()
		}
	}
}

func (u *Updater) update() {
	now := u.cfg.Clock.Now()
	if err := u.cfg.Set(now); err != nil {
		if errors.Is(err, clockctl.ErrPlatformNotSupported) {
			return
		}
		metrics.Errors.WithLabelValues(metrics.ErrorTypeRTCUpdate).Inc()
		u.log.Warn("hardware clock update failed", "error", err)
		return
	}
	u.log.Debug("hardware clock updated", "time", now.UTC())
}
