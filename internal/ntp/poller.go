package ntp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/dantelabs/dantesync/internal/controller"
	"github.com/dantelabs/dantesync/internal/metrics"
)

// Sink receives completed NTP measurements and exposes the sync status the
// poller adapts its cadence to. The controller satisfies this.
type Sink interface {
	SubmitNTP(controller.NTPResult)
	Status() controller.Status
}

type PollerConfig struct {
	Client *Client
	Sink   Sink

	// Clock is the time source for scheduling. Defaults to the real clock.
	Clock clockwork.Clock
}

func (cfg *PollerConfig) Validate() error {
	if cfg.Client == nil {
		return errors.New("client is required")
	}
	if cfg.Sink == nil {
		return errors.New("sink is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Poller queries the upstream NTP server on an adaptive schedule. The
// interval between polls follows the controller's accumulated phase error,
// so a fast-drifting clock is corrected sooner. Query failures back off
// exponentially and never tighten the schedule.
type Poller struct {
	log *slog.Logger
	cfg PollerConfig
}

func NewPoller(log *slog.Logger, cfg PollerConfig) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Poller{log: log.With("component", "ntp-poller"), cfg: cfg}, nil
}

// Run polls until the context is canceled. The first poll happens
// immediately so the controller has a wall-clock reference at startup.
func (p *Poller) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(2*time.Second),
		backoff.WithMaxInterval(time.Minute),
		backoff.WithMaxElapsedTime(0),
	)

	for {
		wait := p.poll(ctx, bo)
		select {
		case <-ctx.Done():
			return nil
		case <-p.cfg.Clock.After(wait):
		}
	}
}

// poll runs one query and returns how long to wait before the next.
func (p *Poller) poll(ctx context.Context, bo *backoff.ExponentialBackOff) time.Duration {
	result, err := p.cfg.Client.Query(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return time.Second
		}
		metrics.Errors.WithLabelValues(metrics.ErrorTypeNTPQuery).Inc()
		wait := bo.NextBackOff()
		p.log.Warn("NTP query failed", "error", err, "retry_in", wait)
		return wait
	}
	bo.Reset()

	p.cfg.Sink.SubmitNTP(result)
	p.log.Debug("NTP poll complete",
		"offset", result.Offset,
		"rtt", result.RTT,
	)

	interval := p.cfg.Sink.Status().NTPPollInterval
	if interval <= 0 {
		interval = controller.PollDefault
	}
	return interval
}
