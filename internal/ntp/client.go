// Package ntp provides the wall-clock side of the sync pipeline: a client
// that measures absolute offset against an upstream NTP server, an adaptive
// poller that feeds those measurements into the controller, and a minimal
// SNTP server for LAN hosts that follow this machine.
package ntp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/ntp"

	"github.com/dantelabs/dantesync/internal/controller"
)

const DefaultTimeout = 5 * time.Second

var ErrKissOfDeath = errors.New("ntp: kiss-of-death from server")

// Client measures the absolute clock offset against a single NTP server.
type Client struct {
	server  string
	timeout time.Duration
	now     func() time.Time
}

func NewClient(server string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{server: server, timeout: timeout, now: time.Now}
}

// Query performs one NTP exchange and returns the measured offset and
// round-trip time. The context bounds the exchange in addition to the
// client's own timeout.
func (c *Client) Query(ctx context.Context) (controller.NTPResult, error) {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remain := time.Until(deadline); remain < timeout {
			timeout = remain
		}
	}
	if timeout <= 0 {
		return controller.NTPResult{}, ctx.Err()
	}

	resp, err := ntp.QueryWithOptions(c.server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return controller.NTPResult{}, fmt.Errorf("query %s: %w", c.server, err)
	}
	if resp.Stratum == 0 {
		return controller.NTPResult{}, fmt.Errorf("%w: %s", ErrKissOfDeath, c.server)
	}
	if err := resp.Validate(); err != nil {
		return controller.NTPResult{}, fmt.Errorf("validate response from %s: %w", c.server, err)
	}

	return controller.NTPResult{
		Timestamp: c.now(),
		Offset:    resp.ClockOffset,
		RTT:       resp.RTT,
	}, nil
}
