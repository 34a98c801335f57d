//go:build !linux
// +build !linux

package rtc

import (
	"time"

	"github.com/dantelabs/dantesync/internal/clock"
)

func setHardwareClock(time.Time) error {
	return clock.ErrPlatformNotSupported
}
