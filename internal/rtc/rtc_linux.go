//go:build linux
// +build linux

package rtc

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const devicePath = "/dev/rtc0"

// setHardwareClock writes t to the RTC via RTC_SET_TIME. The RTC holds UTC.
func setHardwareClock(t time.Time) error {
	dev, err := os.OpenFile(devicePath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", devicePath, err)
	}
	defer dev.Close()

	utc := t.UTC()
	rt := unix.RTCTime{
		Sec:  int32(utc.Second()),
		Min:  int32(utc.Minute()),
		Hour: int32(utc.Hour()),
		Mday: int32(utc.Day()),
		Mon:  int32(utc.Month() - 1),
		Year: int32(utc.Year() - 1900),
	}
	if err := unix.IoctlSetRTCTime(int(dev.Fd()), &rt); err != nil {
		return fmt.Errorf("RTC_SET_TIME: %w", err)
	}
	return nil
}
