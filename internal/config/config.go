// Package config loads daemon configuration from a TOML file with
// environment variable overrides. Priority: CLI flags > environment >
// config file > defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete daemon configuration.
type Config struct {
	PTP     PTPConfig     `toml:"ptp"`
	NTP     NTPConfig     `toml:"ntp"`
	Servo   ServoConfig   `toml:"servo"`
	Serve   ServeConfig   `toml:"serve"`
	Metrics MetricsConfig `toml:"metrics"`
}

// PTPConfig selects the multicast listener's interface.
type PTPConfig struct {
	// Interface is the name of the network interface to join the PTP
	// multicast group on. Empty picks the first suitable interface.
	Interface string `toml:"interface"`
}

// NTPConfig controls the upstream wall-clock source.
type NTPConfig struct {
	Server  string   `toml:"server"`
	Skip    bool     `toml:"skip"`
	Timeout duration `toml:"timeout"`
}

// ServoConfig carries frequency-discipline tunables. Zero values take the
// controller's defaults.
type ServoConfig struct {
	Kp               float64 `toml:"kp"`
	Ki               float64 `toml:"ki"`
	MaxAdjustmentPPM float64 `toml:"max_adjustment_ppm"`
	SpikeWindowSize  int     `toml:"spike_window_size"`
	SpikeThreshold   float64 `toml:"spike_threshold"`
}

// ServeConfig controls the daemon's own serving surfaces.
type ServeConfig struct {
	// TimeQueryAddr is the DSYN/DSYR listener address.
	TimeQueryAddr string `toml:"time_query_addr"`

	// NTP enables the LAN SNTP server.
	NTP        bool   `toml:"ntp"`
	NTPAddr    string `toml:"ntp_addr"`
	NTPStratum uint8  `toml:"ntp_stratum"`

	// RTC enables periodic hardware clock updates.
	RTC bool `toml:"rtc"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `toml:"enable"`
	Addr   string `toml:"addr"`
}

// duration unmarshals TOML strings like "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		NTP: NTPConfig{
			Server:  "pool.ntp.org",
			Timeout: duration{5 * time.Second},
		},
		Serve: ServeConfig{
			TimeQueryAddr: ":31900",
			NTPAddr:       ":123",
			NTPStratum:    3,
			RTC:           true,
		},
		Metrics: MetricsConfig{
			Enable: true,
			Addr:   ":9120",
		},
	}
}

// Load reads configuration from a TOML file and applies DANTESYNC_*
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse TOML config: %w", err)
		}
	}

	if v := os.Getenv("DANTESYNC_PTP_INTERFACE"); v != "" {
		cfg.PTP.Interface = v
	}
	if v := os.Getenv("DANTESYNC_NTP_SERVER"); v != "" {
		cfg.NTP.Server = v
	}
	if v := os.Getenv("DANTESYNC_NTP_SKIP"); v != "" {
		cfg.NTP.Skip = isTrue(v)
	}
	if v := os.Getenv("DANTESYNC_NTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("DANTESYNC_NTP_TIMEOUT: %w", err)
		}
		cfg.NTP.Timeout = duration{d}
	}
	if v := os.Getenv("DANTESYNC_TIME_QUERY_ADDR"); v != "" {
		cfg.Serve.TimeQueryAddr = v
	}
	if v := os.Getenv("DANTESYNC_SERVE_NTP"); v != "" {
		cfg.Serve.NTP = isTrue(v)
	}
	if v := os.Getenv("DANTESYNC_SERVE_NTP_ADDR"); v != "" {
		cfg.Serve.NTPAddr = v
	}
	if v := os.Getenv("DANTESYNC_SERVE_NTP_STRATUM"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("DANTESYNC_SERVE_NTP_STRATUM: %w", err)
		}
		cfg.Serve.NTPStratum = uint8(n)
	}
	if v := os.Getenv("DANTESYNC_SERVE_RTC"); v != "" {
		cfg.Serve.RTC = isTrue(v)
	}
	if v := os.Getenv("DANTESYNC_METRICS_ENABLE"); v != "" {
		cfg.Metrics.Enable = isTrue(v)
	}
	if v := os.Getenv("DANTESYNC_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}

	return cfg, nil
}

// Validate checks settings that cannot be defaulted away.
func (c *Config) Validate() error {
	if !c.NTP.Skip && c.NTP.Server == "" {
		return fmt.Errorf("ntp.server cannot be empty unless ntp.skip is set")
	}
	if c.NTP.Timeout.Duration < 0 {
		return fmt.Errorf("ntp.timeout cannot be negative")
	}
	if c.Servo.Kp < 0 || c.Servo.Ki < 0 {
		return fmt.Errorf("servo gains cannot be negative")
	}
	if c.Servo.MaxAdjustmentPPM < 0 {
		return fmt.Errorf("servo.max_adjustment_ppm cannot be negative")
	}
	if c.Serve.NTP && c.Serve.NTPStratum == 0 {
		return fmt.Errorf("serve.ntp_stratum cannot be zero")
	}
	if c.Metrics.Enable && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr cannot be empty when metrics are enabled")
	}
	return nil
}

func isTrue(v string) bool {
	return v == "true" || v == "1"
}

// NTPTimeout returns the configured NTP query timeout.
func (c *Config) NTPTimeout() time.Duration {
	return c.NTP.Timeout.Duration
}
