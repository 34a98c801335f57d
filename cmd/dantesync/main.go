package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/dantelabs/dantesync/internal/clock"
	"github.com/dantelabs/dantesync/internal/config"
	"github.com/dantelabs/dantesync/internal/controller"
	"github.com/dantelabs/dantesync/internal/metrics"
	"github.com/dantelabs/dantesync/internal/ntp"
	"github.com/dantelabs/dantesync/internal/ptp"
	"github.com/dantelabs/dantesync/internal/rtc"
	"github.com/dantelabs/dantesync/internal/timequery"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	configPathFlag := flag.String("config", "", "path to TOML config file")
	ifaceFlag := flag.String("interface", "", "network interface for the PTP multicast join (default: auto-detected)")
	ntpServerFlag := flag.String("ntp-server", "", "upstream NTP server")
	skipNTPFlag := flag.Bool("skip-ntp", false, "disable NTP polling and clock stepping")
	metricsAddrFlag := flag.String("metrics-addr", "", "address for the prometheus metrics endpoint")
	verboseFlag := flag.Bool("verbose", false, "verbose mode - show debug logs")
	showVersionFlag := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersionFlag {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		os.Exit(0)
	}

	log := newLogger(*verboseFlag)

	cfg, err := config.Load(*configPathFlag)
	if err != nil {
		log.Error("Failed to load config", "error", err)
		return err
	}
	if flag.CommandLine.Changed("interface") {
		cfg.PTP.Interface = *ifaceFlag
	}
	if flag.CommandLine.Changed("ntp-server") {
		cfg.NTP.Server = *ntpServerFlag
	}
	if flag.CommandLine.Changed("skip-ntp") {
		cfg.NTP.Skip = *skipNTPFlag
	}
	if flag.CommandLine.Changed("metrics-addr") {
		cfg.Metrics.Addr = *metricsAddrFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "error", err)
		return err
	}

	log.Info("Starting sync daemon",
		"version", version,
		"interface", cfg.PTP.Interface,
		"ntpServer", cfg.NTP.Server,
		"skipNTP", cfg.NTP.Skip,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enable {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.Metrics.Addr)
			if err != nil {
				log.Error("Failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("Failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	adjuster, err := clock.NewSystemAdjuster(cfg.Servo.MaxAdjustmentPPM)
	if err != nil {
		log.Error("Failed to open system clock for frequency control", "error", err,
			"hint", "adjusting the clock requires root or CAP_SYS_TIME")
		return err
	}
	stepper, err := clock.NewSystemStepper()
	if err != nil {
		log.Error("Failed to open system clock for stepping", "error", err,
			"hint", "setting the clock requires root or CAP_SYS_TIME")
		return err
	}

	ctrl, err := controller.New(log, controller.Config{
		Adjuster:         adjuster,
		Stepper:          stepper,
		Clock:            clockwork.NewRealClock(),
		SpikeWindowSize:  cfg.Servo.SpikeWindowSize,
		SpikeThreshold:   cfg.Servo.SpikeThreshold,
		ServoKp:          cfg.Servo.Kp,
		ServoKi:          cfg.Servo.Ki,
		MaxAdjustmentPPM: cfg.Servo.MaxAdjustmentPPM,
	})
	if err != nil {
		log.Error("Failed to create controller", "error", err)
		return err
	}

	source, err := ptp.NewSource(log, ptp.Config{
		Interface: cfg.PTP.Interface,
		Submit:    ctrl.Submit,
	})
	if err != nil {
		log.Error("Failed to create PTP source", "error", err)
		return err
	}

	tqServer, err := timequery.NewServer(log, timequery.ServerConfig{
		Addr:     cfg.Serve.TimeQueryAddr,
		Snapshot: ctrl.Status,
	})
	if err != nil {
		log.Error("Failed to create time query server", "error", err)
		return err
	}

	type component struct {
		name string
		run  func(context.Context) error
	}
	components := []component{
		{"controller", ctrl.Run},
		{"ptp-source", source.Run},
		{"timequery", tqServer.Run},
	}

	if !cfg.NTP.Skip {
		poller, err := ntp.NewPoller(log, ntp.PollerConfig{
			Client: ntp.NewClient(cfg.NTP.Server, cfg.NTPTimeout()),
			Sink:   ctrl,
		})
		if err != nil {
			log.Error("Failed to create NTP poller", "error", err)
			return err
		}
		components = append(components, component{"ntp-poller", poller.Run})
	}

	if cfg.Serve.NTP {
		ntpServer, err := ntp.NewServer(log, ntp.ServerConfig{
			Addr:    cfg.Serve.NTPAddr,
			Stratum: cfg.Serve.NTPStratum,
		})
		if err != nil {
			log.Error("Failed to create NTP server", "error", err)
			return err
		}
		components = append(components, component{"ntp-server", ntpServer.Run})
	}

	if cfg.Serve.RTC {
		updater, err := rtc.NewUpdater(log, rtc.UpdaterConfig{})
		if err != nil {
			log.Error("Failed to create RTC updater", "error", err)
			return err
		}
		components = append(components, component{"rtc", updater.Run})
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	errCh := make(chan error, len(components))
	var wg sync.WaitGroup
	for _, c := range components {
		wg.Add(1)
		go func(c component) {
			defer wg.Done()
			if err := c.run(runCtx); err != nil {
				errCh <- fmt.Errorf("%s: %w", c.name, err)
			}
		}(c)
	}

	select {
	case err := <-errCh:
		log.Error("Component failed, shutting down", "error", err)
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received, stopping")
		stop()
		wg.Wait()
	}

	return nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
