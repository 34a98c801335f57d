package timequery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/dantelabs/dantesync/internal/clock"
	"github.com/dantelabs/dantesync/internal/controller"
	"github.com/dantelabs/dantesync/internal/metrics"
)

type ServerConfig struct {
	// Addr is the UDP listen address. Defaults to ":31900".
	Addr string

	// Snapshot returns the current sync status for responses.
	Snapshot func() controller.Status

	// ReadTimeout bounds each socket read so shutdown is prompt.
	ReadTimeout time.Duration

	// Now is the wall-clock source. Defaults to time.Now.
	Now func() time.Time
}

func (cfg *ServerConfig) Validate() error {
	if cfg.Addr == "" {
		cfg.Addr = fmt.Sprintf(":%d", DefaultPort)
	}
	if cfg.Snapshot == nil {
		return errors.New("snapshot func is required")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return nil
}

// Server answers DSYN queries with the daemon's clock readings.
type Server struct {
	log  *slog.Logger
	cfg  ServerConfig
	conn *net.UDPConn
}

func NewServer(log *slog.Logger, cfg ServerConfig) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	addr, err := net.ResolveUDPAddr("udp4", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Addr, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return &Server{
		log:  log.With("component", "timequery"),
		cfg:  cfg,
		conn: conn,
	}, nil
}

// LocalAddr returns the bound listen address.
func (s *Server) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Server) Close() error {
	return s.conn.Close()
}

// Run serves queries until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	defer s.conn.Close()
	s.log.Info("time query server listening", "addr", s.conn.LocalAddr())

	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.conn.SetReadDeadline(s.cfg.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			metrics.Errors.WithLabelValues(metrics.ErrorTypeTimeQueryServer).Inc()
			s.log.Error("time query read failed", "error", err)
			continue
		}

		req, err := ParseRequest(buf[:n])
		if err != nil {
			s.log.Debug("ignoring invalid query", "peer", src, "error", err)
			continue
		}
		metrics.TimeQueryRequests.Inc()

		if _, err := s.conn.WriteToUDP(s.respond(req).Marshal(), src); err != nil {
			metrics.Errors.WithLabelValues(metrics.ErrorTypeTimeQueryServer).Inc()
			s.log.Error("time query write failed", "peer", src, "error", err)
		}
	}
}

// respond fills a response from a fresh status snapshot. The clock readings
// are taken at response time, not snapshot time, so comparisons across hosts
// see the latest possible values.
func (s *Server) respond(req Request) Response {
	status := s.cfg.Snapshot()
	return Response{
		ID:                req.ID,
		SystemTimeNs:      uint64(s.cfg.Now().UnixNano()),
		Monotonic:         clock.Monotonic(),
		MonotonicFreq:     clock.MonotonicFrequency(),
		PTPOffsetNs:       status.PTPOffsetNs,
		DriftRateMilliPPM: int32(status.DriftRatePPM * 1000),
		FreqAdjMilliPPM:   int32(status.FreqAdjustmentPPM * 1000),
		Mode:              status.Mode,
		Locked:            status.Locked,
		Grandmaster:       status.Grandmaster,
	}
}
