package ntp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/dantelabs/dantesync/internal/metrics"
)

const (
	// PacketSize is the fixed SNTP packet length.
	PacketSize = 48

	// DefaultServerAddr binds the standard NTP port, which requires
	// elevated privileges.
	DefaultServerAddr = ":123"

	DefaultStratum = 3

	ntpEpochOffset = 2208988800

	modeClient = 3
	modeServer = 4

	// refIDLocal is ASCII "LOCL", the reference ID for an undisciplined
	// local clock.
	refIDLocal = 0x4C4F434C
)

type ServerConfig struct {
	// Addr is the UDP listen address. Defaults to DefaultServerAddr.
	Addr string

	// Stratum is reported to clients. Defaults to DefaultStratum.
	Stratum uint8

	// ReadTimeout bounds each socket read so shutdown is prompt.
	ReadTimeout time.Duration

	// Now is the wall-clock source for response timestamps. Defaults to
	// time.Now.
	Now func() time.Time
}

func (cfg *ServerConfig) Validate() error {
	if cfg.Addr == "" {
		cfg.Addr = DefaultServerAddr
	}
	if cfg.Stratum == 0 {
		cfg.Stratum = DefaultStratum
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return nil
}

// Server answers SNTP client queries with the local system time. It serves
// LAN hosts that follow this machine, so the packet handling is deliberately
// minimal: mode 3 requests, versions 3 and 4, no authentication.
type Server struct {
	log  *slog.Logger
	cfg  ServerConfig
	conn *net.UDPConn

	reference time.Time
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
		return nil, fmt.Errorf("listen %s: %w (hint: port 123 requires root)", cfg.Addr, err)
	}
	return &Server{
		log:       log.With("component", "ntp-server"),
		cfg:       cfg,
		conn:      conn,
		reference: cfg.Now(),
	}, nil
}

// LocalAddr returns the bound listen address.
func (s *Server) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// SetReference records when the local clock was last set from upstream; it
// is reported to clients as the reference timestamp.
func (s *Server) SetReference(t time.Time) {
	s.reference = t
}

func (s *Server) Close() error {
	return s.conn.Close()
}

// Run serves requests until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	defer s.conn.Close()
	s.log.Info("NTP server listening", "addr", s.conn.LocalAddr(), "stratum", s.cfg.Stratum)

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
			metrics.Errors.WithLabelValues(metrics.ErrorTypeNTPServer).Inc()
			s.log.Error("NTP server read failed", "error", err)
			continue
		}
		if n < PacketSize {
			continue
		}
		if resp, ok := s.buildResponse(buf[:n]); ok {
			if _, err := s.conn.WriteToUDP(resp, src); err != nil {
				metrics.Errors.WithLabelValues(metrics.ErrorTypeNTPServer).Inc()
				s.log.Error("NTP server write failed", "peer", src, "error", err)
			}
		}
	}
}

// buildResponse constructs the 48-byte reply, or reports false when the
// request should be ignored.
func (s *Server) buildResponse(req []byte) ([]byte, bool) {
	version := (req[0] >> 3) & 0x07
	mode := req[0] & 0x07
	if mode != modeClient || version < 3 || version > 4 {
		return nil, false
	}

	recvSecs, recvFrac := ntpTimestamp(s.cfg.Now())

	resp := make([]byte, PacketSize)
	resp[0] = version<<3 | modeServer
	resp[1] = s.cfg.Stratum
	resp[2] = 6    // poll: 64 s
	resp[3] = 0xEC // precision: 2^-20

	// Root dispersion ~1 ms; root delay stays zero for a local clock.
	resp[11] = 16

	be32(resp[12:16], refIDLocal)

	refSecs, refFrac := ntpTimestamp(s.reference)
	be32(resp[16:20], refSecs)
	be32(resp[20:24], refFrac)

	// The client's transmit timestamp becomes our originate timestamp.
	copy(resp[24:32], req[40:48])

	be32(resp[32:36], recvSecs)
	be32(resp[36:40], recvFrac)

	txSecs, txFrac := ntpTimestamp(s.cfg.Now())
	be32(resp[40:44], txSecs)
	be32(resp[44:48], txFrac)

	return resp, true
}

// ntpTimestamp converts a time.Time to NTP era-0 seconds and a 32-bit
// fractional part.
func ntpTimestamp(t time.Time) (uint32, uint32) {
	secs := uint32(t.Unix()) + ntpEpochOffset
	frac := uint32((uint64(t.Nanosecond()) << 32) / 1e9)
	return secs, frac
}

func be32(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}
