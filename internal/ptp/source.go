package ptp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/dantelabs/dantesync/internal/controller"
	"github.com/dantelabs/dantesync/internal/metrics"
)

const (
	// pendingLimit caps the Sync messages awaiting a FollowUp; beyond it,
	// entries older than pendingMaxAge are evicted.
	pendingLimit  = 100
	pendingMaxAge = 5 * time.Second

	readBufferSize = 2048
)

type Config struct {
	// Interface restricts the multicast join; empty selects the first
	// usable interface.
	Interface string

	// ReadTimeout bounds each socket read so shutdown is prompt.
	ReadTimeout time.Duration

	// Submit delivers a paired sample to the controller.
	Submit func(controller.Sample)

	// Now supplies receipt timestamps. Defaults to time.Now.
	Now func() time.Time
}

func (c *Config) Validate() error {
	if c.Submit == nil {
		return errors.New("submit func is required")
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Source listens on the PTP event and general multicast ports, pairs Sync
// receipt timestamps with FollowUp origin timestamps by sequence id and
// source UUID, and emits one offset sample per valid pair.
type Source struct {
	log *slog.Logger
	cfg Config

	event   *net.UDPConn
	general *net.UDPConn

	mu      sync.Mutex
	pending map[uint16]pendingSync
}

type pendingSync struct {
	rx          time.Time
	sourceUUID  [6]byte
	grandmaster [6]byte
}

func NewSource(log *slog.Logger, cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	iface, err := selectInterface(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("select interface: %w", err)
	}
	log.Info("Joining PTP multicast domain", "group", MulticastGroup, "interface", iface.Name)

	event, err := listenMulticast(iface, EventPort)
	if err != nil {
		return nil, fmt.Errorf("listen event port: %w", err)
	}
	general, err := listenMulticast(iface, GeneralPort)
	if err != nil {
		event.Close()
		return nil, fmt.Errorf("listen general port: %w", err)
	}

	return &Source{
		log:     log,
		cfg:     cfg,
		event:   event,
		general: general,
		pending: make(map[uint16]pendingSync),
	}, nil
}

// Run services both sockets until the context is cancelled.
func (s *Source) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	for _, conn := range []*net.UDPConn{s.event, s.general} {
		wg.Add(1)
		go func(conn *net.UDPConn) {
			defer wg.Done()
			if err := s.readLoop(runCtx, conn); err != nil {
				errCh <- err
			}
		}(conn)
	}

	var err error
	select {
	case <-ctx.Done():
	case e := <-errCh:
		err = e
		cancel()
	}

	s.Close()
	wg.Wait()
	return err
}

// Close releases both sockets.
func (s *Source) Close() {
	s.event.Close()
	s.general.Close()
}

func (s *Source) readLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			if isClosedErr(err) {
				return nil
			}
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if isClosedErr(err) {
				return nil
			}
			metrics.Errors.WithLabelValues(metrics.ErrorTypePTPListener).Inc()
			s.log.Error("PTP socket read failed", "error", err)
			continue
		}

		// Capture the receipt timestamp before any parsing.
		s.handlePacket(buf[:n], s.cfg.Now())
	}
}

// handlePacket parses one datagram and, on a completed Sync/FollowUp pair,
// emits a sample. Malformed packets are dropped silently; the network
// carries plenty of unrelated PTP traffic.
func (s *Source) handlePacket(buf []byte, rx time.Time) {
	header, err := ParseHeader(buf)
	if err != nil {
		return
	}

	switch header.Type {
	case MessageSync:
		entry := pendingSync{
			rx:         rx,
			sourceUUID: header.SourceUUID,
		}
		if body, err := ParseSyncBody(buf[HeaderSize:]); err == nil {
			entry.grandmaster = body.GrandmasterUUID
		} else {
			entry.grandmaster = header.SourceUUID
		}
		s.mu.Lock()
		s.pending[header.SequenceID] = entry
		s.evictStaleLocked(rx)
		s.mu.Unlock()

	case MessageFollowUp:
		body, err := ParseFollowUpBody(buf[HeaderSize:])
		if err != nil {
			return
		}
		s.mu.Lock()
		entry, ok := s.pending[body.AssociatedSequenceID]
		if ok {
			delete(s.pending, body.AssociatedSequenceID)
		}
		s.mu.Unlock()
		if !ok || entry.sourceUUID != header.SourceUUID {
			return
		}

		t1 := body.OriginTimestamp.Nanos()
		t2 := entry.rx.UnixNano()
		s.cfg.Submit(controller.Sample{
			Timestamp:   entry.rx,
			Offset:      time.Duration(t2 - t1),
			Source:      controller.SourcePTP,
			Grandmaster: controller.GrandmasterID(entry.grandmaster),
		})
	}
}

func (s *Source) evictStaleLocked(now time.Time) {
	if len(s.pending) <= pendingLimit {
		return
	}
	for seq, entry := range s.pending {
		if now.Sub(entry.rx) > pendingMaxAge {
			delete(s.pending, seq)
		}
	}
}

// selectInterface returns the named interface, or the first up,
// multicast-capable, non-loopback interface with an IPv4 address.
func selectInterface(name string) (*net.Interface, error) {
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", name, err)
		}
		return iface, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipn, ok := addr.(*net.IPNet); ok && ipn.IP.To4() != nil {
				return iface, nil
			}
		}
	}
	return nil, errors.New("no suitable multicast interface found")
}

func listenMulticast(iface *net.Interface, port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen udp4 :%d: %w", port, err)
	}
	p := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(MulticastGroup)}
	if err := p.JoinGroup(iface, group); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join group %s on %s: %w", MulticastGroup, iface.Name, err)
	}
	if err := p.SetMulticastLoopback(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("disable multicast loopback: %w", err)
	}
	return conn, nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection")
}
