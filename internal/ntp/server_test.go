package ntp_test

import (
	"context"
	"encoding/binary"
	"flag"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/require"

	"github.com/dantelabs/dantesync/internal/ntp"
)

var (
	log *slog.Logger
)

// TestMain sets up the test environment with a global logger.
func TestMain(m *testing.M) {
	flag.Parse()
	verbose := false
	if vFlag := flag.Lookup("test.v"); vFlag != nil && vFlag.Value.String() == "true" {
		verbose = true
	}
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	log = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.RFC3339,
		AddSource:  true,
	}))

	os.Exit(m.Run())
}

func startServer(t *testing.T) *ntp.Server {
	t.Helper()

	server, err := ntp.NewServer(log, ntp.ServerConfig{
		Addr:        "127.0.0.1:0",
		Stratum:     3,
		ReadTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, server.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return server
}

func clientRequest(version byte) []byte {
	req := make([]byte, ntp.PacketSize)
	req[0] = version<<3 | 3 // mode 3: client
	// Client transmit timestamp, echoed back as originate.
	copy(req[40:48], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	return req
}

func exchange(t *testing.T, server *ntp.Server, req []byte) ([]byte, bool) {
	t.Helper()

	raddr, err := net.ResolveUDPAddr("udp4", server.LocalAddr().String())
	require.NoError(t, err)
	conn, err := net.DialUDP("udp4", nil, raddr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(req)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

func TestServer(t *testing.T) {
	t.Run("responds to v4 client", func(t *testing.T) {
		t.Parallel()

		server := startServer(t)
		before := uint32(time.Now().Unix()) + 2208988800

		resp, ok := exchange(t, server, clientRequest(4))
		require.True(t, ok)
		require.Len(t, resp, ntp.PacketSize)

		require.Equal(t, byte(0), resp[0]>>6)        // LI
		require.Equal(t, byte(4), (resp[0]>>3)&0x07) // version echoed
		require.Equal(t, byte(4), resp[0]&0x07)      // mode: server
		require.Equal(t, byte(3), resp[1])           // stratum
		require.Equal(t, []byte("LOCL"), resp[12:16])

		// Originate timestamp echoes the client transmit timestamp.
		require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, resp[24:32])

		// Receive and transmit timestamps carry the current NTP time.
		recvSecs := binary.BigEndian.Uint32(resp[32:36])
		txSecs := binary.BigEndian.Uint32(resp[40:44])
		require.InDelta(t, before, recvSecs, 5)
		require.InDelta(t, before, txSecs, 5)
	})

	t.Run("echoes version 3", func(t *testing.T) {
		t.Parallel()

		server := startServer(t)
		resp, ok := exchange(t, server, clientRequest(3))
		require.True(t, ok)
		require.Equal(t, byte(3), (resp[0]>>3)&0x07)
	})

	t.Run("ignores non-client modes", func(t *testing.T) {
		t.Parallel()

		server := startServer(t)
		req := clientRequest(4)
		req[0] = 4<<3 | 4 // mode 4: server
		_, ok := exchange(t, server, req)
		require.False(t, ok)
	})

	t.Run("ignores unsupported versions", func(t *testing.T) {
		t.Parallel()

		server := startServer(t)
		_, ok := exchange(t, server, clientRequest(2))
		require.False(t, ok)
	})

	t.Run("ignores short packets", func(t *testing.T) {
		t.Parallel()

		server := startServer(t)
		_, ok := exchange(t, server, []byte{0x23})
		require.False(t, ok)
	})
}
