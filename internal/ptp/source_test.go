package ptp

import (
	"encoding/binary"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dantelabs/dantesync/internal/controller"
)

func newTestSource(t *testing.T) (*Source, *[]controller.Sample) {
	t.Helper()

	samples := &[]controller.Sample{}
	cfg := Config{
		Submit: func(s controller.Sample) { *samples = append(*samples, s) },
	}
	require.NoError(t, cfg.Validate())
	return &Source{
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:     cfg,
		pending: make(map[uint16]pendingSync),
	}, samples
}

func syncPacket(seq uint16, source, grandmaster [6]byte) []byte {
	buf := make([]byte, HeaderSize+syncBodyMinSize)
	buf[0] = 0x10
	copy(buf[22:28], source[:])
	binary.BigEndian.PutUint16(buf[30:32], seq)
	buf[32] = 0 // Sync
	copy(buf[HeaderSize+13:HeaderSize+19], grandmaster[:])
	return buf
}

func followUpPacket(assocSeq uint16, source [6]byte, ts Timestamp) []byte {
	buf := make([]byte, HeaderSize+FollowUpBodySize)
	buf[0] = 0x10
	copy(buf[22:28], source[:])
	binary.BigEndian.PutUint16(buf[30:32], assocSeq+1)
	buf[32] = 2 // FollowUp
	body := buf[HeaderSize:]
	binary.BigEndian.PutUint16(body[6:8], assocSeq)
	binary.BigEndian.PutUint32(body[8:12], ts.Seconds)
	binary.BigEndian.PutUint32(body[12:16], ts.Nanoseconds)
	return buf
}

func TestSourcePairing(t *testing.T) {
	master := [6]byte{0x00, 0x1d, 0xc1, 0x11, 0x22, 0x33}
	gm := [6]byte{0x00, 0x1d, 0xc1, 0xaa, 0xbb, 0xcc}

	t.Run("sync and followup pair into a sample", func(t *testing.T) {
		t.Parallel()

		src, samples := newTestSource(t)
		rx := time.Unix(100, 500)

		src.handlePacket(syncPacket(7, master, gm), rx)
		src.handlePacket(followUpPacket(7, master, Timestamp{Seconds: 90, Nanoseconds: 200}), rx)

		require.Len(t, *samples, 1)
		s := (*samples)[0]
		require.Equal(t, controller.SourcePTP, s.Source)
		require.Equal(t, rx, s.Timestamp)
		require.Equal(t, controller.GrandmasterID(gm), s.Grandmaster)

		// t2 - t1 = 100.0000005s - 90.0000002s
		require.Equal(t, time.Duration(10_000_000_300), s.Offset)
	})

	t.Run("grandmaster falls back to source uuid", func(t *testing.T) {
		t.Parallel()

		src, samples := newTestSource(t)
		rx := time.Unix(100, 0)

		// Sync with a truncated body carries no grandmaster UUID.
		pkt := syncPacket(3, master, gm)[:HeaderSize]
		src.handlePacket(pkt, rx)
		src.handlePacket(followUpPacket(3, master, Timestamp{Seconds: 90}), rx)

		require.Len(t, *samples, 1)
		require.Equal(t, controller.GrandmasterID(master), (*samples)[0].Grandmaster)
	})

	t.Run("followup without sync is dropped", func(t *testing.T) {
		t.Parallel()

		src, samples := newTestSource(t)
		src.handlePacket(followUpPacket(9, master, Timestamp{Seconds: 90}), time.Unix(100, 0))
		require.Empty(t, *samples)
	})

	t.Run("source uuid mismatch is dropped", func(t *testing.T) {
		t.Parallel()

		src, samples := newTestSource(t)
		rx := time.Unix(100, 0)
		other := [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}

		src.handlePacket(syncPacket(7, master, gm), rx)
		src.handlePacket(followUpPacket(7, other, Timestamp{Seconds: 90}), rx)
		require.Empty(t, *samples)
	})

	t.Run("followup consumed once", func(t *testing.T) {
		t.Parallel()

		src, samples := newTestSource(t)
		rx := time.Unix(100, 0)

		src.handlePacket(syncPacket(7, master, gm), rx)
		fu := followUpPacket(7, master, Timestamp{Seconds: 90})
		src.handlePacket(fu, rx)
		src.handlePacket(fu, rx)
		require.Len(t, *samples, 1)
	})

	t.Run("malformed packets are ignored", func(t *testing.T) {
		t.Parallel()

		src, samples := newTestSource(t)
		src.handlePacket([]byte{0x10, 0x02}, time.Unix(100, 0))
		src.handlePacket(nil, time.Unix(100, 0))
		require.Empty(t, *samples)
	})

	t.Run("stale pending syncs evicted under pressure", func(t *testing.T) {
		t.Parallel()

		src, samples := newTestSource(t)
		old := time.Unix(100, 0)
		for seq := uint16(0); seq < 100; seq++ {
			src.handlePacket(syncPacket(seq, master, gm), old)
		}

		// The 101st arrival exceeds the pending limit and evicts
		// everything older than the age cap.
		fresh := old.Add(6 * time.Second)
		src.handlePacket(syncPacket(200, master, gm), fresh)

		src.handlePacket(followUpPacket(5, master, Timestamp{Seconds: 90}), fresh)
		require.Empty(t, *samples)

		src.handlePacket(followUpPacket(200, master, Timestamp{Seconds: 90}), fresh)
		require.Len(t, *samples, 1)
	})
}
