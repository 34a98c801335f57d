package timequery_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dantelabs/dantesync/internal/controller"
	"github.com/dantelabs/dantesync/internal/timequery"
)

func TestRequestWire(t *testing.T) {
	t.Parallel()

	buf := timequery.Request{ID: 0xDEADBEEF}.Marshal()
	require.Len(t, buf, timequery.RequestSize)
	require.Equal(t, []byte("DSYN"), buf[0:4])
	require.Equal(t, uint32(0xDEADBEEF), binary.BigEndian.Uint32(buf[4:8]))

	req, err := timequery.ParseRequest(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), req.ID)
}

func TestParseRequestErrors(t *testing.T) {
	t.Parallel()

	_, err := timequery.ParseRequest([]byte("DSY"))
	require.ErrorIs(t, err, timequery.ErrShortPacket)

	bad := timequery.Request{ID: 1}.Marshal()
	bad[0] = 'X'
	_, err = timequery.ParseRequest(bad)
	require.ErrorIs(t, err, timequery.ErrBadMagic)
}

func TestResponseWire(t *testing.T) {
	t.Parallel()

	resp := timequery.Response{
		ID:                42,
		SystemTimeNs:      1_700_000_000_123_456_789,
		Monotonic:         987654321,
		MonotonicFreq:     1_000_000_000,
		PTPOffsetNs:       -1500,
		DriftRateMilliPPM: -2500, // -2.5 ppm
		FreqAdjMilliPPM:   1250,
		Mode:              controller.ModeNano,
		Locked:            true,
		Grandmaster:       controller.GrandmasterID{0x00, 0x1d, 0xc1, 0xaa, 0xbb, 0xcc},
	}

	buf := resp.Marshal()
	require.Len(t, buf, timequery.ResponseSize)
	require.Equal(t, []byte("DSYR"), buf[0:4])

	// Fixed field positions, independent of the struct layout.
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(buf[4:8]))
	require.Equal(t, resp.SystemTimeNs, binary.BigEndian.Uint64(buf[8:16]))
	require.Equal(t, resp.Monotonic, binary.BigEndian.Uint64(buf[16:24]))
	require.Equal(t, int64(-1500), int64(binary.BigEndian.Uint64(buf[24:32])))
	require.Equal(t, int32(-2500), int32(binary.BigEndian.Uint32(buf[32:36])))
	require.Equal(t, int32(1250), int32(binary.BigEndian.Uint32(buf[36:40])))
	require.Equal(t, byte(4), buf[40])
	require.Equal(t, byte(1), buf[41])
	require.Equal(t, resp.Grandmaster[:], buf[42:48])
	require.Equal(t, resp.MonotonicFreq, binary.BigEndian.Uint64(buf[48:56]))
	require.Equal(t, make([]byte, 8), buf[56:64])

	parsed, err := timequery.ParseResponse(buf)
	require.NoError(t, err)
	require.Equal(t, resp, parsed)
}

func TestParseResponseErrors(t *testing.T) {
	t.Parallel()

	_, err := timequery.ParseResponse(make([]byte, timequery.ResponseSize-1))
	require.ErrorIs(t, err, timequery.ErrShortPacket)

	buf := timequery.Response{}.Marshal()
	binary.BigEndian.PutUint32(buf[0:4], 0x12345678)
	_, err = timequery.ParseResponse(buf)
	require.ErrorIs(t, err, timequery.ErrBadMagic)
}
