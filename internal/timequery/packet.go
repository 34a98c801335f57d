// Package timequery implements the DSYN/DSYR UDP verification protocol.
// Any host on the network can ask a sync daemon for its current clock
// readings and compare them against its own, without trusting either side's
// synchronization state.
package timequery

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dantelabs/dantesync/internal/controller"
)

const (
	// DefaultPort is the UDP port the server listens on.
	DefaultPort = 31900

	// RequestMagic is ASCII "DSYN".
	RequestMagic uint32 = 0x4453594E

	// ResponseMagic is ASCII "DSYR".
	ResponseMagic uint32 = 0x44535952

	RequestSize  = 8
	ResponseSize = 64
)

var (
	ErrShortPacket = errors.New("timequery: short packet")
	ErrBadMagic    = errors.New("timequery: bad magic")
)

// Request asks a daemon for its clock readings. The ID is echoed in the
// response so callers can match replies over a connectionless transport.
type Request struct {
	ID uint32
}

func (r Request) Marshal() []byte {
	buf := make([]byte, RequestSize)
	binary.BigEndian.PutUint32(buf[0:4], RequestMagic)
	binary.BigEndian.PutUint32(buf[4:8], r.ID)
	return buf
}

func ParseRequest(buf []byte) (Request, error) {
	if len(buf) < RequestSize {
		return Request{}, ErrShortPacket
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != RequestMagic {
		return Request{}, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}
	return Request{ID: binary.BigEndian.Uint32(buf[4:8])}, nil
}

// Response carries one host's clock readings. All multi-byte fields are
// big-endian on the wire; the layout is fixed at 64 bytes.
type Response struct {
	ID uint32

	// SystemTimeNs is UTC nanoseconds since the Unix epoch.
	SystemTimeNs uint64

	// Monotonic is the raw monotonic counter reading.
	Monotonic uint64

	// MonotonicFreq is the counter's tick rate per second.
	MonotonicFreq uint64

	// PTPOffsetNs is the last raw offset against the grandmaster.
	PTPOffsetNs int64

	// DriftRateMilliPPM and FreqAdjMilliPPM are ppm scaled by 1000.
	DriftRateMilliPPM int32
	FreqAdjMilliPPM   int32

	Mode        controller.Mode
	Locked      bool
	Grandmaster controller.GrandmasterID
}

func (r Response) Marshal() []byte {
	buf := make([]byte, ResponseSize)
	binary.BigEndian.PutUint32(buf[0:4], ResponseMagic)
	binary.BigEndian.PutUint32(buf[4:8], r.ID)
	binary.BigEndian.PutUint64(buf[8:16], r.SystemTimeNs)
	binary.BigEndian.PutUint64(buf[16:24], r.Monotonic)
	binary.BigEndian.PutUint64(buf[24:32], uint64(r.PTPOffsetNs))
	binary.BigEndian.PutUint32(buf[32:36], uint32(r.DriftRateMilliPPM))
	binary.BigEndian.PutUint32(buf[36:40], uint32(r.FreqAdjMilliPPM))
	buf[40] = byte(r.Mode)
	if r.Locked {
		buf[41] = 1
	}
	copy(buf[42:48], r.Grandmaster[:])
	binary.BigEndian.PutUint64(buf[48:56], r.MonotonicFreq)
	// buf[56:64] reserved
	return buf
}

func ParseResponse(buf []byte) (Response, error) {
	if len(buf) < ResponseSize {
		return Response{}, ErrShortPacket
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != ResponseMagic {
		return Response{}, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}
	resp := Response{
		ID:                binary.BigEndian.Uint32(buf[4:8]),
		SystemTimeNs:      binary.BigEndian.Uint64(buf[8:16]),
		Monotonic:         binary.BigEndian.Uint64(buf[16:24]),
		PTPOffsetNs:       int64(binary.BigEndian.Uint64(buf[24:32])),
		DriftRateMilliPPM: int32(binary.BigEndian.Uint32(buf[32:36])),
		FreqAdjMilliPPM:   int32(binary.BigEndian.Uint32(buf[36:40])),
		Mode:              controller.Mode(buf[40]),
		Locked:            buf[41] != 0,
		MonotonicFreq:     binary.BigEndian.Uint64(buf[48:56]),
	}
	copy(resp.Grandmaster[:], buf[42:48])
	return resp, nil
}
