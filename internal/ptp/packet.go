// Package ptp implements the PTP v1 sample source: wire parsing for the
// Sync/FollowUp message subset used by Dante audio networks, and a
// multicast listener that pairs them into offset samples.
package ptp

import (
	"encoding/binary"
	"errors"
)

const (
	// EventPort carries Sync messages, GeneralPort carries FollowUp.
	EventPort   = 319
	GeneralPort = 320

	// MulticastGroup is the IPv4 PTP primary multicast domain.
	MulticastGroup = "224.0.1.129"

	// HeaderSize is the fixed PTP v1 common header length.
	HeaderSize = 36

	// FollowUpBodySize is the portion of the FollowUp body we parse.
	FollowUpBodySize = 16

	// syncBodyMinSize covers the Sync body up to the grandmaster UUID.
	syncBodyMinSize = 19
)

var ErrShortPacket = errors.New("packet too short")

// MessageType is derived from the PTP v1 control field.
type MessageType uint8

const (
	MessageSync MessageType = iota
	MessageDelayReq
	MessageFollowUp
	MessageDelayResp
	MessageManagement
	MessageOther
)

func messageTypeFromControl(control byte) MessageType {
	if control <= byte(MessageManagement) {
		return MessageType(control)
	}
	return MessageOther
}

// Header is the PTP v1 common header. Only the fields the pairing logic
// needs are retained.
type Header struct {
	Version       uint8
	MessageLength uint16
	Type          MessageType
	SourceUUID    [6]byte
	SequenceID    uint16
}

// ParseHeader decodes the 36-byte PTP v1 common header: version nibble at
// offset 0, message length at 2, source UUID at 22, sequence id at 30,
// control at 32.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShortPacket
	}
	h := &Header{
		Version:       buf[0] >> 4,
		MessageLength: binary.BigEndian.Uint16(buf[2:4]),
		SequenceID:    binary.BigEndian.Uint16(buf[30:32]),
		Type:          messageTypeFromControl(buf[32]),
	}
	copy(h.SourceUUID[:], buf[22:28])
	return h, nil
}

// Timestamp is a PTP v1 on-wire timestamp. For Dante grandmasters the
// seconds field counts device uptime, not UTC, so values are only
// meaningful as rates.
type Timestamp struct {
	Seconds     uint32
	Nanoseconds uint32
}

// Nanos returns the timestamp as nanoseconds.
func (t Timestamp) Nanos() int64 {
	return int64(t.Seconds)*1_000_000_000 + int64(t.Nanoseconds)
}

// FollowUpBody carries the precise origin timestamp of an earlier Sync.
type FollowUpBody struct {
	AssociatedSequenceID uint16
	OriginTimestamp      Timestamp
}

// ParseFollowUpBody decodes the FollowUp body that follows the common
// header: 6 bytes padding, associated sequence id, then the origin
// timestamp.
func ParseFollowUpBody(buf []byte) (*FollowUpBody, error) {
	if len(buf) < FollowUpBodySize {
		return nil, ErrShortPacket
	}
	return &FollowUpBody{
		AssociatedSequenceID: binary.BigEndian.Uint16(buf[6:8]),
		OriginTimestamp: Timestamp{
			Seconds:     binary.BigEndian.Uint32(buf[8:12]),
			Nanoseconds: binary.BigEndian.Uint32(buf[12:16]),
		},
	}, nil
}

// SyncBody carries the grandmaster clock identity.
type SyncBody struct {
	GrandmasterUUID [6]byte
}

// ParseSyncBody decodes the Sync body far enough to extract the grandmaster
// UUID at offset 13.
func ParseSyncBody(buf []byte) (*SyncBody, error) {
	if len(buf) < syncBodyMinSize {
		return nil, ErrShortPacket
	}
	b := &SyncBody{}
	copy(b.GrandmasterUUID[:], buf[13:19])
	return b, nil
}
