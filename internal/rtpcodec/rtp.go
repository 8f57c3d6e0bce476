// Copyright 2019 Lanikai Labs. All rights reserved.

// Package rtpcodec implements RTP/H.264 packetization and depacketization
// per RFC 3550 and RFC 6184, tuned for a fixed-payload-type (96),
// single-session broadcast: no RTCP, no SRTP, no renegotiation.
package rtpcodec

import (
	"encoding/binary"
	"time"
)

// RTP Data Transfer Protocol, as defined in RFC 3550 Section 5.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|V=2|P|X|  CC   |M|     PT      |       sequence number        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                           timestamp                          |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|           synchronization source (SSRC) identifier           |
//	+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+

const (
	rtpVersion    = 2
	rtpHeaderSize = 12

	// PayloadTypeH264 is the fixed payload type used for the video session.
	PayloadTypeH264 byte = 96

	// ClockRate is the RTP clock rate for H.264, in Hz.
	ClockRate = 90000

	// MaxPayload is the MTU-safe ceiling for a single RTP payload, leaving
	// headroom for the 12-byte RTP header and IP/UDP overhead.
	MaxPayload = 1400
)

// Header is a parsed RTP packet header. CSRC and extension fields are not
// supported by this session (CC is always 0 on send; on receive, CC>0 is
// accepted and its CSRC bytes are skipped, never interpreted).
type Header struct {
	Marker      bool
	PayloadType byte
	Sequence    uint16
	Timestamp   uint32
	SSRC        uint32
	CSRCCount   byte // observed CC field, receive-side only
}

// marshal serializes the header followed by payload into a freshly
// allocated packet buffer. CC is always 0 on send.
func (h *Header) marshal(payload []byte) []byte {
	buf := make([]byte, rtpHeaderSize+len(payload))
	buf[0] = rtpVersion << 6 // V=2, P=0, X=0, CC=0
	buf[1] = h.PayloadType
	if h.Marker {
		buf[1] |= 0x80
	}
	binary.BigEndian.PutUint16(buf[2:], h.Sequence)
	binary.BigEndian.PutUint32(buf[4:], h.Timestamp)
	binary.BigEndian.PutUint32(buf[8:], h.SSRC)
	copy(buf[rtpHeaderSize:], payload)
	return buf
}

// readHeader parses the fixed 12-byte RTP header plus any CSRC identifiers,
// which are skipped, never interpreted. It returns the header and the byte
// offset at which the payload begins.
func readHeader(buf []byte) (Header, int, error) {
	if len(buf) < rtpHeaderSize {
		return Header{}, 0, errShortPacket
	}
	if buf[0]>>6 != rtpVersion {
		return Header{}, 0, errBadVersion
	}

	csrcCount := buf[0] & 0x0F
	offset := rtpHeaderSize + 4*int(csrcCount)
	if len(buf) < offset {
		return Header{}, 0, errShortPacket
	}

	return Header{
		Marker:      buf[1]&0x80 != 0,
		PayloadType: buf[1] & 0x7F,
		Sequence:    binary.BigEndian.Uint16(buf[2:]),
		Timestamp:   binary.BigEndian.Uint32(buf[4:]),
		SSRC:        binary.BigEndian.Uint32(buf[8:]),
		CSRCCount:   csrcCount,
	}, offset, nil
}

// newSSRC seeds an SSRC from wall-clock nanoseconds at startup.
func newSSRC() uint32 {
	return uint32(time.Now().UnixNano())
}
