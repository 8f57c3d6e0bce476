// Copyright 2019 Lanikai Labs. All rights reserved.

package rtpcodec

// RTP packetization of H.264 video streams, per RFC 6184.

const (
	naluTypeFUA   = 28
	naluTypeSTAPA = 24

	naluTypeIDR = 5
	naluTypeSPS = 7
)

var annexBStartCode = []byte{0, 0, 0, 1}

// SplitAccessUnit scans an Annex-B access unit for NAL unit boundaries,
// returning each NAL's payload (start code bytes excluded). Both 3-byte
// (00 00 01) and 4-byte (00 00 00 01) start codes are recognized. Trailing
// zero-padding between start codes is never included in the preceding NAL:
// zero bytes directly before a start code are trimmed off.
func SplitAccessUnit(data []byte) [][]byte {
	var nalus [][]byte
	start := -1

	i := 0
	for i < len(data) {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 {
			codeLen, found := 0, false
			if data[i+2] == 1 {
				codeLen, found = 3, true
			} else if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				codeLen, found = 4, true
			}

			if found {
				if start >= 0 {
					end := i
					for end > start && data[end-1] == 0 {
						end--
					}
					if end > start {
						nalus = append(nalus, data[start:end])
					}
				}
				start = i + codeLen
				i = start
				continue
			}
		}
		i++
	}

	if start >= 0 && start < len(data) {
		nalus = append(nalus, data[start:])
	}

	return nalus
}

// IsKeyframe reports whether the Annex-B bitstream contains a NAL unit of
// type 5 (IDR slice) or 7 (SPS) anywhere.
func IsKeyframe(data []byte) bool {
	for _, nalu := range SplitAccessUnit(data) {
		if len(nalu) == 0 {
			continue
		}
		switch nalu[0] & 0x1F {
		case naluTypeIDR, naluTypeSPS:
			return true
		}
	}
	return false
}

// Packetizer turns H.264 access units into RTP packets. A Packetizer is not
// safe for concurrent use; the Teacher pipeline owns exactly one.
type Packetizer struct {
	ssrc     uint32
	sequence uint16
}

// NewPacketizer creates a packetizer with the given SSRC. If ssrc is 0, one
// is seeded from wall-clock nanoseconds.
func NewPacketizer(ssrc uint32) *Packetizer {
	if ssrc == 0 {
		ssrc = newSSRC()
	}
	return &Packetizer{ssrc: ssrc}
}

// SSRC returns the packetizer's session SSRC.
func (p *Packetizer) SSRC() uint32 {
	return p.ssrc
}

// Packetize splits an access unit into NAL units and packetizes each,
// fragmenting any NAL larger than MaxPayload with FU-A. All packets carry
// the same RTP timestamp, derived from timestampMs at the 90kHz H.264 clock
// rate. The marker bit is set on exactly the last packet of the last NAL.
func (p *Packetizer) Packetize(accessUnit []byte, timestampMs uint32) [][]byte {
	ts := uint32((uint64(timestampMs) * ClockRate) / 1000)

	nalus := SplitAccessUnit(accessUnit)
	var packets [][]byte

	for i, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		isLastNALU := i == len(nalus)-1

		if len(nalu) <= MaxPayload {
			packets = append(packets, p.buildPacket(nalu, ts, isLastNALU))
		} else {
			packets = append(packets, p.fragment(nalu, ts, isLastNALU)...)
		}
	}

	return packets
}

func (p *Packetizer) buildPacket(payload []byte, ts uint32, marker bool) []byte {
	seq := p.sequence
	p.sequence++

	hdr := Header{
		Marker:      marker,
		PayloadType: PayloadTypeH264,
		Sequence:    seq,
		Timestamp:   ts,
		SSRC:        p.ssrc,
	}
	return hdr.marshal(payload)
}

// fragment splits a single NAL unit into FU-A fragments, per RFC 6184
// §5.8. The original NAL header byte is not transmitted; it is replaced by
// a 2-byte FU indicator + FU header pair on each fragment.
func (p *Packetizer) fragment(nalu []byte, ts uint32, isLastNALU bool) [][]byte {
	header := nalu[0]
	nalType := header & 0x1F
	indicator := (header & 0xE0) | naluTypeFUA

	payload := nalu[1:]
	const maxFragment = MaxPayload - 2

	var packets [][]byte
	for i := 0; i < len(payload); i += maxFragment {
		end := i + maxFragment
		if end > len(payload) {
			end = len(payload)
		}
		isFirst := i == 0
		isLast := end == len(payload)

		fuHeader := nalType
		if isFirst {
			fuHeader |= 0x80
		}
		if isLast {
			fuHeader |= 0x40
		}

		frag := make([]byte, 2+(end-i))
		frag[0] = indicator
		frag[1] = fuHeader
		copy(frag[2:], payload[i:end])

		marker := isLast && isLastNALU
		packets = append(packets, p.buildPacket(frag, ts, marker))
	}

	return packets
}

// Depacketizer reassembles RTP/H.264 packets into Annex-B access units.
// Not safe for concurrent use; the Student pipeline owns exactly one per
// session.
type Depacketizer struct {
	haveLastSeq bool
	lastSeq     uint16

	haveTS bool
	curTS  uint32

	curFrame []byte
	fuBuf    []byte
	fuActive bool

	// Dropped counts packets rejected for any reason: short packet, wrong
	// version/payload type, empty payload, unsupported NAL type, or
	// malformed STAP-A/FU-A payloads. A sequence gap by itself is not
	// counted.
	Dropped uint64

	// onGap, if set, is called when a sequence number gap is observed.
	// Used by the pipeline to log without this package depending on the
	// logging package's formatting conventions.
	onGap func(expected, got uint16)
}

// NewDepacketizer creates an empty depacketizer.
func NewDepacketizer() *Depacketizer {
	return &Depacketizer{}
}

// OnSequenceGap registers a callback invoked whenever a sequence number gap
// resets pending FU-A state.
func (d *Depacketizer) OnSequenceGap(fn func(expected, got uint16)) {
	d.onGap = fn
}

// Depacketize processes one RTP packet. It returns a complete Annex-B
// access unit and true when the packet carries the marker bit and a
// non-empty frame has been assembled; otherwise it returns (nil, false).
func (d *Depacketizer) Depacketize(pkt []byte) ([]byte, bool) {
	hdr, offset, err := readHeader(pkt)
	if err != nil {
		d.Dropped++
		return nil, false
	}
	if hdr.PayloadType != PayloadTypeH264 {
		d.Dropped++
		return nil, false
	}

	payload := pkt[offset:]

	if d.haveLastSeq {
		expected := d.lastSeq + 1
		if hdr.Sequence != expected {
			if d.onGap != nil {
				d.onGap(expected, hdr.Sequence)
			}
			d.fuBuf = nil
			d.fuActive = false
		}
	}
	d.lastSeq = hdr.Sequence
	d.haveLastSeq = true

	if len(payload) == 0 {
		d.Dropped++
		return nil, false
	}

	if !d.haveTS || d.curTS != hdr.Timestamp {
		// A transition to a new timestamp implicitly closes the previous
		// access unit even without a marker; the receiver discards the
		// incomplete leftover.
		d.curFrame = nil
		d.curTS = hdr.Timestamp
		d.haveTS = true
	}

	naluType := payload[0] & 0x1F
	switch {
	case naluType >= 1 && naluType <= 23:
		d.curFrame = append(d.curFrame, annexBStartCode...)
		d.curFrame = append(d.curFrame, payload...)
	case naluType == naluTypeSTAPA:
		d.depacketizeSTAPA(payload)
	case naluType == naluTypeFUA:
		d.depacketizeFUA(payload)
	default:
		d.Dropped++
	}

	if hdr.Marker && len(d.curFrame) > 0 {
		frame := d.curFrame
		d.curFrame = nil
		return frame, true
	}

	return nil, false
}

func (d *Depacketizer) depacketizeSTAPA(payload []byte) {
	offset := 1
	for offset+2 <= len(payload) {
		size := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if offset+size > len(payload) {
			d.Dropped++
			return
		}
		d.curFrame = append(d.curFrame, annexBStartCode...)
		d.curFrame = append(d.curFrame, payload[offset:offset+size]...)
		offset += size
	}
}

func (d *Depacketizer) depacketizeFUA(payload []byte) {
	if len(payload) < 2 {
		d.Dropped++
		return
	}

	indicator := payload[0]
	header := payload[1]
	start := header&0x80 != 0
	end := header&0x40 != 0
	origType := header & 0x1F

	if start {
		d.fuBuf = d.fuBuf[:0]
		nalHeader := (indicator & 0xE0) | origType
		d.fuBuf = append(d.fuBuf, nalHeader)
		d.fuActive = true
	}

	if d.fuActive {
		d.fuBuf = append(d.fuBuf, payload[2:]...)
	}

	if end && d.fuActive {
		d.curFrame = append(d.curFrame, annexBStartCode...)
		d.curFrame = append(d.curFrame, d.fuBuf...)
		d.fuBuf = nil
		d.fuActive = false
	}
}
