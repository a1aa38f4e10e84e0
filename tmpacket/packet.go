// Package tmpacket implements a view over the CCSDS TM source packet primary
// header and its payload. See the CCSDS 132.0-B telemetry packet standard.
package tmpacket

import (
	"encoding/binary"
	"errors"

	"github.com/tm-codec/ccsds"
)

var (
	errShort      = errors.New("tmpacket: buffer shorter than primary header")
	errLenMismatch = errors.New("tmpacket: buffer length disagrees with packet length field")
)

// New returns a Packet with data set to buf. An error is returned if the
// buffer is shorter than the primary header, or if its length disagrees
// with the encoded packet length field (the same check Packet.ValidateSize
// makes, done by New itself since a packet's total size is always derivable
// from its own header).
func New(buf []byte) (Packet, error) {
	if len(buf) < ccsds.PacketPrimaryHeaderSize {
		return Packet{}, ccsds.ErrMalformedPacket
	}
	p := Packet{buf: buf}
	if len(buf) != ccsds.PacketPrimaryHeaderSize-1+int(p.PacketLengthField())+2 {
		return Packet{}, ccsds.ErrMalformedPacket
	}
	return p, nil
}

// NewUnchecked returns a Packet view over buf without validating its length
// against the packet length field. Intended for constructing a packet
// field-by-field (the length field itself is one of the fields being
// written) before the result is handed to New or ValidateSize.
func NewUnchecked(buf []byte) Packet {
	return Packet{buf: buf}
}

// Packet encapsulates the raw bytes of a TM source packet (6-byte primary
// header followed by payload, optionally prefixed by a secondary header
// inside that payload) and provides accessors for its fields.
type Packet struct {
	buf []byte
}

// RawData returns the underlying slice with which the packet was created.
func (p Packet) RawData() []byte { return p.buf }

// PacketVersionNumber returns the 3-bit version field. Always 0 for CCSDS v1.
func (p Packet) PacketVersionNumber() uint8 {
	return uint8(p.buf[0] >> 5)
}

// PacketType returns the 1-bit type field. 0 means TM (telemetry).
func (p Packet) PacketType() uint8 {
	return (p.buf[0] >> 4) & 1
}

// SecondaryHeaderFlag returns the 1-bit secondary header presence flag.
func (p Packet) SecondaryHeaderFlag() bool {
	return p.buf[0]&0b0000_1000 != 0
}

// ApplicationProcessID returns the 11-bit APID field. The reserved value
// ccsds.IdlePacketAPID marks this as an idle packet; see IsIdle.
func (p Packet) ApplicationProcessID() uint16 {
	return binary.BigEndian.Uint16(p.buf[0:2]) & 0x07FF
}

// SetPrimaryHeader sets the version/type/secondary-header-flag/APID fields
// of the packet's primary header in one call.
func (p Packet) SetPrimaryHeader(version, pktType uint8, secHdrFlag bool, apid uint16) {
	v := uint16(version&0b111)<<13 | uint16(pktType&1)<<12 | uint16(apid&0x07FF)
	if secHdrFlag {
		v |= 1 << 11
	}
	binary.BigEndian.PutUint16(p.buf[0:2], v)
}

// SequenceFlags returns the 2-bit sequence flags field. CCSDS uses 0b11
// (unsegmented) for a standalone packet.
func (p Packet) SequenceFlags() uint8 {
	return uint8(p.buf[2] >> 6)
}

// SequenceCount returns the 14-bit sequence count field, monotonic per APID
// modulo 2^14.
func (p Packet) SequenceCount() uint16 {
	return binary.BigEndian.Uint16(p.buf[2:4]) & 0x3FFF
}

// SetSequence sets the sequence flags and sequence count fields.
func (p Packet) SetSequence(flags uint8, count uint16) {
	v := uint16(flags&0b11)<<14 | (count & 0x3FFF)
	binary.BigEndian.PutUint16(p.buf[2:4], v)
}

// PacketLengthField returns the raw 16-bit length field. The total packet
// octet length equals PacketLengthField()+7 (see TotalLength).
func (p Packet) PacketLengthField() uint16 {
	return binary.BigEndian.Uint16(p.buf[4:6])
}

// SetPacketLengthField sets the raw 16-bit length field.
func (p Packet) SetPacketLengthField(v uint16) {
	binary.BigEndian.PutUint16(p.buf[4:6], v)
}

// TotalLength returns the packet's total octet length, including the
// primary header: PacketLengthField()+7.
func (p Packet) TotalLength() int {
	return ccsds.PacketPrimaryHeaderSize + 1 + int(p.PacketLengthField())
}

// Payload returns the bytes following the primary header (including any
// secondary header).
func (p Packet) Payload() []byte {
	return p.buf[ccsds.PacketPrimaryHeaderSize:]
}

// IsIdle reports whether this packet is idle fill, i.e. its APID equals
// ccsds.IdlePacketAPID.
func (p Packet) IsIdle() bool {
	return p.ApplicationProcessID() == ccsds.IdlePacketAPID
}

// Equal reports whether two packets are equal, defined as their serialized
// bytes being equal.
func Equal(a, b Packet) bool {
	if len(a.buf) != len(b.buf) {
		return false
	}
	for i := range a.buf {
		if a.buf[i] != b.buf[i] {
			return false
		}
	}
	return true
}

// ValidateSize checks the packet's length field against the actual buffer
// length and accumulates an error on mismatch.
func (p Packet) ValidateSize(v *ccsds.Validator) {
	if len(p.buf) < ccsds.PacketPrimaryHeaderSize {
		v.AddError(errShort)
		return
	}
	if len(p.buf) != p.TotalLength() {
		v.AddError(errLenMismatch)
	}
}

// MakeIdle writes a well-formed idle packet of exactly payloadSize+6 bytes
// into dst (which must have length payloadSize+6), with APID
// ccsds.IdlePacketAPID, sequenceFlags 0b11 (unsegmented) and the given
// sequence count. Payload content is the fill byte 0x00. It returns dst as
// a Packet view.
func MakeIdle(dst []byte, payloadSize int, sequenceCount uint16) (Packet, error) {
	total := ccsds.PacketPrimaryHeaderSize + payloadSize
	if len(dst) != total {
		return Packet{}, errors.New("tmpacket: MakeIdle destination buffer has wrong length")
	}
	for i := range dst {
		dst[i] = 0
	}
	p := Packet{buf: dst}
	p.SetPrimaryHeader(0, 0, false, ccsds.IdlePacketAPID)
	p.SetSequence(0b11, sequenceCount)
	p.SetPacketLengthField(uint16(payloadSize - 1))
	return p, nil
}

// AppendIdle is like MakeIdle but appends the idle packet to dst and
// returns the extended slice along with a Packet view into it.
func AppendIdle(dst []byte, payloadSize int, sequenceCount uint16) ([]byte, Packet, error) {
	off := len(dst)
	dst = append(dst, make([]byte, ccsds.PacketPrimaryHeaderSize+payloadSize)...)
	p, err := MakeIdle(dst[off:], payloadSize, sequenceCount)
	return dst, p, err
}
