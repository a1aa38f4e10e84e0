// Package tmframe implements a view over the CCSDS TM transfer frame primary
// header, optional secondary header, data field and optional Frame Error
// Control Field (FECF).
package tmframe

import (
	"encoding/binary"
	"errors"

	"github.com/tm-codec/ccsds"
)

var (
	errShort           = errors.New("tmframe: buffer length differs from configured transfer frame size")
	errFixedHeaderBits = errors.New("tmframe: fixed header bits violate protocol constants")
)

// New validates buf against cfg, including the fixed header bit constants
// every frame this codec produces or accepts must carry (transfer frame
// version number 0, synchronisation flag 0, segment length identifier
// 0b11), and returns a Frame view over it. buf is not copied; the returned
// Frame aliases it.
func New(buf []byte, cfg ccsds.Config) (Frame, error) {
	if len(buf) != cfg.TransferFrameSize {
		return Frame{}, ccsds.ErrMalformedFrame
	}
	f := Frame{buf: buf, cfg: cfg}
	if err := f.validateFixedFields(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// NewUnchecked returns a Frame view over buf without validating its size or
// fixed header bits. Intended for constructing a frame field-by-field
// before the result is handed to New or ValidateSize.
func NewUnchecked(buf []byte, cfg ccsds.Config) Frame {
	return Frame{buf: buf, cfg: cfg}
}

// validateFixedFields checks the header bits this codec fixes to a single
// value on every frame it produces or accepts: transferFrameVersionNumber,
// synchronisationFlag, packetOrderFlag (only meaningful when
// synchronisationFlag is set, which this codec never does) and
// segmentLengthIdentifier.
func (f Frame) validateFixedFields() error {
	if f.TransferFrameVersionNumber() != 0 {
		return ccsds.ErrMalformedFrame
	}
	if f.SynchronisationFlag() {
		return ccsds.ErrMalformedFrame
	}
	if f.PacketOrderFlag() {
		return ccsds.ErrMalformedFrame
	}
	if f.SegmentLengthIdentifier() != 0b11 {
		return ccsds.ErrMalformedFrame
	}
	return nil
}

// Frame is a view over one fixed-size TM transfer frame.
type Frame struct {
	buf []byte
	cfg ccsds.Config
}

// RawData returns the underlying slice with which the frame was created.
func (f Frame) RawData() []byte { return f.buf }

// TransferFrameVersionNumber returns the 2-bit version field. 0 for CCSDS TM.
func (f Frame) TransferFrameVersionNumber() uint8 {
	return f.buf[0] >> 6
}

// SpacecraftID returns the 10-bit spacecraft identifier field.
func (f Frame) SpacecraftID() uint16 {
	return binary.BigEndian.Uint16(f.buf[0:2]) >> 4 & 0x3FF
}

// VirtualChannelID returns the 3-bit virtual channel identifier field.
func (f Frame) VirtualChannelID() uint8 {
	return uint8(f.buf[1]>>1) & 0x7
}

// OperationalControlFieldFlag returns the 1-bit OCF presence flag.
func (f Frame) OperationalControlFieldFlag() bool {
	return f.buf[1]&1 != 0
}

// SetPrimaryHeaderFixed sets the version/spacecraft ID/virtual channel
// ID/OCF-flag fields of the primary header's first two bytes.
func (f Frame) SetPrimaryHeaderFixed(version uint8, scid uint16, vcid uint8, ocfFlag bool) {
	v := uint16(version&0b11)<<14 | (scid&0x3FF)<<4 | uint16(vcid&0b111)<<1
	if ocfFlag {
		v |= 1
	}
	binary.BigEndian.PutUint16(f.buf[0:2], v)
}

// MasterChannelFrameCount returns the master channel frame count field,
// incrementing modulo 256 across all virtual channels of a spacecraft.
func (f Frame) MasterChannelFrameCount() uint8 {
	return f.buf[2]
}

// SetMasterChannelFrameCount sets the master channel frame count field.
func (f Frame) SetMasterChannelFrameCount(v uint8) { f.buf[2] = v }

// VirtualChannelFrameCount returns the virtual channel frame count field,
// incrementing modulo 256 within this virtual channel only.
func (f Frame) VirtualChannelFrameCount() uint8 {
	return f.buf[3]
}

// SetVirtualChannelFrameCount sets the virtual channel frame count field.
func (f Frame) SetVirtualChannelFrameCount(v uint8) { f.buf[3] = v }

// TransferFrameSecondaryHeaderFlag returns the 1-bit secondary header
// presence flag.
func (f Frame) TransferFrameSecondaryHeaderFlag() bool {
	return f.buf[4]&0b1000_0000 != 0
}

// SynchronisationFlag returns the 1-bit synchronisation flag. 0 means the
// data field holds octet-synchronised packets (the case this codec handles).
func (f Frame) SynchronisationFlag() bool {
	return f.buf[4]&0b0100_0000 != 0
}

// PacketOrderFlag returns the 1-bit packet order flag, only meaningful when
// SynchronisationFlag is set.
func (f Frame) PacketOrderFlag() bool {
	return f.buf[4]&0b0010_0000 != 0
}

// SegmentLengthIdentifier returns the 2-bit segment length identifier,
// always 0b11 (no segmentation) for the frames this codec produces.
func (f Frame) SegmentLengthIdentifier() uint8 {
	return (f.buf[4] >> 3) & 0b11
}

// FirstHeaderPointer returns the 11-bit First Header Pointer field: the byte
// offset within the data field of the first packet header starting in this
// frame, or one of the reserved sentinels ccsds.NoPacketStart /
// ccsds.IdleFramePattern.
func (f Frame) FirstHeaderPointer() uint16 {
	return binary.BigEndian.Uint16(f.buf[4:6]) & 0x07FF
}

// SetSecondaryHeaderAndFHP sets the secondary-header-flag/sync/order/SLI/FHP
// fields of the primary header's last two bytes.
func (f Frame) SetSecondaryHeaderAndFHP(secHdrFlag bool, fhp uint16) {
	v := fhp & 0x07FF
	v |= 0b11 << 11 // segment length identifier, always "no segmentation"
	if secHdrFlag {
		v |= 1 << 15
	}
	binary.BigEndian.PutUint16(f.buf[4:6], v)
}

// secondaryHeaderOffset is the byte offset of the optional secondary header,
// immediately following the primary header.
const secondaryHeaderOffset = ccsds.FramePrimaryHeaderSize

// SecondaryHeader returns the optional 4-byte secondary header slice, or nil
// if the frame was configured without one.
func (f Frame) SecondaryHeader() []byte {
	if !f.cfg.HasSecondaryHeader {
		return nil
	}
	return f.buf[secondaryHeaderOffset : secondaryHeaderOffset+ccsds.FrameSecondaryHeaderSize]
}

func (f Frame) dataFieldOffset() int {
	off := secondaryHeaderOffset
	if f.cfg.HasSecondaryHeader {
		off += ccsds.FrameSecondaryHeaderSize
	}
	return off
}

// DataField returns the frame's data field: the slice holding packed TM
// source packets, excluding the primary header, optional secondary header
// and optional Frame Error Control Field.
func (f Frame) DataField() []byte {
	off := f.dataFieldOffset()
	end := len(f.buf)
	if f.cfg.HasFrameErrorControl {
		end -= ccsds.FrameErrorControlFieldSize
	}
	return f.buf[off:end]
}

// FrameErrorControlField returns the trailing 2-byte CRC field. Only valid
// if the frame was configured with HasFrameErrorControl.
func (f Frame) FrameErrorControlField() uint16 {
	n := len(f.buf)
	return binary.BigEndian.Uint16(f.buf[n-ccsds.FrameErrorControlFieldSize : n])
}

// SetFrameErrorControlField writes the trailing 2-byte CRC field.
func (f Frame) SetFrameErrorControlField(v uint16) {
	n := len(f.buf)
	binary.BigEndian.PutUint16(f.buf[n-ccsds.FrameErrorControlFieldSize:n], v)
}

// ComputeFrameErrorControlField computes the CRC-16/CCITT checksum over
// every byte of the frame preceding the FECF itself (primary header,
// optional secondary header and data field).
func (f Frame) ComputeFrameErrorControlField() uint16 {
	n := len(f.buf)
	return ccsds.ComputeCRC16CCITT(f.buf[:n-ccsds.FrameErrorControlFieldSize])
}

// VerifyFrameErrorControlField reports whether the trailing FECF matches the
// frame's computed checksum. Only meaningful if HasFrameErrorControl.
func (f Frame) VerifyFrameErrorControlField() bool {
	return f.FrameErrorControlField() == f.ComputeFrameErrorControlField()
}

// ValidateSize checks the frame's total length against the configured
// TransferFrameSize and its fixed header bits against the protocol
// constants, accumulating an error on mismatch.
func (f Frame) ValidateSize(v *ccsds.Validator) {
	if len(f.buf) != f.cfg.TransferFrameSize {
		v.AddError(errShort)
		return
	}
	if err := f.validateFixedFields(); err != nil {
		v.AddError(errFixedHeaderBits)
	}
}

// IsIdle reports whether the frame's First Header Pointer is the idle frame
// pattern sentinel.
func (f Frame) IsIdle() bool {
	return f.FirstHeaderPointer() == ccsds.IdleFramePattern
}

// IsPureSpillover reports whether the frame's entire data field is a
// continuation of a packet started in a previous frame.
func (f Frame) IsPureSpillover() bool {
	return f.FirstHeaderPointer() == ccsds.NoPacketStart
}
