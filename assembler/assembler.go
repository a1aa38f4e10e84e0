// Package assembler implements the CCSDS TM assembler: the state machine
// that packs a stream of variable-length TM source packets into fixed-size
// TM transfer frames, handling spillover across frame boundaries and
// filling with idle packets and idle frames when no real data is pending.
package assembler

import (
	"log/slog"

	"github.com/tm-codec/ccsds"
	"github.com/tm-codec/ccsds/internal"
	"github.com/tm-codec/ccsds/tmframe"
	"github.com/tm-codec/ccsds/tmpacket"
)

// OnFrame is invoked once per completed frame, in emission order. It must
// not re-enter the Assembler that invoked it; reentrancy is undefined.
type OnFrame func(frameBytes []byte)

// Assembler packs TM source packets into fixed-size TM transfer frames. The
// zero value is not ready to use; call New or Reset first.
//
// An Assembler is single-threaded cooperative: it must be owned by exactly
// one logical actor and is not safe for concurrent use.
type Assembler struct {
	cfg ccsds.Config
	log *slog.Logger

	masterChannelFrameCount  uint8
	virtualChannelFrameCount uint8
	idleApidSequenceCount    uint16

	pendingFrameBuffer               []byte // length dataFieldSize(cfg), write cursor is writeCursor
	writeCursor                      int
	firstHeaderPointerOfPendingFrame uint16

	frameScratch []byte // full-size scratch buffer reused for each emission

	OnFrame OnFrame
}

// New constructs an Assembler for cfg. It returns ccsds.ErrBadConfiguration
// if cfg cannot hold a minimal idle packet.
func New(cfg ccsds.Config, onFrame OnFrame) (*Assembler, error) {
	a := &Assembler{}
	if err := a.Reset(cfg); err != nil {
		return nil, err
	}
	a.OnFrame = onFrame
	return a, nil
}

// Reset reinitializes the Assembler with cfg, discarding any pending state.
// It returns ccsds.ErrBadConfiguration without modifying the Assembler if
// cfg is invalid.
func (a *Assembler) Reset(cfg ccsds.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.masterChannelFrameCount = 0
	a.virtualChannelFrameCount = 0
	a.idleApidSequenceCount = 0
	a.firstHeaderPointerOfPendingFrame = ccsds.NoPacketStart
	a.writeCursor = 0
	d := cfg.DataFieldSize()
	if cap(a.pendingFrameBuffer) < d {
		a.pendingFrameBuffer = make([]byte, d)
	} else {
		a.pendingFrameBuffer = a.pendingFrameBuffer[:d]
	}
	if cap(a.frameScratch) < cfg.TransferFrameSize {
		a.frameScratch = make([]byte, cfg.TransferFrameSize)
	} else {
		a.frameScratch = a.frameScratch[:cfg.TransferFrameSize]
	}
	return nil
}

// SetLogger attaches a structured logger used for diagnostic trace messages.
// A nil logger disables logging.
func (a *Assembler) SetLogger(l *slog.Logger) { a.log = l }

func (a *Assembler) dataFieldSize() int { return a.cfg.DataFieldSize() }

// PushTMpacket accepts one well-formed TM source packet, appending it to the
// pending frame and emitting whole frames as they fill. It returns
// ccsds.ErrMalformedPacket if packetBytes is not a well-formed packet
// (assembler state is left unchanged in that case).
func (a *Assembler) PushTMpacket(packetBytes []byte) error {
	if _, err := tmpacket.New(packetBytes); err != nil {
		return ccsds.ErrMalformedPacket
	}
	return a.pushBytes(packetBytes)
}

// pushBytes implements the packing algorithm; packetBytes is assumed
// well-formed (validated by PushTMpacket, or built as an idle packet by
// FlushTMframe). Any part that overflows the pending frame is handed to
// pushSpillover.
func (a *Assembler) pushBytes(packetBytes []byte) error {
	d := a.dataFieldSize()

	if a.writeCursor == 0 {
		a.firstHeaderPointerOfPendingFrame = 0
	} else if a.firstHeaderPointerOfPendingFrame == ccsds.NoPacketStart {
		a.firstHeaderPointerOfPendingFrame = uint16(a.writeCursor)
	}

	room := d - a.writeCursor
	if len(packetBytes) <= room {
		copy(a.pendingFrameBuffer[a.writeCursor:], packetBytes)
		a.writeCursor += len(packetBytes)
		if a.writeCursor == d {
			a.emit()
		}
		return nil
	}

	copy(a.pendingFrameBuffer[a.writeCursor:], packetBytes[:room])
	a.writeCursor = d
	a.emit()
	remainder := packetBytes[room:]
	return a.pushSpillover(remainder)
}

// pushSpillover writes a packet continuation into the (freshly reset)
// pending frame, emitting full frames in a loop while the remainder itself
// exceeds one frame's data field. Unlike pushBytes, it never treats this write as "starting" a
// packet: the FHP stays NO_PACKET_START until a subsequent PushTMpacket call
// begins a new packet in this frame (§4.3 step 5 of the packing algorithm).
func (a *Assembler) pushSpillover(remainder []byte) error {
	d := a.dataFieldSize()
	for len(remainder) > d {
		copy(a.pendingFrameBuffer, remainder[:d])
		a.writeCursor = d
		a.emit()
		remainder = remainder[d:]
	}
	copy(a.pendingFrameBuffer, remainder)
	a.writeCursor = len(remainder)
	if a.writeCursor == d {
		a.emit()
	}
	return nil
}

// emit serializes the pending frame, invokes OnFrame, advances counters and
// resets pending state. Precondition: a.writeCursor == dataFieldSize(cfg).
func (a *Assembler) emit() {
	buf := a.frameScratch
	f := tmframe.NewUnchecked(buf, a.cfg)
	f.SetPrimaryHeaderFixed(0, a.cfg.SpacecraftID, a.cfg.VirtualChannelID, false)
	f.SetMasterChannelFrameCount(a.masterChannelFrameCount)
	f.SetVirtualChannelFrameCount(a.virtualChannelFrameCount)
	f.SetSecondaryHeaderAndFHP(a.cfg.HasSecondaryHeader, a.firstHeaderPointerOfPendingFrame)
	copy(f.DataField(), a.pendingFrameBuffer)
	if a.cfg.HasFrameErrorControl {
		f.SetFrameErrorControlField(f.ComputeFrameErrorControlField())
	}

	internal.LogAttrs(a.log, slog.LevelDebug, "tmframe emitted",
		slog.Int("vcfc", int(a.virtualChannelFrameCount)),
		internal.SlogFHP("fhp", a.firstHeaderPointerOfPendingFrame))

	if a.OnFrame != nil {
		a.OnFrame(buf)
	}

	a.masterChannelFrameCount++
	a.virtualChannelFrameCount++
	a.writeCursor = 0
	a.firstHeaderPointerOfPendingFrame = ccsds.NoPacketStart
}

// minIdlePacketSize is the smallest total length (primary header plus one
// payload byte) a valid idle packet can have; a packet's length field
// cannot represent anything shorter.
const minIdlePacketSize = ccsds.PacketPrimaryHeaderSize + 1

// FlushTMframe pads the pending frame to full size with an idle packet and
// emits it, if any real data is pending. If nothing is pending, it does
// nothing.
//
// The leftover room in the pending frame can be smaller than
// minIdlePacketSize (e.g. a pushed packet left 4 bytes of room, but no idle
// packet can be represented in fewer than 7 bytes). When that happens, the
// idle packet is instead sized to finish the pending frame and fully
// occupy one more frame immediately after it, so its own header always has
// somewhere valid to start and the construction never needs a buffer
// shorter than the primary header. pushBytes's normal append/spillover path
// (shared with PushTMpacket) takes care of writing and emitting both
// frames, leaving no pending state behind either way.
func (a *Assembler) FlushTMframe() {
	if a.writeCursor == 0 {
		return
	}
	d := a.dataFieldSize()
	room := d - a.writeCursor

	idleTotal := room
	if idleTotal < minIdlePacketSize {
		idleTotal = room + d
	}
	idleBuf := make([]byte, idleTotal)
	if _, err := tmpacket.MakeIdle(idleBuf, idleTotal-ccsds.PacketPrimaryHeaderSize, a.idleApidSequenceCount); err != nil {
		// idleBuf is always sized to match the payload length passed here;
		// this cannot happen.
		panic(err)
	}
	a.idleApidSequenceCount = (a.idleApidSequenceCount + 1) & 0x3FFF

	_ = a.pushBytes(idleBuf)
}

// FlushTMframeOrIdleFrame behaves as FlushTMframe if real data is pending;
// otherwise it emits a fully-formed idle frame, FHP == IdleFramePattern,
// whose entire data field is one idle packet.
func (a *Assembler) FlushTMframeOrIdleFrame() {
	if a.writeCursor != 0 {
		a.FlushTMframe()
		return
	}
	d := a.dataFieldSize()
	idle, _ := tmpacket.MakeIdle(a.pendingFrameBuffer[:d], d-ccsds.PacketPrimaryHeaderSize, a.idleApidSequenceCount)
	_ = idle
	a.idleApidSequenceCount = (a.idleApidSequenceCount + 1) & 0x3FFF
	a.writeCursor = d
	a.firstHeaderPointerOfPendingFrame = ccsds.IdleFramePattern
	a.emit()
}

// MasterChannelFrameCount returns the counter that will be stamped on the
// next emitted frame.
func (a *Assembler) MasterChannelFrameCount() uint8 { return a.masterChannelFrameCount }

// VirtualChannelFrameCount returns the counter that will be stamped on the
// next emitted frame.
func (a *Assembler) VirtualChannelFrameCount() uint8 { return a.virtualChannelFrameCount }
