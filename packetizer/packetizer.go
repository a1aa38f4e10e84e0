// Package packetizer implements the CCSDS TM packetizer: the inverse of the
// assembler. It consumes a stream of fixed-size TM transfer frames and
// reconstructs the original TM source packet stream, using the First
// Header Pointer to resynchronize packet boundaries and rejoining packets
// split across frames.
package packetizer

import (
	"log/slog"

	"github.com/tm-codec/ccsds"
	"github.com/tm-codec/ccsds/internal"
	"github.com/tm-codec/ccsds/tmframe"
)

// OnPacket is invoked once per reconstructed packet, in source order. It may
// be an idle packet; the implementor decides whether to forward or drop it.
type OnPacket func(packetBytes []byte) error

// Packetizer reassembles TM source packets from a stream of TM transfer
// frames. The zero value is not ready to use; call New or Reset first.
//
// A Packetizer is single-threaded cooperative and not safe for concurrent
// use.
type Packetizer struct {
	cfg ccsds.Config
	log *slog.Logger

	// pendingPacketBuffer holds the raw bytes of an in-flight packet spanning
	// a frame boundary. It may be shorter than PacketPrimaryHeaderSize: the
	// packing algorithm does not guarantee a packet's header itself lands
	// whole within one frame, so the header can be split just like the
	// body.
	pendingPacketBuffer []byte

	OnPacket OnPacket
}

// New constructs a Packetizer for cfg. It returns ccsds.ErrBadConfiguration
// if cfg cannot hold a minimal idle packet.
func New(cfg ccsds.Config, onPacket OnPacket) (*Packetizer, error) {
	p := &Packetizer{}
	if err := p.Reset(cfg); err != nil {
		return nil, err
	}
	p.OnPacket = onPacket
	return p, nil
}

// Reset reinitializes the Packetizer with cfg, discarding any pending
// partial packet.
func (p *Packetizer) Reset(cfg ccsds.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg = cfg
	p.pendingPacketBuffer = p.pendingPacketBuffer[:0]
	return nil
}

// SetLogger attaches a structured logger used for diagnostic trace messages.
// A nil logger disables logging.
func (p *Packetizer) SetLogger(l *slog.Logger) { p.log = l }

// resync clears pending-packet state, as required after UnexpectedSpillover
// or OrphanSpillover so the next frame's FHP can resynchronize the stream.
func (p *Packetizer) resync() {
	p.pendingPacketBuffer = p.pendingPacketBuffer[:0]
}

// pendingNeeds reports how many more bytes are needed to make progress on
// the pending packet: the rest of its primary header, if that itself
// hasn't fully arrived yet, otherwise the rest of its body now that the
// length field is known. ok is false when nothing is pending.
func (p *Packetizer) pendingNeeds() (need int, ok bool) {
	n := len(p.pendingPacketBuffer)
	if n == 0 {
		return 0, false
	}
	if n < ccsds.PacketPrimaryHeaderSize {
		return ccsds.PacketPrimaryHeaderSize - n, true
	}
	lengthField := uint16(p.pendingPacketBuffer[4])<<8 | uint16(p.pendingPacketBuffer[5])
	total := ccsds.PacketPrimaryHeaderSize + 1 + int(lengthField)
	return total - n, true
}

// PushTMframe consumes one frame, emitting zero or more whole packets via
// OnPacket in source order. A malformed frame (wrong size, bad FHP, FECF
// mismatch if configured) returns ccsds.ErrMalformedFrame and leaves
// packetizer state unchanged (the frame is dropped). UnexpectedSpillover and
// OrphanSpillover are returned for the corresponding protocol violations;
// both force a resynchronization of pending-packet state.
func (p *Packetizer) PushTMframe(frameBytes []byte) error {
	f, err := tmframe.New(frameBytes, p.cfg)
	if err != nil {
		return ccsds.ErrMalformedFrame
	}
	if p.cfg.HasFrameErrorControl && !f.VerifyFrameErrorControlField() {
		return ccsds.ErrMalformedFrame
	}

	fhp := f.FirstHeaderPointer()
	data := f.DataField()
	d := len(data)

	if fhp == ccsds.IdleFramePattern {
		return nil
	}

	if fhp == ccsds.NoPacketStart {
		if _, ok := p.pendingNeeds(); !ok {
			return ccsds.ErrUnexpectedSpillover
		}
		return p.consumePureSpillover(data)
	}

	if int(fhp) > d {
		return ccsds.ErrMalformedFrame
	}

	offset := int(fhp)
	if offset > 0 {
		if _, ok := p.pendingNeeds(); !ok {
			return ccsds.ErrOrphanSpillover
		}
		if err := p.consumePrefix(data[:offset]); err != nil {
			p.resync()
			return err
		}
	} else if _, ok := p.pendingNeeds(); ok {
		// offset == 0 but a packet was pending: the frame's data field
		// starts a new packet with nothing left over from the prior one,
		// which is inconsistent protocol state.
		p.resync()
		return ccsds.ErrMalformedFrame
	}

	return p.parseSuccessivePackets(data, offset)
}

// consumePureSpillover feeds an entire NO_PACKET_START frame's data field to
// the pending packet, which may complete its header, its body, or both in
// the same call (a frame can fully contain the rest of a split header plus
// some or all of the body that follows it). Any bytes left over in data
// once the pending packet completes are not part of any further packet,
// per FHP == NO_PACKET_START, and are discarded.
func (p *Packetizer) consumePureSpillover(data []byte) error {
	for {
		need, ok := p.pendingNeeds()
		if !ok || len(data) == 0 {
			return nil
		}
		if need > len(data) {
			p.pendingPacketBuffer = append(p.pendingPacketBuffer, data...)
			return nil
		}
		p.pendingPacketBuffer = append(p.pendingPacketBuffer, data[:need]...)
		data = data[need:]
		if rem, _ := p.pendingNeeds(); rem == 0 {
			pkt := p.pendingPacketBuffer
			p.pendingPacketBuffer = nil
			if err := p.emit(pkt); err != nil {
				return err
			}
		}
	}
}

// consumePrefix finishes the pending packet using exactly prefix: the bytes
// preceding the next packet that FHP says starts in this frame. prefix may
// need to complete a split header before it can even complete the body.
// Anything other than prefix exactly completing the pending packet is a
// MalformedFrame.
func (p *Packetizer) consumePrefix(prefix []byte) error {
	for len(prefix) > 0 {
		need, ok := p.pendingNeeds()
		if !ok || need > len(prefix) {
			return ccsds.ErrMalformedFrame
		}
		p.pendingPacketBuffer = append(p.pendingPacketBuffer, prefix[:need]...)
		prefix = prefix[need:]
		if rem, _ := p.pendingNeeds(); rem == 0 {
			pkt := p.pendingPacketBuffer
			p.pendingPacketBuffer = nil
			if len(prefix) > 0 {
				return ccsds.ErrMalformedFrame
			}
			return p.emit(pkt)
		}
	}
	return ccsds.ErrMalformedFrame
}

// parseSuccessivePackets walks data[offset:], emitting each complete packet
// it finds and carrying the final partial packet (if any, possibly
// including a split header) into pendingPacketBuffer.
func (p *Packetizer) parseSuccessivePackets(data []byte, offset int) error {
	d := len(data)
	for offset < d {
		remaining := d - offset
		if remaining < ccsds.PacketPrimaryHeaderSize {
			p.pendingPacketBuffer = append(p.pendingPacketBuffer[:0], data[offset:]...)
			return nil
		}
		lengthField := uint16(data[offset+4])<<8 | uint16(data[offset+5])
		total := ccsds.PacketPrimaryHeaderSize + 1 + int(lengthField)

		if total <= remaining {
			if err := p.emit(data[offset : offset+total]); err != nil {
				return err
			}
			offset += total
			continue
		}

		p.pendingPacketBuffer = append(p.pendingPacketBuffer[:0], data[offset:]...)
		return nil
	}
	return nil
}

func (p *Packetizer) emit(packetBytes []byte) error {
	apid := (uint16(packetBytes[0])<<8 | uint16(packetBytes[1])) & 0x07FF
	internal.LogAttrs(p.log, slog.LevelDebug, "tmpacket recovered",
		slog.Int("len", len(packetBytes)), internal.SlogAPID("apid", apid))
	if p.OnPacket == nil {
		return nil
	}
	return p.OnPacket(packetBytes)
}
