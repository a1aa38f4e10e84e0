// Package tmtesto generates random, well-formed TM source packets and
// validates codec output for use from test code, without pulling the
// assembler/packetizer packages' production API into a test-only
// dependency cycle.
package tmtesto

import (
	"math/rand"

	"github.com/tm-codec/ccsds"
	"github.com/tm-codec/ccsds/tmpacket"
)

// PacketGen generates random TM source packets sharing one APID and
// sequence-count lineage, mimicking a single onboard application process.
type PacketGen struct {
	APID uint16 // 11-bit; caller must keep below ccsds.IdlePacketAPID

	seqCount uint16
}

// RandomizeAPID picks a random APID in [0, IdlePacketAPID).
func (gen *PacketGen) RandomizeAPID(rng *rand.Rand) {
	gen.APID = uint16(rng.Intn(ccsds.IdlePacketAPID))
}

// AppendRandomPacket appends one well-formed TM source packet with a
// payload of payloadLen random bytes to dst, advancing the generator's
// sequence count, and returns the extended slice.
func (gen *PacketGen) AppendRandomPacket(dst []byte, rng *rand.Rand, payloadLen int) []byte {
	if payloadLen < 1 || payloadLen > 0x10000 {
		panic("tmtesto: payload length out of range")
	}
	off := len(dst)
	dst = append(dst, make([]byte, ccsds.PacketPrimaryHeaderSize+payloadLen)...)
	// the length field is not yet written, so New's self-validation would
	// reject this buffer; set it first via direct field writes.
	p := tmpacket.NewUnchecked(dst[off:])
	p.SetPrimaryHeader(0, 0, false, gen.APID)
	p.SetSequence(0b11, gen.seqCount)
	p.SetPacketLengthField(uint16(payloadLen - 1))
	gen.seqCount = (gen.seqCount + 1) & 0x3FFF
	if payloadLen > 0 {
		rng.Read(p.Payload())
	}
	return dst
}

// RandomPayloadLengths returns n random payload lengths in [min, max],
// useful for fuzzing the assembler's spillover handling across many packet
// sizes straddling a frame's data field size.
func RandomPayloadLengths(rng *rand.Rand, n, min, max int) []int {
	lens := make([]int, n)
	for i := range lens {
		lens[i] = min + rng.Intn(max-min+1)
	}
	return lens
}

// ValidatePacket runs ccsds.Validator-based structural checks on buf,
// returning the first error encountered, if any.
func ValidatePacket(buf []byte) error {
	p, err := tmpacket.New(buf)
	if err != nil {
		return err
	}
	var v ccsds.Validator
	p.ValidateSize(&v)
	return v.ErrPop()
}
