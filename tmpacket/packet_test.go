package tmpacket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/tm-codec/ccsds"
)

func TestNewRejectsShortBuffer(t *testing.T) {
	_, err := New([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ccsds.ErrMalformedPacket)
}

func TestNewRejectsLengthMismatch(t *testing.T) {
	buf := make([]byte, 10)
	buf[5] = 5 // claims payload of 6 bytes, total 12, but buf is 10
	_, err := New(buf)
	assert.ErrorIs(t, err, ccsds.ErrMalformedPacket)
}

func TestMakeIdle(t *testing.T) {
	dst := make([]byte, ccsds.PacketPrimaryHeaderSize+20)
	p, err := MakeIdle(dst, 20, 42)
	assert.NoError(t, err)
	assert.True(t, p.IsIdle())
	assert.Equal(t, ccsds.IdlePacketAPID, int(p.ApplicationProcessID()))
	assert.Equal(t, uint16(42), p.SequenceCount())
	assert.Equal(t, uint8(0b11), p.SequenceFlags())
	assert.Equal(t, len(dst), p.TotalLength())
}

func TestAppendIdleExtendsSlice(t *testing.T) {
	dst := []byte{0xAA}
	var p Packet
	var err error
	dst, p, err = AppendIdle(dst, 10, 0)
	assert.NoError(t, err)
	assert.Equal(t, byte(0xAA), dst[0])
	assert.True(t, p.IsIdle())
	assert.Equal(t, len(dst)-1, p.TotalLength())
}

func TestEqual(t *testing.T) {
	a, _ := MakeIdle(make([]byte, 13), 7, 1)
	b, _ := MakeIdle(make([]byte, 13), 7, 1)
	c, _ := MakeIdle(make([]byte, 13), 7, 2)
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestRoundTripRandomPacket(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		apid := uint16(rapid.IntRange(0, 0x7FE).Draw(t, "apid"))
		seqCount := uint16(rapid.IntRange(0, 0x3FFF).Draw(t, "seqCount"))
		payloadLen := rapid.IntRange(1, 512).Draw(t, "payloadLen")

		buf := make([]byte, ccsds.PacketPrimaryHeaderSize+payloadLen)
		p := NewUnchecked(buf)
		p.SetPrimaryHeader(0, 0, false, apid)
		p.SetSequence(0b11, seqCount)
		p.SetPacketLengthField(uint16(payloadLen - 1))

		parsed, err := New(buf)
		assert.NoError(t, err)
		assert.Equal(t, apid, parsed.ApplicationProcessID())
		assert.Equal(t, seqCount, parsed.SequenceCount())
		assert.Equal(t, payloadLen, len(parsed.Payload()))
		assert.Equal(t, apid == ccsds.IdlePacketAPID, parsed.IsIdle())
	})
}
