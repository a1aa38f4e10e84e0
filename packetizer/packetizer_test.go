package packetizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tm-codec/ccsds"
	"github.com/tm-codec/ccsds/assembler"
	"github.com/tm-codec/ccsds/tmframe"
	"github.com/tm-codec/ccsds/tmpacket"
)

func testConfig() ccsds.Config {
	return ccsds.Config{
		SpacecraftID:      758,
		VirtualChannelID:  0,
		TransferFrameSize: 1115,
	}
}

func TestMalformedFrameWrongSize(t *testing.T) {
	pz, err := New(testConfig(), nil)
	assert.NoError(t, err)
	err = pz.PushTMframe(make([]byte, 10))
	assert.ErrorIs(t, err, ccsds.ErrMalformedFrame)
}

func TestUnexpectedSpilloverWithNoPending(t *testing.T) {
	cfg := testConfig()
	pz, _ := New(cfg, nil)
	f := tmframe.NewUnchecked(make([]byte, cfg.TransferFrameSize), cfg)
	f.SetPrimaryHeaderFixed(0, cfg.SpacecraftID, cfg.VirtualChannelID, false)
	f.SetSecondaryHeaderAndFHP(false, ccsds.NoPacketStart)
	err := pz.PushTMframe(f.RawData())
	assert.ErrorIs(t, err, ccsds.ErrUnexpectedSpillover)
}

func TestOrphanSpilloverWithNoPending(t *testing.T) {
	cfg := testConfig()
	pz, _ := New(cfg, nil)
	f := tmframe.NewUnchecked(make([]byte, cfg.TransferFrameSize), cfg)
	f.SetPrimaryHeaderFixed(0, cfg.SpacecraftID, cfg.VirtualChannelID, false)
	f.SetSecondaryHeaderAndFHP(false, 10) // nonzero FHP, no pending packet

	err := pz.PushTMframe(f.RawData())
	assert.ErrorIs(t, err, ccsds.ErrOrphanSpillover)
}

func TestIdleFrameDiscarded(t *testing.T) {
	cfg := testConfig()
	var got [][]byte
	pz, _ := New(cfg, func(p []byte) error {
		got = append(got, p)
		return nil
	})
	f := tmframe.NewUnchecked(make([]byte, cfg.TransferFrameSize), cfg)
	f.SetPrimaryHeaderFixed(0, cfg.SpacecraftID, cfg.VirtualChannelID, false)
	f.SetSecondaryHeaderAndFHP(false, ccsds.IdleFramePattern)

	assert.NoError(t, pz.PushTMframe(f.RawData()))
	assert.Len(t, got, 0)
}

func TestFrameErrorControlMismatchDropsFrame(t *testing.T) {
	cfg := testConfig()
	cfg.HasFrameErrorControl = true
	pz, err := New(cfg, func(p []byte) error { return nil })
	assert.NoError(t, err)

	var frames [][]byte
	a, err := assembler.New(cfg, func(f []byte) {
		cp := make([]byte, len(f))
		copy(cp, f)
		frames = append(frames, cp)
	})
	assert.NoError(t, err)
	a.FlushTMframeOrIdleFrame()
	assert.Len(t, frames, 1)

	frames[0][ccsds.FramePrimaryHeaderSize] ^= 0xFF // corrupt first data-field byte

	err = pz.PushTMframe(frames[0])
	assert.ErrorIs(t, err, ccsds.ErrMalformedFrame)
}

func TestPushTMframeRoundTripSinglePacket(t *testing.T) {
	cfg := testConfig()
	var recovered [][]byte
	pz, _ := New(cfg, func(p []byte) error {
		cp := make([]byte, len(p))
		copy(cp, p)
		recovered = append(recovered, cp)
		return nil
	})

	payload := make([]byte, 93)
	buf := make([]byte, ccsds.PacketPrimaryHeaderSize+len(payload))
	p := tmpacket.NewUnchecked(buf)
	p.SetPrimaryHeader(0, 0, false, 1)
	p.SetSequence(0b11, 5)
	p.SetPacketLengthField(uint16(len(payload) - 1))

	var frames [][]byte
	a, _ := assemblerFor(cfg, &frames)
	assert.NoError(t, a.PushTMpacket(buf))
	a.FlushTMframe()

	for _, f := range frames {
		assert.NoError(t, pz.PushTMframe(f))
	}
	assert.Equal(t, 2, len(recovered)) // real + idle fill
	assert.True(t, tmpacket.Equal(mustParsePacket(t, recovered[0]), mustParsePacket(t, buf)))
}

func assemblerFor(cfg ccsds.Config, frames *[][]byte) (*assembler.Assembler, error) {
	return assembler.New(cfg, func(f []byte) {
		cp := make([]byte, len(f))
		copy(cp, f)
		*frames = append(*frames, cp)
	})
}

func mustParsePacket(t *testing.T, buf []byte) tmpacket.Packet {
	t.Helper()
	p, err := tmpacket.New(buf)
	assert.NoError(t, err)
	return p
}
