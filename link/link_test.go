package link

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tm-codec/ccsds"
	"github.com/tm-codec/ccsds/assembler"
	"github.com/tm-codec/ccsds/metrics"
	"github.com/tm-codec/ccsds/packetizer"
	"github.com/tm-codec/ccsds/tmpacket"
)

func TestSimulatorRoundTrip(t *testing.T) {
	cfg := ccsds.Config{SpacecraftID: 758, VirtualChannelID: 0, TransferFrameSize: 1115}

	var recovered [][]byte
	pz, err := packetizer.New(cfg, func(p []byte) error {
		cp := make([]byte, len(p))
		copy(cp, p)
		recovered = append(recovered, cp)
		return nil
	})
	assert.NoError(t, err)

	asm, err := assembler.New(cfg, nil)
	assert.NoError(t, err)

	sim := &Simulator{Assembler: asm, Packetizer: pz, FrameBufferSize: 2}

	in := make(chan []byte, 4)
	payload := make([]byte, 93)
	buf := make([]byte, ccsds.PacketPrimaryHeaderSize+len(payload))
	p := tmpacket.NewUnchecked(buf)
	p.SetPrimaryHeader(0, 0, false, 1)
	p.SetSequence(0b11, 1)
	p.SetPacketLengthField(uint16(len(payload) - 1))
	in <- buf
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, sim.Run(ctx, in))

	assert.GreaterOrEqual(t, len(recovered), 1)
	assert.True(t, tmpacket.Equal(mustParse(recovered[0]), mustParse(buf)))
}

// A Recorder wired as the Assembler's OnFrame before Run must still see
// every emitted frame once Run takes over OnFrame for the channel feed.
func TestSimulatorChainsPriorOnFrame(t *testing.T) {
	cfg := ccsds.Config{SpacecraftID: 758, VirtualChannelID: 0, TransferFrameSize: 1115}

	pz, err := packetizer.New(cfg, func(p []byte) error { return nil })
	assert.NoError(t, err)

	rec := metrics.NewRecorder()
	asm, err := assembler.New(cfg, rec.OnFrame)
	assert.NoError(t, err)

	sim := &Simulator{Assembler: asm, Packetizer: pz, FrameBufferSize: 2}

	in := make(chan []byte, 1)
	payload := make([]byte, 93)
	pbuf := make([]byte, ccsds.PacketPrimaryHeaderSize+len(payload))
	p := tmpacket.NewUnchecked(pbuf)
	p.SetPrimaryHeader(0, 0, false, 1)
	p.SetSequence(0b11, 1)
	p.SetPacketLengthField(uint16(len(payload) - 1))
	in <- pbuf
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, sim.Run(ctx, in))

	var buf bytes.Buffer
	assert.NoError(t, rec.WriteText(&buf))
	assert.True(t, strings.Contains(buf.String(), "ccsds_frames_emitted_total 1"))

	// OnFrame is restored once Run returns, not left pointing at Run's
	// internal channel-feeder closure.
	assert.NotNil(t, asm.OnFrame)
	asm.OnFrame(make([]byte, cfg.TransferFrameSize))
	assert.NoError(t, rec.WriteText(&buf))
	assert.True(t, strings.Contains(buf.String(), "ccsds_frames_emitted_total 2"))
}

func mustParse(buf []byte) tmpacket.Packet {
	p, err := tmpacket.New(buf)
	if err != nil {
		panic(err)
	}
	return p
}
