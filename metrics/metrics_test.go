package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tm-codec/ccsds"
)

func TestRecorderCountsFramesAndPackets(t *testing.T) {
	r := NewRecorder()

	frame := make([]byte, 10)
	frame[3] = 5 // vcfc
	r.OnFrame(frame)
	r.OnFrame(frame)

	idlePkt := []byte{0xFF, 0xFF, 0, 0, 0, 0}
	realPkt := []byte{0x00, 0x01, 0, 0, 0, 0}
	assert.NoError(t, r.OnPacket(idlePkt))
	assert.NoError(t, r.OnPacket(realPkt))

	r.RecordError(ccsds.ErrMalformedFrame)

	var buf bytes.Buffer
	assert.NoError(t, r.WriteText(&buf))
	out := buf.String()

	assert.True(t, strings.Contains(out, "ccsds_frames_emitted_total 2"))
	assert.True(t, strings.Contains(out, "ccsds_packets_recovered_total 2"))
	assert.True(t, strings.Contains(out, "ccsds_idle_packets_total 1"))
	assert.True(t, strings.Contains(out, `kind="malformed TM transfer frame"`))
	assert.True(t, strings.Contains(out, "ccsds_vcfc 5"))
}
