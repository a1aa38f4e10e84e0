// Package metrics exposes Prometheus instrumentation for a running
// assembler/packetizer pair: frame and packet counts, idle fill counts and
// the per-error-class counters of the codec's error taxonomy.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/tm-codec/ccsds"
)

// Recorder holds the metric vectors for one codec instance and exposes
// methods shaped to be used directly as assembler.OnFrame /
// packetizer.OnPacket callbacks, and to record codec errors.
type Recorder struct {
	registry *prometheus.Registry

	framesEmitted            prometheus.Counter
	packetsRecovered         prometheus.Counter
	idlePacketsSeen          prometheus.Counter
	errorsByKind             *prometheus.CounterVec
	virtualChannelFrameCount prometheus.Gauge
}

// NewRecorder builds a Recorder and registers its metrics on a fresh
// registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		framesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccsds_frames_emitted_total",
			Help: "Total number of TM transfer frames emitted by the assembler.",
		}),
		packetsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccsds_packets_recovered_total",
			Help: "Total number of TM source packets recovered by the packetizer, including idle packets.",
		}),
		idlePacketsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccsds_idle_packets_total",
			Help: "Total number of idle packets recovered by the packetizer.",
		}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccsds_errors_total",
			Help: "Total number of codec errors raised, labeled by error taxonomy class.",
		}, []string{"kind"}),
		virtualChannelFrameCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ccsds_vcfc",
			Help: "Most recent virtual channel frame count stamped on an emitted frame.",
		}),
	}
	r.registry.MustRegister(
		r.framesEmitted,
		r.packetsRecovered,
		r.idlePacketsSeen,
		r.errorsByKind,
		r.virtualChannelFrameCount,
	)
	return r
}

// OnFrame is shaped to be used directly as assembler.OnFrame. It reads the
// just-emitted frame's VCFC (byte offset 3 of the primary header) and bumps
// the emitted-frame counter.
func (r *Recorder) OnFrame(frameBytes []byte) {
	r.framesEmitted.Inc()
	if len(frameBytes) >= ccsds.FramePrimaryHeaderSize {
		r.virtualChannelFrameCount.Set(float64(frameBytes[3]))
	}
}

// OnPacket is shaped to be used directly as packetizer.OnPacket. It counts
// the recovered packet and, if it is idle (APID 0x7FF in the first two
// header bytes), the idle-packet counter too.
func (r *Recorder) OnPacket(packetBytes []byte) error {
	r.packetsRecovered.Inc()
	if len(packetBytes) >= 2 {
		apid := (uint16(packetBytes[0])<<8 | uint16(packetBytes[1])) & 0x07FF
		if apid == ccsds.IdlePacketAPID {
			r.idlePacketsSeen.Inc()
		}
	}
	return nil
}

// RecordError bumps the counter for the given codec error's class. Non-codec
// errors are recorded under the "other" label.
func (r *Recorder) RecordError(err error) {
	kind := "other"
	if ce, ok := err.(ccsds.Error); ok {
		kind = ce.String()
	}
	r.errorsByKind.WithLabelValues(kind).Inc()
}

// WriteText gathers the registry's current metric families and writes them
// to w in the Prometheus text exposition format.
func (r *Recorder) WriteText(w io.Writer) error {
	mfs, err := r.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
