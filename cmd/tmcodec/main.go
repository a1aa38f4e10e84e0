// Command tmcodec drives a CCSDS TM assembler/packetizer pair over a
// simulated link, reading a stream of length-prefixed TM source packets
// from stdin (or a file), downlinking them through fixed-size TM transfer
// frames, and writing the reconstructed packets back out, while exposing
// Prometheus metrics for the run.
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/tm-codec/ccsds"
	"github.com/tm-codec/ccsds/assembler"
	"github.com/tm-codec/ccsds/link"
	"github.com/tm-codec/ccsds/metrics"
	"github.com/tm-codec/ccsds/packetizer"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to a YAML configuration file (required).")
		scid       = pflag.Uint16("scid", 0, "Override: spacecraft identifier.")
		vcid       = pflag.Uint8("vcid", 0, "Override: virtual channel identifier.")
		frameSize  = pflag.Int("frame-size", 0, "Override: transfer frame size in bytes.")
		secHdr     = pflag.Bool("sec-hdr", false, "Override: frame carries a secondary header.")
		fecf       = pflag.Bool("fecf", false, "Override: frame carries a trailing Frame Error Control Field.")
		inPath     = pflag.StringP("in", "i", "-", "Input file of length-prefixed TM packets, or - for stdin.")
		outPath    = pflag.StringP("out", "o", "-", "Output file for recovered TM packets, or - for stdout.")
		metricsOut = pflag.String("metrics-out", "", "If set, write Prometheus text-format metrics to this path after the run.")
		help       = pflag.Bool("help", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "tmcodec: assemble/downlink/recover a CCSDS TM packet stream.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help || *configPath == "" {
		pflag.Usage()
		if *configPath == "" {
			os.Exit(2)
		}
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("loading configuration", slog.Any("err", err))
		os.Exit(1)
	}
	applyOverrides(&cfg, *scid, *vcid, *frameSize, *secHdr, *fecf)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	rec := metrics.NewRecorder()

	asm, err := assembler.New(cfg, rec.OnFrame)
	if err != nil {
		logger.Error("constructing assembler", slog.Any("err", err))
		os.Exit(1)
	}
	asm.SetLogger(logger)

	out, err := openOutput(*outPath)
	if err != nil {
		logger.Error("opening output", slog.Any("err", err))
		os.Exit(1)
	}
	defer out.Close()
	bw := bufio.NewWriter(out)
	defer bw.Flush()

	pkz, err := packetizer.New(cfg, func(packetBytes []byte) error {
		if err := rec.OnPacket(packetBytes); err != nil {
			return err
		}
		return writeLengthPrefixed(bw, packetBytes)
	})
	if err != nil {
		logger.Error("constructing packetizer", slog.Any("err", err))
		os.Exit(1)
	}
	pkz.SetLogger(logger)

	in, err := openInput(*inPath)
	if err != nil {
		logger.Error("opening input", slog.Any("err", err))
		os.Exit(1)
	}
	defer in.Close()

	packets := make(chan []byte)
	go func() {
		defer close(packets)
		if err := readLengthPrefixed(in, packets); err != nil {
			logger.Error("reading input stream", slog.Any("err", err))
		}
	}()

	sim := &link.Simulator{Assembler: asm, Packetizer: pkz, FrameBufferSize: 4}
	if err := sim.Run(context.Background(), packets); err != nil {
		rec.RecordError(err)
		logger.Error("link simulation ended with error", slog.Any("err", err))
	}

	if err := bw.Flush(); err != nil {
		logger.Error("flushing output", slog.Any("err", err))
	}

	if *metricsOut != "" {
		if err := writeMetricsFile(*metricsOut, rec); err != nil {
			logger.Error("writing metrics", slog.Any("err", err))
		}
	}
}

func applyOverrides(cfg *ccsds.Config, scid uint16, vcid uint8, frameSize int, secHdr, fecf bool) {
	if scid != 0 {
		cfg.SpacecraftID = scid
	}
	if vcid != 0 {
		cfg.VirtualChannelID = vcid
	}
	if frameSize != 0 {
		cfg.TransferFrameSize = frameSize
	}
	if secHdr {
		cfg.HasSecondaryHeader = true
	}
	if fecf {
		cfg.HasFrameErrorControl = true
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// readLengthPrefixed reads a stream of uint32-length-prefixed TM packets
// from r, sending each packet's bytes on out.
func readLengthPrefixed(r io.Reader, out chan<- []byte) error {
	br := bufio.NewReader(r)
	var lenBuf [4]byte
	for {
		_, err := io.ReadFull(br, lenBuf[:])
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return err
		}
		out <- buf
	}
}

func writeLengthPrefixed(w io.Writer, packetBytes []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(packetBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(packetBytes)
	return err
}

func writeMetricsFile(path string, rec *metrics.Recorder) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return rec.WriteText(f)
}
