// Package link simulates the space-to-ground physical link between a TM
// assembler and a TM packetizer: a frame producer goroutine and a frame
// consumer goroutine joined by a channel, each side owning exactly one of
// the codec's single-threaded state machines.
package link

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tm-codec/ccsds/assembler"
	"github.com/tm-codec/ccsds/packetizer"
)

// Simulator wires an Assembler's frame output to a Packetizer's frame input
// over a buffered channel, running each side on its own goroutine. Neither
// the Assembler nor the Packetizer is touched from more than one goroutine:
// the codec's single-threaded-cooperative contract is preserved per actor,
// the channel is the only shared state.
type Simulator struct {
	Assembler  *assembler.Assembler
	Packetizer *packetizer.Packetizer

	// FrameBufferSize sets the channel capacity between producer and
	// consumer; 0 means unbuffered.
	FrameBufferSize int
}

// Run drives packets from in through the Assembler, across the simulated
// link, through the Packetizer, emitting via the Packetizer's configured
// OnPacket. It returns when in is closed and all frames in flight have been
// consumed, or when ctx is cancelled, or on the first error from either
// side.
//
// Run takes over the Assembler's OnFrame callback for the duration of the
// call, restoring it on return. Any OnFrame already set on the Assembler
// (e.g. a metrics recorder) is still invoked, once per emitted frame,
// before the frame is handed to the simulated link.
func (s *Simulator) Run(ctx context.Context, in <-chan []byte) error {
	frames := make(chan []byte, s.FrameBufferSize)

	g, ctx := errgroup.WithContext(ctx)

	priorOnFrame := s.Assembler.OnFrame
	defer func() { s.Assembler.OnFrame = priorOnFrame }()

	g.Go(func() error {
		defer close(frames)
		s.Assembler.OnFrame = func(frameBytes []byte) {
			if priorOnFrame != nil {
				priorOnFrame(frameBytes)
			}
			cp := make([]byte, len(frameBytes))
			copy(cp, frameBytes)
			select {
			case frames <- cp:
			case <-ctx.Done():
			}
		}
		for {
			select {
			case p, ok := <-in:
				if !ok {
					s.Assembler.FlushTMframe()
					return nil
				}
				if err := s.Assembler.PushTMpacket(p); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case f, ok := <-frames:
				if !ok {
					return nil
				}
				if err := s.Packetizer.PushTMframe(f); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	return g.Wait()
}
