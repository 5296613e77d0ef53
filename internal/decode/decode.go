// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package decode implements Musium's decoder pipeline (spec.md §4.G): for
// a track path, it opens a FLAC stream and produces PCM chunks onto a
// bounded channel, blocking the producer when the channel is full and
// the consumer when it's empty. There's no teacher equivalent for this
// (the teacher never plays audio); the channel-as-bounded-queue shape
// is reused from cmd/nup/scan/command.go's songChan (see DESIGN.md),
// and github.com/mewkiz/flac supplies the actual frame decoding, since
// github.com/go-flac/go-flac (used by internal/flacmeta) only parses
// containers and tags, not audio samples.
package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	flac "github.com/mewkiz/flac"
)

// chunkFrames is the target number of samples per channel per Chunk
// (spec.md §4.G: "≈ 4096 samples per channel").
const chunkFrames = 4096

// QueueDepth is the bounded channel size, chosen to cover at least one
// second of audio at 96 kHz/24-bit stereo (spec.md §4.G): at that rate
// one second is ~23.4 chunks of chunkFrames each, rounded up.
const QueueDepth = 24

// stallTimeout is how long the decoder may run without producing a
// frame before it's treated as a decode error (spec.md §5: "A
// track-decode that has produced no frames for 5 s is treated as a
// decode error").
const stallTimeout = 5 * time.Second

// ErrStalled is wrapped by the error returned when a track's decoder
// stops producing frames for stallTimeout.
var ErrStalled = errors.New("decode: no frames produced before stall timeout")

// Format describes a track's PCM layout.
type Format struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// Chunk is one fixed-size slab of interleaved PCM samples, one int32 per
// sample regardless of the source bit depth (sign-extended).
type Chunk struct {
	Format  Format
	Samples []int32 // interleaved: frame0ch0, frame0ch1, ..., frame1ch0, ...
}

// Pipeline streams a single track's audio as a sequence of Chunks.
type Pipeline struct {
	Format Format
	Chunks <-chan Chunk

	errCh chan error
}

// Open starts decoding the FLAC file at path in a background goroutine.
// Decoding stops, and the Chunks channel is closed, when the stream ends,
// a decode error occurs, or ctx is canceled (e.g. the player skipping the
// track mid-playback). Call Err after Chunks is drained to check whether
// decoding ended due to an error.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Pipeline, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening flac stream %v: %w", path, err)
	}

	format := Format{
		SampleRate:    int(stream.Info.SampleRate),
		BitsPerSample: int(stream.Info.BitsPerSample),
		Channels:      int(stream.Info.ChannelCount),
	}

	p := &Pipeline{
		Format: format,
		errCh:  make(chan error, 1),
	}
	out := make(chan Chunk, QueueDepth)
	p.Chunks = out
	go p.run(ctx, stream, out, logger, path)
	return p, nil
}

// Err returns the error that stopped decoding, if any. It must only be
// called after Chunks has been drained (closed).
func (p *Pipeline) Err() error {
	select {
	case err := <-p.errCh:
		return err
	default:
		return nil
	}
}

// frameResult is one outcome of a single stream.ParseNext call, handed
// from the blocking parse goroutine to run's select loop so that a
// stalled decoder can be detected without blocking forever inside
// ParseNext.
type frameResult struct {
	n   int     // number of frames (frameCount), valid if err == nil
	buf []int32 // interleaved samples, valid if err == nil
	err error   // io.EOF at end of stream
}

func (p *Pipeline) run(ctx context.Context, stream *flac.Stream, out chan<- Chunk, logger *slog.Logger, path string) {
	defer close(out)
	defer stream.Close()

	frameCh := make(chan frameResult)
	go func() {
		for {
			f, err := stream.ParseNext()
			if err != nil {
				frameCh <- frameResult{err: err}
				return
			}
			n := int(f.BlockSize)
			buf := make([]int32, 0, n*len(f.Subframes))
			for i := 0; i < n; i++ {
				for ch := range f.Subframes {
					buf = append(buf, f.Subframes[ch].Samples[i])
				}
			}
			select {
			case frameCh <- frameResult{n: n, buf: buf}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var pending []int32 // samples accumulated toward the next full chunk
	flush := func(force bool) bool {
		for len(pending) >= chunkFrames*p.Format.Channels || (force && len(pending) > 0) {
			n := chunkFrames * p.Format.Channels
			if n > len(pending) {
				n = len(pending)
			}
			chunk := Chunk{Format: p.Format, Samples: append([]int32(nil), pending[:n]...)}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return false
			}
			pending = pending[n:]
		}
		return true
	}

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			logger.Error("decoder stalled, aborting track", "path", path)
			p.errCh <- fmt.Errorf("%v: %w", path, ErrStalled)
			return
		case res := <-frameCh:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(stallTimeout)

			if res.err == io.EOF {
				flush(true)
				return
			}
			if res.err != nil {
				p.errCh <- fmt.Errorf("decoding frame in %v: %w", path, res.err)
				return
			}
			pending = append(pending, res.buf...)
			if !flush(false) {
				return
			}
		}
	}
}
