// Copyright 2021 Daniel Erat.
// All rights reserved.

package player

import (
	"github.com/derat/musium/internal/decode"
)

// chunkStreamer adapts a decode.Pipeline's Chunks channel into a
// beep.Streamer, mapping each frame to stereo (a mono channel feeds both
// sides; channels beyond the first two are dropped) and applying the
// player's current volume gain to every sample before device write
// (spec.md §4.H).
type chunkStreamer struct {
	pipeline *decode.Pipeline
	// gain reads the current volume gain. Stream runs on beep's mixer
	// goroutine, not the player goroutine, so gain must read the
	// player's volume through something safe for concurrent access
	// (playerState.volumeDB is an atomic.Int64) rather than closing over
	// a plain field.
	gain func() float64

	cur    decode.Chunk
	curPos int // next unread frame index within cur, in frames (not samples)
	done   bool
	err    error
}

func newChunkStreamer(p *decode.Pipeline, gain func() float64) *chunkStreamer {
	return &chunkStreamer{pipeline: p, gain: gain}
}

// Stream implements beep.Streamer.
func (s *chunkStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.done {
		return 0, false
	}
	g := s.gain()
	for n < len(samples) {
		if s.curPos >= s.frameCount() {
			chunk, chOk := <-s.pipeline.Chunks
			if !chOk {
				if err := s.pipeline.Err(); err != nil {
					s.err = err
				}
				s.done = true
				break
			}
			s.cur = chunk
			s.curPos = 0
		}

		ch := s.cur.Format.Channels
		if ch < 1 {
			ch = 1
		}
		maxVal := float64(int64(1) << (uint(s.cur.Format.BitsPerSample) - 1))
		if maxVal <= 0 {
			maxVal = 1
		}

		base := s.curPos * ch
		left := float64(s.cur.Samples[base]) / maxVal
		right := left
		if ch > 1 {
			right = float64(s.cur.Samples[base+1]) / maxVal
		}
		samples[n][0] = left * g
		samples[n][1] = right * g
		s.curPos++
		n++
	}
	return n, n > 0
}

func (s *chunkStreamer) frameCount() int {
	ch := s.cur.Format.Channels
	if ch < 1 {
		ch = 1
	}
	return len(s.cur.Samples) / ch
}

// Err implements beep.Streamer.
func (s *chunkStreamer) Err() error { return s.err }
