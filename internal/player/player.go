// Copyright 2021 Daniel Erat.
// All rights reserved.

package player

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/derat/musium/internal/decode"
	"github.com/derat/musium/internal/index"
)

// backoffSchedule is the device-reopen retry schedule (spec.md §4.H):
// 100ms, 500ms, 2s, 5s, then 30s thereafter.
var backoffSchedule = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	2 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

func backoffDelay(attempt int) time.Duration {
	if attempt >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attempt]
}

// Player owns the play queue, current playback position, volume, and
// the decoder pipeline for whatever track is currently playing (spec.md
// §4.H). All of that state is mutated only inside Run's loop, in line
// with spec.md §9's message-passing design note; every exported method
// sends a PlayerCommand and waits for a reply rather than touching
// fields directly. Run always selects on the command mailbox
// concurrently with whatever else it's waiting on — a track finishing,
// a device-reopen backoff timer — so a command never has to wait for
// the current track to finish before it's handled (spec.md §5).
type Player struct {
	idx         *index.Index
	libraryRoot string
	audioDevice string
	logger      *slog.Logger

	cmdCh chan PlayerCommand
	done  chan struct{}
}

// New creates a Player. Call Run in its own goroutine to start it.
// audioDevice is the opaque device name from config (spec.md §6),
// threaded through for diagnostics even though the beep/oto backend has
// no API to act on it (see ensureDevice).
func New(idx *index.Index, libraryRoot, audioDevice string, logger *slog.Logger) *Player {
	return &Player{
		idx:         idx,
		libraryRoot: libraryRoot,
		audioDevice: audioDevice,
		logger:      logger,
		cmdCh:       make(chan PlayerCommand, 16),
		done:        make(chan struct{}),
	}
}

// Enqueue appends trackID to the play queue, or (if the player is Idle)
// starts playing it immediately (spec.md §4.H state machine). It
// returns the queued item and true, or a zero QueuedTrack and false if
// trackID doesn't exist in the index (spec.md §4.I: "Enqueue of an
// unknown track id returns 404.").
func (p *Player) Enqueue(trackID uint64) (QueuedTrack, bool) {
	reply := make(chan interface{}, 1)
	p.cmdCh <- PlayerCommand{kind: cmdEnqueue, trackID: trackID, reply: reply}
	r := (<-reply).(enqueueResult)
	return r.item, r.queued
}

// VolumeUp raises the volume by 1 dB, clamped to 0, and returns the
// resulting value.
func (p *Player) VolumeUp() int { return p.sendVolumeCmd(cmdVolumeUp) }

// VolumeDown lowers the volume by 1 dB, clamped to -60, and returns the
// resulting value.
func (p *Player) VolumeDown() int { return p.sendVolumeCmd(cmdVolumeDown) }

// Volume returns the current volume in dB without changing it.
func (p *Player) Volume() int { return p.sendVolumeCmd(cmdVolumeSnapshot) }

func (p *Player) sendVolumeCmd(kind commandKind) int {
	reply := make(chan interface{}, 1)
	p.cmdCh <- PlayerCommand{kind: kind, reply: reply}
	return (<-reply).(volumeResult).db
}

// Queue returns a snapshot of the play queue and state.
func (p *Player) Queue() (State, []QueuedTrack) {
	reply := make(chan interface{}, 1)
	p.cmdCh <- PlayerCommand{kind: cmdStateSnapshot, reply: reply}
	r := (<-reply).(stateResult)
	return r.state, r.queue
}

// Shutdown stops the player goroutine and waits for it to exit.
func (p *Player) Shutdown() {
	p.cmdCh <- PlayerCommand{kind: cmdShutdown}
	<-p.done
}

// playerState holds everything Run's loop mutates; kept separate from
// Player so that the field set touched only inside Run is obvious.
// volumeDB is also read from the chunkStreamer's gain closure (see
// stream.go), which runs on beep's mixer goroutine rather than Run's,
// so it's an atomic.Int64 instead of a plain int (spec.md §9: no
// unsynchronized cross-goroutine access to player-owned state).
type playerState struct {
	volumeDB    atomic.Int64
	queue       []QueuedTrack
	nextQueueID uint64
	state       State

	deviceOpen        bool
	deviceFormat      decode.Format
	audioDeviceWarned bool
}

// Run is the player goroutine's entry point (spec.md §5: "single player
// thread with a bounded PlayerCommand mailbox"). It never returns until
// a Shutdown command arrives or ctx is canceled.
func (p *Player) Run(ctx context.Context) {
	st := &playerState{}
	defer close(p.done)
	defer p.closeDevice(st)

	for {
		if len(st.queue) == 0 {
			select {
			case cmd := <-p.cmdCh:
				if !p.handleCommand(st, cmd) {
					return
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		st.state = StatePlaying
		head := st.queue[0]
		advance, shutdown := p.playTrack(ctx, st, head)
		if shutdown {
			return
		}
		if advance {
			st.queue = st.queue[1:]
		}
		if len(st.queue) == 0 {
			st.state = StateIdle
			p.closeDevice(st)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// handleCommand applies one mailbox command to st and replies as
// appropriate. It's the single dispatch point for every command kind,
// called both from Run's idle wait and from inside playTrack and
// retryWithBackoff, so the mailbox is serviced the same way whether the
// player is idle, mid-track, or waiting out a device-reopen backoff. It
// returns false when a Shutdown command was received.
func (p *Player) handleCommand(st *playerState, cmd PlayerCommand) bool {
	switch cmd.kind {
	case cmdEnqueue:
		p.handleEnqueue(st, cmd)
	case cmdVolumeUp:
		db := clampVolumeDB(int(st.volumeDB.Load()) + 1)
		st.volumeDB.Store(int64(db))
		cmd.reply <- volumeResult{db: db}
	case cmdVolumeDown:
		db := clampVolumeDB(int(st.volumeDB.Load()) - 1)
		st.volumeDB.Store(int64(db))
		cmd.reply <- volumeResult{db: db}
	case cmdVolumeSnapshot:
		cmd.reply <- volumeResult{db: int(st.volumeDB.Load())}
	case cmdStateSnapshot:
		q := append([]QueuedTrack(nil), st.queue...)
		cmd.reply <- stateResult{state: st.state, queue: q}
	case cmdShutdown:
		return false
	}
	return true
}

// handleEnqueue appends to the queue if trackID exists in the index. It
// never starts playback itself: Run's loop starts playing as soon as
// the queue is nonempty, regardless of whether the player was idle or
// already playing another track when the command arrived, so the
// currently-playing track is never preempted.
func (p *Player) handleEnqueue(st *playerState, cmd PlayerCommand) {
	if _, ok := p.idx.GetTrack(cmd.trackID); !ok {
		cmd.reply <- enqueueResult{queued: false}
		return
	}
	st.nextQueueID++
	item := QueuedTrack{QueueID: st.nextQueueID, TrackID: cmd.trackID}
	st.queue = append(st.queue, item)
	cmd.reply <- enqueueResult{queued: true, item: item}
}

// playTrack decodes and plays one track to completion, handling decode
// failures and device-open failures (the latter retried on the backoff
// schedule); errors writing to the device during playback are not
// detected. It does all this while continuing to
// service the command mailbox (spec.md §5's select on device ∨ mailbox
// ∨ decoder-queue). It returns advance=true if the track finished
// (successfully, via a mid-track decode error, or because ctx was
// canceled) and should be popped off the queue, and shutdown=true if a
// Shutdown command arrived while it was playing.
func (p *Player) playTrack(ctx context.Context, st *playerState, item QueuedTrack) (advance, shutdown bool) {
	ref, ok := p.idx.GetTrack(item.TrackID)
	if !ok {
		// Track vanished from the index between enqueue and playback
		// (can't happen with a frozen index, but fail safe).
		return true, false
	}
	path := filepath.Join(p.libraryRoot, ref.Path)

	trackCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pipeline, err := decode.Open(trackCtx, path, p.logger)
	if err != nil {
		p.logger.Error("decode error, skipping track", "track_id", item.TrackID, "err", err)
		return true, false
	}

	if err := p.ensureDevice(st, pipeline.Format); err != nil {
		p.logger.Error("device open failed, will retry", "err", err)
		if ok := p.retryWithBackoff(ctx, st, pipeline.Format); !ok {
			return false, true
		}
		if ctx.Err() != nil {
			return true, false
		}
	}

	streamer := newChunkStreamer(pipeline, func() float64 { return volumeGain(int(st.volumeDB.Load())) })
	trackDone := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() { close(trackDone) })))

	if shutdown := p.waitForDone(ctx, st, trackDone); shutdown {
		return false, true
	}

	if err := streamer.Err(); err != nil {
		p.logger.Error("decode error mid-track, advancing", "track_id", item.TrackID, "err", err)
	} else if err := pipeline.Err(); err != nil {
		p.logger.Error("decode error mid-track, advancing", "track_id", item.TrackID, "err", err)
	}
	return true, false
}

// waitForDone blocks until done is closed or ctx is canceled, servicing
// the command mailbox throughout (spec.md §5) so that a command never
// waits on whatever done represents — this is what keeps Enqueue,
// VolumeUp/Down, and Queue responsive while a track is playing. It
// returns true if a Shutdown command arrived before done fired.
func (p *Player) waitForDone(ctx context.Context, st *playerState, done <-chan struct{}) (shutdown bool) {
	for {
		select {
		case <-done:
			return false
		case cmd := <-p.cmdCh:
			if !p.handleCommand(st, cmd) {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}

// retryWithBackoff blocks, retrying device reopen on the backoff
// schedule, until either the device opens or ctx is canceled, while
// still servicing the command mailbox throughout the wait. It returns
// false if a Shutdown command arrived while waiting.
func (p *Player) retryWithBackoff(ctx context.Context, st *playerState, format decode.Format) bool {
	for attempt := 0; ; attempt++ {
		timer := time.NewTimer(backoffDelay(attempt))
	wait:
		for {
			select {
			case <-timer.C:
				break wait
			case cmd := <-p.cmdCh:
				if !p.handleCommand(st, cmd) {
					timer.Stop()
					return false
				}
			case <-ctx.Done():
				timer.Stop()
				return true
			}
		}
		if err := p.ensureDevice(st, format); err == nil {
			return true
		}
	}
}

// ensureDevice (re)opens the audio device if it isn't open yet or the
// track's format differs from what's currently configured (spec.md
// §4.G/§4.H: "the player must reconfigure the device between tracks if
// sample rate, channel count, or bit depth differs").
func (p *Player) ensureDevice(st *playerState, format decode.Format) error {
	if st.deviceOpen && st.deviceFormat == format {
		return nil
	}
	p.closeDevice(st)
	if p.audioDevice != "" && !st.audioDeviceWarned {
		p.logger.Warn("audio_device is configured but the beep/oto backend has no device-selection API; always opening the platform default output device",
			"audio_device", p.audioDevice)
		st.audioDeviceWarned = true
	}
	sr := beep.SampleRate(format.SampleRate)
	if err := speaker.Init(sr, sr.N(speakerBufferDuration)); err != nil {
		return fmt.Errorf("opening audio device: %w", err)
	}
	st.deviceOpen = true
	st.deviceFormat = format
	return nil
}

const speakerBufferDuration = time.Second / 20

func (p *Player) closeDevice(st *playerState) {
	if !st.deviceOpen {
		return
	}
	speaker.Close()
	st.deviceOpen = false
}
