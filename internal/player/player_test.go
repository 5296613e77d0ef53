// Copyright 2021 Daniel Erat.
// All rights reserved.

package player

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/derat/musium/internal/flacmeta"
	"github.com/derat/musium/internal/index"
	"github.com/derat/musium/internal/scan"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func mustEmptyIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Build(nil, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return idx
}

// buildTestIndex returns an index with a single track and that track's id.
func buildTestIndex(t *testing.T) (*index.Index, uint64) {
	t.Helper()
	results := []scan.Result{{
		Path: "artist/album/01 title.flac",
		Meta: &flacmeta.Metadata{
			Stream: flacmeta.StreamInfo{SampleRate: 44100, BitsPerSample: 16, Channels: 2, TotalSamples: 44100 * 10},
			Tags: flacmeta.Tags{
				Title: "Title", Artist: "Artist", Album: "Album", AlbumArtist: "Artist",
				Track: 1, Disc: 1, Year: 2020, Month: 1, Day: 1,
			},
		},
	}}
	idx, err := index.Build(results, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	albums := idx.ListAlbums()
	if len(albums) != 1 {
		t.Fatalf("got %d albums, want 1", len(albums))
	}
	view, ok := idx.GetAlbum(albums[0].AlbumID)
	if !ok || len(view.Tracks) != 1 {
		t.Fatalf("GetAlbum = (%+v, %v), want a single track", view, ok)
	}
	return idx, view.Tracks[0].TrackID
}

func TestEnqueueUnknownTrack(t *testing.T) {
	p := New(mustEmptyIndex(t), t.TempDir(), "", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	defer func() {
		p.Shutdown()
		cancel()
	}()

	if item, queued := p.Enqueue(12345); queued {
		t.Errorf("Enqueue of unknown track id = (%+v, %v), want queued=false", item, queued)
	}
	if state, queue := p.Queue(); state != StateIdle || len(queue) != 0 {
		t.Errorf("Queue() = (%v, %v), want (Idle, empty)", state, queue)
	}
}

func TestVolumeRoundTrip(t *testing.T) {
	p := New(mustEmptyIndex(t), t.TempDir(), "", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	defer func() {
		p.Shutdown()
		cancel()
	}()

	if got := p.Volume(); got != 0 {
		t.Fatalf("initial Volume() = %d, want 0", got)
	}
	if got := p.VolumeDown(); got != -1 {
		t.Errorf("VolumeDown() = %d, want -1", got)
	}
	if got := p.VolumeUp(); got != 0 {
		t.Errorf("VolumeUp() = %d, want 0", got)
	}
	for i := 0; i < maxVolumeDB-minVolumeDB+5; i++ {
		p.VolumeDown()
	}
	if got := p.Volume(); got != minVolumeDB {
		t.Errorf("Volume() after repeated VolumeDown = %d, want clamped to %d", got, minVolumeDB)
	}
	for i := 0; i < maxVolumeDB-minVolumeDB+5; i++ {
		p.VolumeUp()
	}
	if got := p.Volume(); got != maxVolumeDB {
		t.Errorf("Volume() after repeated VolumeUp = %d, want clamped to %d", got, maxVolumeDB)
	}
}

// TestEnqueuePlayableTrackSkippedOnMissingFile exercises handleEnqueue and
// Run's playback loop end-to-end without requiring a real audio device:
// the track's path doesn't exist under the library root, so decode.Open
// fails immediately and the track is skipped before ensureDevice is ever
// called (spec.md §4.H's decode-error path).
func TestEnqueuePlayableTrackSkippedOnMissingFile(t *testing.T) {
	idx, trackID := buildTestIndex(t)
	p := New(idx, t.TempDir(), "", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	defer func() {
		p.Shutdown()
		cancel()
	}()

	item, queued := p.Enqueue(trackID)
	if !queued || item.TrackID != trackID {
		t.Fatalf("Enqueue(%d) = (%+v, %v), want queued with that track id", trackID, item, queued)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, queue := p.Queue(); state == StateIdle && len(queue) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("player never returned to Idle after a track whose file doesn't exist")
}

// TestWaitForDoneServicesMailboxConcurrently is a regression test for the
// mailbox-starvation bug: waitForDone backs playTrack's wait for
// trackDone, and a command arriving while that wait is outstanding must
// get a reply immediately rather than being queued up until the wait
// finishes.
func TestWaitForDoneServicesMailboxConcurrently(t *testing.T) {
	p := New(mustEmptyIndex(t), t.TempDir(), "", testLogger())
	st := &playerState{}
	done := make(chan struct{})

	resultCh := make(chan bool, 1)
	go func() { resultCh <- p.waitForDone(context.Background(), st, done) }()

	reply := make(chan interface{}, 1)
	p.cmdCh <- PlayerCommand{kind: cmdVolumeUp, reply: reply}
	select {
	case r := <-reply:
		if got := r.(volumeResult).db; got != maxVolumeDB {
			t.Errorf("VolumeUp while waitForDone was blocked = %d, want %d (clamped)", got, maxVolumeDB)
		}
	case <-time.After(time.Second):
		t.Fatal("command got no reply while waitForDone was blocked on an open done channel")
	}

	close(done)
	select {
	case shutdown := <-resultCh:
		if shutdown {
			t.Error("waitForDone reported shutdown=true, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("waitForDone did not return after done was closed")
	}
}

func TestWaitForDoneHandlesShutdown(t *testing.T) {
	p := New(mustEmptyIndex(t), t.TempDir(), "", testLogger())
	st := &playerState{}
	done := make(chan struct{}) // deliberately never closed

	resultCh := make(chan bool, 1)
	go func() { resultCh <- p.waitForDone(context.Background(), st, done) }()

	p.cmdCh <- PlayerCommand{kind: cmdShutdown}
	select {
	case shutdown := <-resultCh:
		if !shutdown {
			t.Error("waitForDone reported shutdown=false after a Shutdown command, want true")
		}
	case <-time.After(time.Second):
		t.Fatal("waitForDone did not return after a Shutdown command")
	}
}
