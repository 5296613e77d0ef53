// Copyright 2021 Daniel Erat.
// All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/derat/musium/internal/flacmeta"
	"github.com/derat/musium/internal/index"
	"github.com/derat/musium/internal/player"
	"github.com/derat/musium/internal/scan"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func track(path, artist, albumArtist, album, title string, disc, trackNum, year int) scan.Result {
	return scan.Result{
		Path: path,
		Meta: &flacmeta.Metadata{
			Stream: flacmeta.StreamInfo{SampleRate: 44100, BitsPerSample: 16, Channels: 2, TotalSamples: 44100 * 200},
			Tags: flacmeta.Tags{
				Title: title, Artist: artist, Album: album, AlbumArtist: albumArtist,
				Track: trackNum, Disc: disc, Year: year, Month: 1, Day: 1,
			},
		},
	}
}

// newTestServer builds a Server around a fresh ServeMux (rather than
// http.DefaultServeMux, to keep parallel tests independent) fronted by
// an httptest.Server, plus a live player goroutine that's never
// enqueued against so it stays Idle and never opens an audio device.
func newTestServer(t *testing.T, idx *index.Index) (*httptest.Server, *player.Player) {
	t.Helper()
	mux := http.NewServeMux()

	p := player.New(idx, t.TempDir(), "", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	t.Cleanup(func() {
		p.Shutdown()
		cancel()
	})

	New(mux, idx, t.TempDir(), nil, p, testLogger())
	return httptest.NewServer(mux), p
}

func TestHandleAlbums_Empty(t *testing.T) {
	idx, err := index.Build(nil, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	srv, _ := newTestServer(t, idx)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/albums")
	if err != nil {
		t.Fatalf("GET /albums failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /albums = %v; want 200", resp.StatusCode)
	}
	var albums []albumHeaderJSON
	if err := json.NewDecoder(resp.Body).Decode(&albums); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(albums) != 0 {
		t.Errorf("GET /albums = %v; want empty", albums)
	}
}

func TestHandleAlbum_NotFound(t *testing.T) {
	idx, err := index.Build(nil, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	srv, _ := newTestServer(t, idx)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/album/123")
	if err != nil {
		t.Fatalf("GET /album/123 failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /album/123 = %v; want 404", resp.StatusCode)
	}
}

func TestHandleAlbum_RoundTrip(t *testing.T) {
	idx, err := index.Build([]scan.Result{
		track("01.flac", "Artemis", "Artemis", "Aria", "Intro", 1, 1, 2020),
		track("02.flac", "Artemis", "Artemis", "Aria", "Outro", 1, 2, 2020),
	}, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	srv, _ := newTestServer(t, idx)
	defer srv.Close()

	albums := idx.ListAlbums()
	if len(albums) != 1 {
		t.Fatalf("ListAlbums() = %v; want 1", albums)
	}
	id := idString(albums[0].AlbumID)

	resp, err := http.Get(srv.URL + "/album/" + id)
	if err != nil {
		t.Fatalf("GET /album/%v failed: %v", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /album/%v = %v; want 200", id, resp.StatusCode)
	}
	var view albumViewJSON
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(view.Tracks) != 2 || view.Tracks[0].Title != "Intro" || view.Tracks[1].Title != "Outro" {
		t.Errorf("GET /album/%v tracks = %+v; want [Intro, Outro] in order", id, view.Tracks)
	}
}

func TestHandleSearch(t *testing.T) {
	idx, err := index.Build([]scan.Result{
		track("01.flac", "Artemis", "Artemis", "Café", "Morning", 1, 1, 2020),
	}, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	srv, _ := newTestServer(t, idx)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/search?q=cafe")
	if err != nil {
		t.Fatalf("GET /search failed: %v", err)
	}
	defer resp.Body.Close()
	var res searchResultJSON
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(res.Albums) != 1 {
		t.Errorf("GET /search?q=cafe albums = %v; want 1 unaccented match", res.Albums)
	}
}

func TestHandleQueue_UnknownTrack(t *testing.T) {
	idx, err := index.Build(nil, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	srv, _ := newTestServer(t, idx)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/queue/999", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /queue/999 failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("PUT /queue/999 = %v; want 404", resp.StatusCode)
	}
}

func TestHandleVolume_ClampsUp(t *testing.T) {
	idx, err := index.Build(nil, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	srv, _ := newTestServer(t, idx)
	defer srv.Close()

	var last map[string]int
	for i := 0; i < 3; i++ {
		resp, err := http.Post(srv.URL+"/volume/up", "", nil)
		if err != nil {
			t.Fatalf("POST /volume/up failed: %v", err)
		}
		if err := json.NewDecoder(resp.Body).Decode(&last); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		resp.Body.Close()
	}
	if last["volume_db"] != 0 {
		t.Errorf("volume after three volume_up calls from 0 = %v; want 0 (clamped)", last["volume_db"])
	}
}
