// Copyright 2021 Daniel Erat.
// All rights reserved.

package index

import (
	"io"
	"log/slog"
	"testing"

	"github.com/derat/musium/internal/flacmeta"
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

func TestBuild_SingleAlbumTwoTracks(t *testing.T) {
	results := []scan.Result{
		track("01.flac", "Artemis", "Artemis", "Aria", "Intro", 1, 1, 2020),
		track("02.flac", "Artemis", "Artemis", "Aria", "Outro", 1, 2, 2020),
	}
	idx, err := Build(results, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	albums := idx.ListAlbums()
	if len(albums) != 1 {
		t.Fatalf("ListAlbums() = %v; want 1 album", albums)
	}
	view, ok := idx.GetAlbum(albums[0].AlbumID)
	if !ok {
		t.Fatal("GetAlbum failed to find the album it just listed")
	}
	if len(view.Tracks) != 2 {
		t.Fatalf("GetAlbum().Tracks = %v; want 2 tracks", view.Tracks)
	}
	if view.Tracks[0].Title != "Intro" || view.Tracks[1].Title != "Outro" {
		t.Errorf("tracks out of order: %+v", view.Tracks)
	}
}

func TestBuild_EmptyLibrary(t *testing.T) {
	idx, err := Build(nil, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(idx.ListAlbums()) != 0 {
		t.Errorf("ListAlbums() on empty library = %v; want none", idx.ListAlbums())
	}
	res, err := idx.Search("foo")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Artists) != 0 || len(res.Albums) != 0 || len(res.Tracks) != 0 {
		t.Errorf("Search on empty library = %+v; want all empty", res)
	}
}

func TestBuild_TrackCollision(t *testing.T) {
	// Same album/disc/track, different paths: produces the same TrackId.
	results := []scan.Result{
		track("a/01.flac", "X", "X", "Same", "Title", 1, 1, 2020),
		track("b/01.flac", "X", "X", "Same", "Title", 1, 1, 2020),
	}
	if _, err := Build(results, testLogger()); err == nil {
		t.Error("Build unexpectedly succeeded despite duplicate (album,disc,track)")
	}
}

func TestBuild_AlbumInconsistency(t *testing.T) {
	// AlbumId hashes the release date, so files with different years only
	// share an AlbumId through a hash collision. Simulate one by forcing the
	// second file's AlbumId to the first's.
	a, err := preparePending(track("a/01.flac", "X", "X", "Same Album", "A", 1, 1, 2020))
	if err != nil {
		t.Fatal(err)
	}
	b, err := preparePending(track("b/01.flac", "X", "X", "Same Album", "B", 2, 1, 2021))
	if err != nil {
		t.Fatal(err)
	}
	b.AlbumID = a.AlbumID // same AlbumId, different year
	if _, err := checkAlbumConsistency([]pendingTrack{*a, *b}); err == nil {
		t.Error("checkAlbumConsistency unexpectedly succeeded despite inconsistent album metadata")
	}
}

func TestSearch_Unicode(t *testing.T) {
	results := []scan.Result{
		track("01.flac", "Café Tacuba", "Café Tacuba", "Café", "Café", 1, 1, 1994),
	}
	idx, err := Build(results, testLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := idx.Search("cafe")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Tracks) != 1 {
		t.Fatalf("Search(\"cafe\") tracks = %v; want 1 match", res.Tracks)
	}
}

func TestSearch_ZeroTokens(t *testing.T) {
	results := []scan.Result{track("01.flac", "X", "X", "Y", "Z", 1, 1, 2020)}
	idx, err := Build(results, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	res, err := idx.Search("   ")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Artists)+len(res.Albums)+len(res.Tracks) != 0 {
		t.Errorf("Search on whitespace-only query returned %+v; want empty", res)
	}
}

func TestSearch_ANDSemantics(t *testing.T) {
	results := []scan.Result{
		track("01.flac", "Alpha", "Alpha", "Beta Gamma", "Delta", 1, 1, 2020),
		track("02.flac", "Alpha", "Alpha", "Other Album", "Gamma Song", 1, 1, 2020),
	}
	idx, err := Build(results, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	res, err := idx.Search("beta gamma")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Albums) != 1 || res.Albums[0].Title != "Beta Gamma" {
		t.Errorf("Search(\"beta gamma\") albums = %+v; want just \"Beta Gamma\"", res.Albums)
	}
}

func TestGetTrack(t *testing.T) {
	results := []scan.Result{track("dir/01.flac", "X", "X", "Y", "Z", 1, 1, 2020)}
	idx, err := Build(results, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	albums := idx.ListAlbums()
	view, _ := idx.GetAlbum(albums[0].AlbumID)
	ref, ok := idx.GetTrack(view.Tracks[0].TrackID)
	if !ok {
		t.Fatal("GetTrack failed to find track from album view")
	}
	if ref.Path != "dir/01.flac" {
		t.Errorf("GetTrack().Path = %q; want %q", ref.Path, "dir/01.flac")
	}
}

func TestGetTrack_Unknown(t *testing.T) {
	idx, err := Build(nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.GetTrack(12345); ok {
		t.Error("GetTrack unexpectedly found an id in an empty index")
	}
}
