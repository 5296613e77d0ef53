// Copyright 2021 Daniel Erat.
// All rights reserved.

package server

import (
	"github.com/derat/musium/internal/index"
	"github.com/derat/musium/internal/player"
)

// Every JSON type below renders ids as decimal strings (spec.md §6:
// "All ids in JSON are decimal strings, to avoid 53-bit integer loss in
// web clients") rather than embedding the index/player view structs
// directly, which carry ids as uint64.

// dateJSON is a possibly-partial release date as sent to clients.
type dateJSON struct {
	Year  uint16 `json:"year"`
	Month uint8  `json:"month,omitempty"`
	Day   uint8  `json:"day,omitempty"`
}

func toDateJSON(d index.Date) dateJSON {
	return dateJSON{Year: d.Year, Month: d.Month, Day: d.Day}
}

type albumHeaderJSON struct {
	ID          string   `json:"id"`
	ArtistID    string   `json:"artist_id"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	ReleaseDate dateJSON `json:"release_date"`
}

func toAlbumHeaderJSON(h index.AlbumHeader) albumHeaderJSON {
	return albumHeaderJSON{
		ID:          idString(h.AlbumID),
		ArtistID:    idString(h.ArtistID),
		Title:       h.Title,
		Artist:      h.Artist,
		ReleaseDate: toDateJSON(h.ReleaseDate),
	}
}

func albumHeadersJSON(hs []index.AlbumHeader) []albumHeaderJSON {
	out := make([]albumHeaderJSON, len(hs))
	for i, h := range hs {
		out[i] = toAlbumHeaderJSON(h)
	}
	return out
}

type trackViewJSON struct {
	ID              string `json:"id"`
	Disc            uint8  `json:"disc"`
	TrackNum        uint8  `json:"track"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	DurationSeconds uint16 `json:"duration_seconds"`
}

type albumViewJSON struct {
	albumHeaderJSON
	Tracks []trackViewJSON `json:"tracks"`
}

func toAlbumView(v *index.AlbumView) albumViewJSON {
	out := albumViewJSON{albumHeaderJSON: toAlbumHeaderJSON(v.AlbumHeader)}
	out.Tracks = make([]trackViewJSON, len(v.Tracks))
	for i, t := range v.Tracks {
		out.Tracks[i] = trackViewJSON{
			ID: idString(t.TrackID), Disc: t.Disc, TrackNum: t.TrackNum,
			Title: t.Title, Artist: t.Artist, DurationSeconds: t.DurationSeconds,
		}
	}
	return out
}

type artistViewJSON struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Albums []albumHeaderJSON `json:"albums"`
}

func toArtistView(v *index.ArtistView) artistViewJSON {
	out := artistViewJSON{ID: idString(v.ArtistID), Name: v.Name}
	out.Albums = albumHeadersJSON(v.Albums)
	return out
}

type artistHeaderJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type trackHeaderJSON struct {
	ID      string `json:"id"`
	AlbumID string `json:"album_id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
}

type searchResultJSON struct {
	Artists []artistHeaderJSON `json:"artists"`
	Albums  []albumHeaderJSON  `json:"albums"`
	Tracks  []trackHeaderJSON  `json:"tracks"`
}

func toSearchResultJSON(r index.SearchResult) searchResultJSON {
	out := searchResultJSON{
		Artists: make([]artistHeaderJSON, len(r.Artists)),
		Albums:  albumHeadersJSON(r.Albums),
		Tracks:  make([]trackHeaderJSON, len(r.Tracks)),
	}
	for i, a := range r.Artists {
		out.Artists[i] = artistHeaderJSON{ID: idString(a.ArtistID), Name: a.Name}
	}
	for i, t := range r.Tracks {
		out.Tracks[i] = trackHeaderJSON{ID: idString(t.TrackID), AlbumID: idString(t.AlbumID), Title: t.Title, Artist: t.Artist}
	}
	return out
}

type queueItemJSON struct {
	QueueID string `json:"queue_id"`
	TrackID string `json:"track_id"`
}

func queueItemsJSON(items []player.QueuedTrack) []queueItemJSON {
	out := make([]queueItemJSON, len(items))
	for i, it := range items {
		out[i] = queueItemJSON{QueueID: idString(it.QueueID), TrackID: idString(it.TrackID)}
	}
	return out
}
