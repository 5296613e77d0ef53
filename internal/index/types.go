// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package index implements Musium's frozen, read-only library index
// (spec.md §3, §4.D, §4.E): a sorted, structure-of-arrays representation
// built once per daemon start and never mutated afterward. There's no
// direct teacher equivalent for this package — the teacher stores songs
// in App Engine Datastore rather than an in-process index — so its shape
// follows spec.md directly, while its sorted-array set operations reuse
// the teacher's server/query/query.go algorithms (see DESIGN.md).
package index

import "github.com/derat/musium/internal/flacmeta"

// StringRef references a slice of the index's interned string buffer.
type StringRef struct {
	Offset uint32
	Length uint32
}

// EntityKind tags which kind of entity a search entry or ranked result
// refers to.
type EntityKind uint8

const (
	KindArtist EntityKind = iota
	KindAlbum
	KindTrack
)

// Date is a possibly-partial release date (spec.md §3: month/day may be 0).
type Date struct {
	Year  uint16
	Month uint8
	Day   uint8
}

// trackRecord is the fixed-width per-track record (spec.md §3).
type trackRecord struct {
	TrackID         uint64
	AlbumID         uint64
	Disc            uint8
	TrackNum        uint8
	DurationSeconds uint16
	Title           StringRef
	Artist          StringRef
	Filename        StringRef
	Stream          flacmeta.StreamInfo
}

// albumRecord is the fixed-width per-album record (spec.md §3).
type albumRecord struct {
	AlbumID         uint64
	ArtistID        uint64
	Title           StringRef
	Artist          StringRef
	ReleaseDate     Date
	FirstTrackIndex uint32
	HasLoudness     bool
	Loudness        int16 // EBU R128 integrated loudness, ×10 dB; valid iff HasLoudness
}

// artistRecord is the per-artist record (spec.md §3).
type artistRecord struct {
	ArtistID        uint64
	Name            StringRef
	NameForSort     StringRef
	FirstAlbumIndex uint32
}

// searchEntry is one row of the search index (spec.md §3): a normalized
// token paired with the entity it was derived from and that entity's
// position within its own name, used for ranking (spec.md §4.E).
type searchEntry struct {
	Word      StringRef
	Kind      EntityKind
	ID        uint64
	WordIndex uint16 // token's 0-based position within the entity's name
}

// idPos maps an entity id to its position in the corresponding primary
// array, sorted by ID for binary search. Spec.md §9 explicitly rejects
// hash tables in favor of sorted arrays, so id->position lookups use
// this rather than a map.
type idPos struct {
	ID  uint64
	Pos uint32
}

// Index is Musium's frozen, read-only library index (spec.md §3). It's
// built once per daemon start by Build and never mutated afterward;
// every method on Index is safe for concurrent read-only use without
// locking (spec.md §5).
type Index struct {
	strings []byte // interned string buffer; StringRef indexes into this

	tracks  []trackRecord  // sorted by (album_id, disc_number, track_number)
	albums  []albumRecord  // sorted by (artist_sortkey, release_date, title_sortkey)
	artists []artistRecord // sorted by name_for_sort

	trackByID  []idPos // tracks, sorted by TrackID
	albumByID  []idPos // albums, sorted by AlbumID
	artistByID []idPos // artists, sorted by ArtistID

	search []searchEntry // sorted by (word, kind, id)
}

// NumTracks, NumAlbums, and NumArtists report the size of the frozen
// index, mostly useful for logging and tests.
func (idx *Index) NumTracks() int  { return len(idx.tracks) }
func (idx *Index) NumAlbums() int  { return len(idx.albums) }
func (idx *Index) NumArtists() int { return len(idx.artists) }

// str resolves a StringRef against the interned string buffer.
func (idx *Index) str(ref StringRef) string {
	return string(idx.strings[ref.Offset : ref.Offset+ref.Length])
}
