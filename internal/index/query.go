// Copyright 2021 Daniel Erat.
// All rights reserved.

package index

import (
	"sort"
	"strings"

	"github.com/derat/musium/internal/flacmeta"
	"github.com/derat/musium/internal/text"
)

// TrackView is one track as returned by GetAlbum (spec.md §4.E).
type TrackView struct {
	TrackID         uint64
	Disc            uint8
	TrackNum        uint8
	Title           string
	Artist          string
	DurationSeconds uint16
}

// AlbumHeader is an album's listing-level fields, used by ListAlbums,
// GetArtist, and search results (spec.md §4.E).
type AlbumHeader struct {
	AlbumID     uint64
	ArtistID    uint64
	Title       string
	Artist      string
	ReleaseDate Date
}

// AlbumView is the full view returned by GetAlbum: a header plus its
// ordered tracks (spec.md §4.E).
type AlbumView struct {
	AlbumHeader
	Tracks []TrackView
}

// ArtistView is the full view returned by GetArtist: the artist's
// albums in chronological ascending order of original release date,
// ties broken by album title (spec.md §4.E, §8 invariant 3).
type ArtistView struct {
	ArtistID uint64
	Name     string
	Albums   []AlbumHeader
}

// TrackRef is the file-path/stream-info view returned by GetTrack
// (spec.md §4.E), used by the control surface to serve track bytes.
type TrackRef struct {
	TrackID uint64
	Path    string
	Stream  flacmeta.StreamInfo
}

// ArtistHeader is an artist's listing-level fields in a SearchResult.
type ArtistHeader struct {
	ArtistID uint64
	Name     string
}

// TrackHeader is a track's listing-level fields in a SearchResult.
type TrackHeader struct {
	TrackID  uint64
	AlbumID  uint64
	Title    string
	Artist   string
}

// SearchResult holds up to 25 matches per entity kind (spec.md §4.E).
type SearchResult struct {
	Artists []ArtistHeader
	Albums  []AlbumHeader
	Tracks  []TrackHeader
}

const maxSearchResultsPerKind = 25

// findPos binary-searches idx, which must be sorted by ID, for id and
// returns its position in the corresponding primary array.
func findPos(idx []idPos, id uint64) (uint32, bool) {
	i := sort.Search(len(idx), func(i int) bool { return idx[i].ID >= id })
	if i < len(idx) && idx[i].ID == id {
		return idx[i].Pos, true
	}
	return 0, false
}

// GetAlbum returns the album view for albumID, or (nil, false) if no such
// album exists (spec.md §4.E).
func (idx *Index) GetAlbum(albumID uint64) (*AlbumView, bool) {
	pos, ok := findPos(idx.albumByID, albumID)
	if !ok {
		return nil, false
	}
	al := idx.albums[pos]
	view := &AlbumView{AlbumHeader: idx.albumHeader(al)}
	for i := al.FirstTrackIndex; int(i) < len(idx.tracks) && idx.tracks[i].AlbumID == al.AlbumID; i++ {
		t := idx.tracks[i]
		view.Tracks = append(view.Tracks, TrackView{
			TrackID:         t.TrackID,
			Disc:            t.Disc,
			TrackNum:        t.TrackNum,
			Title:           idx.str(t.Title),
			Artist:          idx.str(t.Artist),
			DurationSeconds: t.DurationSeconds,
		})
	}
	return view, true
}

// GetArtist returns the artist view for artistID, or (nil, false) if no
// such artist exists (spec.md §4.E).
func (idx *Index) GetArtist(artistID uint64) (*ArtistView, bool) {
	pos, ok := findPos(idx.artistByID, artistID)
	if !ok {
		return nil, false
	}
	ar := idx.artists[pos]
	view := &ArtistView{ArtistID: ar.ArtistID, Name: idx.str(ar.Name)}
	for i := ar.FirstAlbumIndex; int(i) < len(idx.albums) && idx.albums[i].ArtistID == ar.ArtistID; i++ {
		view.Albums = append(view.Albums, idx.albumHeader(idx.albums[i]))
	}
	return view, true
}

// ListAlbums returns every album header in canonical album order
// (spec.md §3, §4.E).
func (idx *Index) ListAlbums() []AlbumHeader {
	out := make([]AlbumHeader, len(idx.albums))
	for i, al := range idx.albums {
		out[i] = idx.albumHeader(al)
	}
	return out
}

// GetTrack returns the file path and stream info for trackID, or
// (nil, false) if no such track exists (spec.md §4.E).
func (idx *Index) GetTrack(trackID uint64) (*TrackRef, bool) {
	pos, ok := findPos(idx.trackByID, trackID)
	if !ok {
		return nil, false
	}
	t := idx.tracks[pos]
	return &TrackRef{TrackID: t.TrackID, Path: idx.str(t.Filename), Stream: t.Stream}, true
}

func (idx *Index) albumHeader(al albumRecord) AlbumHeader {
	return AlbumHeader{
		AlbumID:     al.AlbumID,
		ArtistID:    al.ArtistID,
		Title:       idx.str(al.Title),
		Artist:      idx.str(al.Artist),
		ReleaseDate: al.ReleaseDate,
	}
}

// entityKey uniquely identifies a search candidate: its kind and id.
type entityKey struct {
	Kind EntityKind
	ID   uint64
}

// tokenMatch is one token's best match against a single entity: whether
// any occurrence was an exact (whole-token) match, and the earliest
// word position where the token matched (spec.md §4.E ranking rule 2).
type tokenMatch struct {
	exact     bool
	wordIndex int
}

// Search normalizes query, splits it into tokens, and returns up to 25
// matches per entity kind using AND semantics across tokens (spec.md
// §4.E). A query with zero tokens returns empty results.
func (idx *Index) Search(query string) (SearchResult, error) {
	norm, err := text.Normalize(query)
	if err != nil {
		return SearchResult{}, err
	}
	tokens := text.Tokens(norm)
	if len(tokens) == 0 {
		return SearchResult{}, nil
	}

	var sets []map[entityKey]tokenMatch
	for _, tok := range tokens {
		sets = append(sets, idx.matchToken(tok))
	}

	// AND-merge each token's per-kind id sets via sorted-array
	// intersection (spec.md §4.E: "intersect the entity-id sets across
	// tokens"), then look up ranking data for the surviving ids.
	candArtists, candAlbums, candTracks := idsByKind(sets[0])
	for _, set := range sets[1:] {
		a, b, c := idsByKind(set)
		candArtists = intersectSortedIDs(candArtists, a)
		candAlbums = intersectSortedIDs(candAlbums, b)
		candTracks = intersectSortedIDs(candTracks, c)
	}

	combined := make(map[entityKey]struct {
		allExact  bool
		wordIndex int
	})
	addCandidates := func(kind EntityKind, ids []uint64) {
		for _, id := range ids {
			key := entityKey{Kind: kind, ID: id}
			allExact := true
			total := 0
			for _, set := range sets {
				m := set[key] // guaranteed present: id survived intersection across all sets
				allExact = allExact && m.exact
				total += m.wordIndex
			}
			combined[key] = struct {
				allExact  bool
				wordIndex int
			}{allExact, total}
		}
	}
	addCandidates(KindArtist, candArtists)
	addCandidates(KindAlbum, candAlbums)
	addCandidates(KindTrack, candTracks)

	type ranked struct {
		key       entityKey
		allExact  bool
		wordIndex int
		canon     uint32 // canonical sort-order position, for the final tie-break
	}
	var rankedEntries []ranked
	for key, v := range combined {
		var canon uint32
		switch key.Kind {
		case KindArtist:
			canon, _ = findPos(idx.artistByID, key.ID)
		case KindAlbum:
			canon, _ = findPos(idx.albumByID, key.ID)
		case KindTrack:
			canon, _ = findPos(idx.trackByID, key.ID)
		}
		rankedEntries = append(rankedEntries, ranked{key, v.allExact, v.wordIndex, canon})
	}
	sort.Slice(rankedEntries, func(i, j int) bool {
		a, b := rankedEntries[i], rankedEntries[j]
		if a.allExact != b.allExact {
			return a.allExact // exact matches rank first
		}
		if a.wordIndex != b.wordIndex {
			return a.wordIndex < b.wordIndex
		}
		return a.canon < b.canon
	})

	var res SearchResult
	for _, r := range rankedEntries {
		switch r.key.Kind {
		case KindArtist:
			if len(res.Artists) >= maxSearchResultsPerKind {
				continue
			}
			pos, _ := findPos(idx.artistByID, r.key.ID)
			ar := idx.artists[pos]
			res.Artists = append(res.Artists, ArtistHeader{ArtistID: ar.ArtistID, Name: idx.str(ar.Name)})
		case KindAlbum:
			if len(res.Albums) >= maxSearchResultsPerKind {
				continue
			}
			pos, _ := findPos(idx.albumByID, r.key.ID)
			res.Albums = append(res.Albums, idx.albumHeader(idx.albums[pos]))
		case KindTrack:
			if len(res.Tracks) >= maxSearchResultsPerKind {
				continue
			}
			pos, _ := findPos(idx.trackByID, r.key.ID)
			t := idx.tracks[pos]
			res.Tracks = append(res.Tracks, TrackHeader{
				TrackID: t.TrackID, AlbumID: t.AlbumID, Title: idx.str(t.Title), Artist: idx.str(t.Artist),
			})
		}
	}
	return res, nil
}

// idsByKind splits a token's entity-match set into three sorted,
// deduplicated id slices, one per entity kind, for use with
// intersectSortedIDs.
func idsByKind(set map[entityKey]tokenMatch) (artists, albums, tracks []uint64) {
	for k := range set {
		switch k.Kind {
		case KindArtist:
			artists = append(artists, k.ID)
		case KindAlbum:
			albums = append(albums, k.ID)
		case KindTrack:
			tracks = append(tracks, k.ID)
		}
	}
	sort.Slice(artists, func(i, j int) bool { return artists[i] < artists[j] })
	sort.Slice(albums, func(i, j int) bool { return albums[i] < albums[j] })
	sort.Slice(tracks, func(i, j int) bool { return tracks[i] < tracks[j] })
	return
}

// matchToken finds every entity whose name contains tok as a word
// prefix, by binary-searching the search array (sorted lexicographically
// by word) for tok's matching range.
func (idx *Index) matchToken(tok string) map[entityKey]tokenMatch {
	lower := sort.Search(len(idx.search), func(i int) bool { return idx.str(idx.search[i].Word) >= tok })
	out := make(map[entityKey]tokenMatch)
	for i := lower; i < len(idx.search); i++ {
		e := idx.search[i]
		w := idx.str(e.Word)
		if !strings.HasPrefix(w, tok) {
			break
		}
		key := entityKey{Kind: e.Kind, ID: e.ID}
		exact := w == tok
		wordIndex := int(e.WordIndex)
		if m, ok := out[key]; ok {
			if wordIndex < m.wordIndex {
				m.wordIndex = wordIndex
			}
			m.exact = m.exact || exact
			out[key] = m
		} else {
			out[key] = tokenMatch{exact: exact, wordIndex: wordIndex}
		}
	}
	return out
}
