// Copyright 2021 Daniel Erat.
// All rights reserved.

package index

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/derat/musium/internal/flacmeta"
	"github.com/derat/musium/internal/scan"
	"github.com/derat/musium/internal/text"
)

// trackIDAlbumBits is k in spec.md §3's "upper bits of TrackId equal
// AlbumId >> k": the number of low bits of AlbumId that are replaced by
// hash-derived entropy to form TrackId, so that TrackId's top 48 bits
// always equal AlbumId's top 48 bits and tracks of an album cluster
// together even when sorted purely by numeric TrackId.
const trackIDAlbumBits = 16

// hash64 is Musium's single fixed 64-bit non-cryptographic hash function
// (spec.md §3: "Hash must be a fixed 64-bit non-cryptographic function").
// github.com/cespare/xxhash/v2 is used rather than hash/fnv — see
// SPEC_FULL.md §4.D and DESIGN.md for why a named third-party hash
// library was preferred.
func hash64(s string) uint64 {
	return xxhash.Sum64String(s)
}

func albumHashKey(artistSortKey, titleSortKey string, date Date) string {
	return artistSortKey + "\x00" + titleSortKey + "\x00" +
		strconv.Itoa(int(date.Year)) + "-" + strconv.Itoa(int(date.Month)) + "-" + strconv.Itoa(int(date.Day))
}

func artistHashKey(artistSortKey string) string { return artistSortKey }

func computeAlbumID(artistSortKey, titleSortKey string, date Date) uint64 {
	return hash64(albumHashKey(artistSortKey, titleSortKey, date))
}

func computeArtistID(artistSortKey string) uint64 {
	return hash64(artistHashKey(artistSortKey))
}

func computeTrackID(albumID uint64, disc, track uint8) uint64 {
	key := fmt.Sprintf("%016x\x00%d\x00%d", albumID, disc, track)
	h := hash64(key)
	const mask = (uint64(1) << trackIDAlbumBits) - 1
	upper := albumID &^ mask
	lower := h & mask
	return upper | lower
}

// CollisionError reports a fatal id collision detected at build time
// (spec.md §4.D item 2): two distinct files mapping to the same id.
type CollisionError struct {
	Kind        string // "track", "album", or "artist"
	ID          uint64
	FirstPath   string
	SecondPath  string
	Description string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("%v id collision (id=%#x) between %q and %q: %v",
		e.Kind, e.ID, e.FirstPath, e.SecondPath, e.Description)
}

// pendingTrack is a scanned file with its computed ids and sort keys,
// before sorting and string interning.
type pendingTrack struct {
	scan.Result
	TrackID        uint64
	AlbumID        uint64
	ArtistID       uint64
	ArtistSortKey  string
	TitleSortKey   string
	ReleaseDate    Date
	ArtistDisplay  string // albumartist tag, unnormalized
	AlbumDisplay   string // album tag, unnormalized
	TrackArtist    string // artist tag, unnormalized (may differ from album artist)
	TrackTitle     string // title tag, unnormalized
}

// Build consumes a scanner's results and produces a frozen Index
// (spec.md §4.D). It returns a *CollisionError if two distinct
// files map to the same TrackId/AlbumId/ArtistId, or if two files
// sharing an AlbumId disagree on album title, album artist, or release
// date — both fatal per spec.md §4.D and §7.
func Build(results []scan.Result, logger *slog.Logger) (*Index, error) {
	pending := make([]pendingTrack, 0, len(results))
	for _, r := range results {
		p, err := preparePending(r)
		if err != nil {
			return nil, fmt.Errorf("computing ids for %v: %w", r.Path, err)
		}
		pending = append(pending, *p)
	}

	if err := checkTrackCollisions(pending); err != nil {
		return nil, err
	}
	albumMeta, err := checkAlbumConsistency(pending)
	if err != nil {
		return nil, err
	}
	if err := checkArtistConsistency(pending); err != nil {
		return nil, err
	}

	b := newBuilder()
	return b.build(pending, albumMeta, logger)
}

func preparePending(r scan.Result) (*pendingTrack, error) {
	t := r.Meta.Tags
	artistSortKey, err := text.SortKey(t.AlbumArtist)
	if err != nil {
		return nil, err
	}
	titleSortKey, err := text.SortKey(t.Album)
	if err != nil {
		return nil, err
	}
	date := Date{Year: uint16(t.Year), Month: uint8(t.Month), Day: uint8(t.Day)}
	albumID := computeAlbumID(artistSortKey, titleSortKey, date)
	artistID := computeArtistID(artistSortKey)
	trackID := computeTrackID(albumID, uint8(t.Disc), uint8(t.Track))

	return &pendingTrack{
		Result:        r,
		TrackID:       trackID,
		AlbumID:       albumID,
		ArtistID:      artistID,
		ArtistSortKey: artistSortKey,
		TitleSortKey:  titleSortKey,
		ReleaseDate:   date,
		ArtistDisplay: t.AlbumArtist,
		AlbumDisplay:  t.Album,
		TrackArtist:   t.Artist,
		TrackTitle:    t.Title,
	}, nil
}

func checkTrackCollisions(pending []pendingTrack) error {
	seen := make(map[uint64]string, len(pending))
	for _, p := range pending {
		if first, ok := seen[p.TrackID]; ok && first != p.Path {
			return &CollisionError{
				Kind: "track", ID: p.TrackID, FirstPath: first, SecondPath: p.Path,
				Description: "two distinct files produced the same TrackId",
			}
		}
		seen[p.TrackID] = p.Path
	}
	return nil
}

// albumMetaKey is the agreed-upon metadata for one AlbumId, checked for
// consistency across every track claiming that album (spec.md §4.D item 3).
type albumMetaKey struct {
	ArtistID      uint64
	ArtistSortKey string
	TitleSortKey  string
	ArtistDisplay string
	AlbumDisplay  string
	ReleaseDate   Date
	FirstPath     string
}

func checkAlbumConsistency(pending []pendingTrack) (map[uint64]albumMetaKey, error) {
	seen := make(map[uint64]albumMetaKey)
	for _, p := range pending {
		meta, ok := seen[p.AlbumID]
		if !ok {
			seen[p.AlbumID] = albumMetaKey{
				ArtistID: p.ArtistID, ArtistSortKey: p.ArtistSortKey, TitleSortKey: p.TitleSortKey,
				ArtistDisplay: p.ArtistDisplay, AlbumDisplay: p.AlbumDisplay,
				ReleaseDate: p.ReleaseDate, FirstPath: p.Path,
			}
			continue
		}
		if meta.ArtistSortKey != p.ArtistSortKey || meta.TitleSortKey != p.TitleSortKey || meta.ReleaseDate != p.ReleaseDate {
			return nil, &CollisionError{
				Kind: "album", ID: p.AlbumID, FirstPath: meta.FirstPath, SecondPath: p.Path,
				Description: "files sharing an AlbumId disagree on album title, artist, or release date",
			}
		}
	}
	return seen, nil
}

func checkArtistConsistency(pending []pendingTrack) error {
	seen := make(map[uint64]struct {
		sortKey string
		path    string
	})
	for _, p := range pending {
		prev, ok := seen[p.ArtistID]
		if !ok {
			seen[p.ArtistID] = struct {
				sortKey string
				path    string
			}{p.ArtistSortKey, p.Path}
			continue
		}
		if prev.sortKey != p.ArtistSortKey {
			return &CollisionError{
				Kind: "artist", ID: p.ArtistID, FirstPath: prev.path, SecondPath: p.Path,
				Description: "two distinct artist names hashed to the same ArtistId",
			}
		}
	}
	return nil
}

// builder accumulates the interned string buffer while sorting and
// freezing the rest of the index (spec.md §4.D items 4-6).
type builder struct {
	buf     []byte
	interns map[string]StringRef
}

func newBuilder() *builder {
	return &builder{interns: make(map[string]StringRef)}
}

// intern appends s to the string buffer if not already present and
// returns a StringRef to it. Once the index is frozen no further
// mutation is permitted (spec.md §4.D item 6); intern is only ever
// called during Build.
func (b *builder) intern(s string) StringRef {
	if ref, ok := b.interns[s]; ok {
		return ref
	}
	ref := StringRef{Offset: uint32(len(b.buf)), Length: uint32(len(s))}
	b.buf = append(b.buf, s...)
	b.interns[s] = ref
	return ref
}

func (b *builder) build(pending []pendingTrack, albumMeta map[uint64]albumMetaKey, logger *slog.Logger) (*Index, error) {
	// Sort tracks by (album_id, disc_number, track_number) (spec.md §3).
	sort.SliceStable(pending, func(i, j int) bool {
		a, c := pending[i], pending[j]
		if a.AlbumID != c.AlbumID {
			return a.AlbumID < c.AlbumID
		}
		ta, tc := a.Meta.Tags, c.Meta.Tags
		if ta.Disc != tc.Disc {
			return ta.Disc < tc.Disc
		}
		return ta.Track < tc.Track
	})

	tracks := make([]trackRecord, len(pending))
	for i, p := range pending {
		t := p.Meta.Tags
		tracks[i] = trackRecord{
			TrackID:         p.TrackID,
			AlbumID:         p.AlbumID,
			Disc:            uint8(t.Disc),
			TrackNum:        uint8(t.Track),
			DurationSeconds: durationSeconds(p.Meta.Stream),
			Title:           b.intern(p.TrackTitle),
			Artist:          b.intern(firstNonEmpty(p.TrackArtist, p.ArtistDisplay)),
			Filename:        b.intern(p.Path),
			Stream:          p.Meta.Stream,
		}
	}

	// Build distinct album list, sorted by (artist_sortkey, release_date, title_sortkey).
	type albumBuild struct {
		id   uint64
		meta albumMetaKey
	}
	albumIDs := make([]uint64, 0, len(albumMeta))
	for id := range albumMeta {
		albumIDs = append(albumIDs, id)
	}
	albumBuilds := make([]albumBuild, len(albumIDs))
	for i, id := range albumIDs {
		albumBuilds[i] = albumBuild{id: id, meta: albumMeta[id]}
	}
	sort.Slice(albumBuilds, func(i, j int) bool {
		a, c := albumBuilds[i].meta, albumBuilds[j].meta
		if a.ArtistSortKey != c.ArtistSortKey {
			return a.ArtistSortKey < c.ArtistSortKey
		}
		if a.ReleaseDate != c.ReleaseDate {
			return dateLess(a.ReleaseDate, c.ReleaseDate)
		}
		return a.TitleSortKey < c.TitleSortKey
	})

	// first_track_index: position of the first track (in the already
	// album/disc/track-sorted tracks array) belonging to each album.
	firstTrackOf := make(map[uint64]uint32, len(albumBuilds))
	for i, tr := range tracks {
		if _, ok := firstTrackOf[tr.AlbumID]; !ok {
			firstTrackOf[tr.AlbumID] = uint32(i)
		}
	}

	albums := make([]albumRecord, len(albumBuilds))
	for i, ab := range albumBuilds {
		albums[i] = albumRecord{
			AlbumID:         ab.id,
			ArtistID:        ab.meta.ArtistID,
			Title:           b.intern(ab.meta.AlbumDisplay),
			Artist:          b.intern(ab.meta.ArtistDisplay),
			ReleaseDate:     ab.meta.ReleaseDate,
			FirstTrackIndex: firstTrackOf[ab.id],
		}
	}

	// Distinct artists, sorted by name_for_sort.
	type artistBuild struct {
		id      uint64
		sortKey string
		name    string
	}
	artistSeen := make(map[uint64]artistBuild)
	for _, ab := range albumBuilds {
		if _, ok := artistSeen[ab.meta.ArtistID]; !ok {
			artistSeen[ab.meta.ArtistID] = artistBuild{
				id: ab.meta.ArtistID, sortKey: ab.meta.ArtistSortKey, name: ab.meta.ArtistDisplay,
			}
		}
	}
	artistBuilds := make([]artistBuild, 0, len(artistSeen))
	for _, ab := range artistSeen {
		artistBuilds = append(artistBuilds, ab)
	}
	sort.Slice(artistBuilds, func(i, j int) bool { return artistBuilds[i].sortKey < artistBuilds[j].sortKey })

	firstAlbumOf := make(map[uint64]uint32, len(artistBuilds))
	for i, al := range albums {
		if _, ok := firstAlbumOf[al.ArtistID]; !ok {
			firstAlbumOf[al.ArtistID] = uint32(i)
		}
	}

	artists := make([]artistRecord, len(artistBuilds))
	for i, ab := range artistBuilds {
		artists[i] = artistRecord{
			ArtistID:        ab.id,
			Name:            b.intern(ab.name),
			NameForSort:     b.intern(ab.sortKey),
			FirstAlbumIndex: firstAlbumOf[ab.id],
		}
	}

	search, err := buildSearchArray(tracks, albums, artists, b)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		strings: b.buf,
		tracks:  tracks,
		albums:  albums,
		artists: artists,
		search:  search,
	}
	idx.trackByID = buildIDIndex(len(tracks), func(i int) uint64 { return tracks[i].TrackID })
	idx.albumByID = buildIDIndex(len(albums), func(i int) uint64 { return albums[i].AlbumID })
	idx.artistByID = buildIDIndex(len(artists), func(i int) uint64 { return artists[i].ArtistID })

	logger.Info("built index", "tracks", len(tracks), "albums", len(albums), "artists", len(artists))
	return idx, nil
}

func buildIDIndex(n int, idAt func(int) uint64) []idPos {
	out := make([]idPos, n)
	for i := 0; i < n; i++ {
		out[i] = idPos{ID: idAt(i), Pos: uint32(i)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func dateLess(a, c Date) bool {
	if a.Year != c.Year {
		return a.Year < c.Year
	}
	if a.Month != c.Month {
		return a.Month < c.Month
	}
	return a.Day < c.Day
}

func durationSeconds(si flacmeta.StreamInfo) uint16 {
	if si.SampleRate == 0 {
		return 0
	}
	secs := si.TotalSamples / uint64(si.SampleRate)
	if secs > 0xffff {
		return 0xffff
	}
	return uint16(secs)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
