// Copyright 2021 Daniel Erat.
// All rights reserved.

package index

import (
	"sort"

	"github.com/derat/musium/internal/text"
)

// bufString decodes a StringRef against b's in-progress buffer. Safe to
// call only during Build, before the buffer is frozen into an Index.
func (b *builder) bufString(ref StringRef) string {
	return string(b.buf[ref.Offset : ref.Offset+ref.Length])
}

// buildSearchArray builds the search index (spec.md §3, §4.D item 5):
// one entry per normalized token of every artist name, album title, and
// track title, sorted by (token, kind, id).
func buildSearchArray(tracks []trackRecord, albums []albumRecord, artists []artistRecord, b *builder) ([]searchEntry, error) {
	var entries []searchEntry

	add := func(name string, kind EntityKind, id uint64) error {
		norm, err := text.Normalize(name)
		if err != nil {
			return err
		}
		for i, tok := range text.Tokens(norm) {
			entries = append(entries, searchEntry{
				Word:      b.intern(tok),
				Kind:      kind,
				ID:        id,
				WordIndex: uint16(i),
			})
		}
		return nil
	}

	for _, a := range artists {
		if err := add(b.bufString(a.Name), KindArtist, a.ArtistID); err != nil {
			return nil, err
		}
	}
	for _, al := range albums {
		if err := add(b.bufString(al.Title), KindAlbum, al.AlbumID); err != nil {
			return nil, err
		}
	}
	for _, tr := range tracks {
		if err := add(b.bufString(tr.Title), KindTrack, tr.TrackID); err != nil {
			return nil, err
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		a, c := entries[i], entries[j]
		wa, wc := b.bufString(a.Word), b.bufString(c.Word)
		if wa != wc {
			return wa < wc
		}
		if a.Kind != c.Kind {
			return a.Kind < c.Kind
		}
		return a.ID < c.ID
	})
	return entries, nil
}
