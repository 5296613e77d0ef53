// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package flacmeta reads a FLAC file's stream properties and tag
// dictionary (spec.md §4.B). A file is accepted only if every required
// tag is present and parseable; otherwise it's rejected as a whole.
package flacmeta

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	flac "github.com/go-flac/go-flac"
	"github.com/go-flac/flacvorbis"
)

// StreamInfo holds the properties decoded from a FLAC file's STREAMINFO
// metadata block (spec.md §4.B).
type StreamInfo struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
	TotalSamples  uint64
}

// Tags holds the subset of a FLAC file's VORBIS_COMMENT tags that Musium
// requires, already validated and normalized to the field types the
// index builder needs.
type Tags struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Track       int
	Disc        int // defaults to 1 if the discnumber tag is absent
	Year        int
	Month       int // 0 if unknown
	Day         int // 0 if unknown
}

// Failure kinds, per spec.md §4.B. An error returned by Read either wraps
// one of these (detectable via errors.Is) or is a *MissingTagError or
// *MalformedTagError.
var (
	ErrUnsupportedFormat = errors.New("flacmeta: unsupported format")
	ErrIO                = errors.New("flacmeta: io error")
)

// MissingTagError is returned when a required tag key is absent.
type MissingTagError struct{ Key string }

func (e *MissingTagError) Error() string { return fmt.Sprintf("flacmeta: missing tag %q", e.Key) }

// MalformedTagError is returned when a required tag's value can't be parsed.
type MalformedTagError struct{ Key, Value string }

func (e *MalformedTagError) Error() string {
	return fmt.Sprintf("flacmeta: malformed tag %q: %q", e.Key, e.Value)
}

// Metadata is the combined result of reading a FLAC file: its stream
// properties and its validated tag dictionary.
type Metadata struct {
	Stream StreamInfo
	Tags   Tags
}

// Read opens the FLAC file at path and returns its stream info and tags.
// It never returns a partially populated Metadata: either every required
// tag (spec.md §4.B) is present and parseable, or an error is returned.
func Read(path string) (*Metadata, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	var si *StreamInfo
	var rawTags map[string][]string
	for _, block := range f.Meta {
		switch block.Type {
		case flac.StreamInfo:
			si, err = parseStreamInfo(block.Data)
			if err != nil {
				return nil, err
			}
		case flac.VorbisComment:
			vc, err := flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				return nil, fmt.Errorf("%w: parsing vorbis comment: %v", ErrUnsupportedFormat, err)
			}
			rawTags = vorbisTagMap(vc.Comments)
		}
	}
	if si == nil {
		return nil, fmt.Errorf("%w: no STREAMINFO block", ErrUnsupportedFormat)
	}
	if rawTags == nil {
		return nil, fmt.Errorf("%w: no VORBIS_COMMENT block", ErrUnsupportedFormat)
	}

	tags, err := parseTags(rawTags)
	if err != nil {
		return nil, err
	}
	return &Metadata{Stream: *si, Tags: *tags}, nil
}

// vorbisTagMap lowercases and indexes "KEY=VALUE" comments by key, the
// form required/produced by the Vorbis comment spec (keys are
// case-insensitive).
func vorbisTagMap(comments []string) map[string][]string {
	m := make(map[string][]string)
	for _, c := range comments {
		i := strings.IndexByte(c, '=')
		if i < 0 {
			continue
		}
		key := strings.ToLower(c[:i])
		m[key] = append(m[key], c[i+1:])
	}
	return m
}

func firstTag(m map[string][]string, key string) (string, bool) {
	vs, ok := m[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// parseTags validates and extracts the required tags (spec.md §4.B) from
// m, the lowercased raw Vorbis comment map.
func parseTags(m map[string][]string) (*Tags, error) {
	var t Tags
	for key, dst := range map[string]*string{
		"title":       &t.Title,
		"artist":      &t.Artist,
		"album":       &t.Album,
		"albumartist": &t.AlbumArtist,
	} {
		v, ok := firstTag(m, key)
		if !ok || v == "" {
			return nil, &MissingTagError{Key: key}
		}
		*dst = v
	}

	trackStr, ok := firstTag(m, "tracknumber")
	if !ok {
		return nil, &MissingTagError{Key: "tracknumber"}
	}
	track, err := parseLeadingInt(trackStr)
	if err != nil {
		return nil, &MalformedTagError{Key: "tracknumber", Value: trackStr}
	}
	t.Track = track

	// discnumber is optional; spec.md §4.B defaults it to 1.
	t.Disc = 1
	if discStr, ok := firstTag(m, "discnumber"); ok && discStr != "" {
		disc, err := parseLeadingInt(discStr)
		if err != nil {
			return nil, &MalformedTagError{Key: "discnumber", Value: discStr}
		}
		t.Disc = disc
	}

	// Prefer originaldate over date (see DESIGN.md's Open Question decision).
	dateStr, key := "", ""
	if v, ok := firstTag(m, "originaldate"); ok && v != "" {
		dateStr, key = v, "originaldate"
	} else if v, ok := firstTag(m, "date"); ok && v != "" {
		dateStr, key = v, "date"
	} else {
		return nil, &MissingTagError{Key: "date/originaldate"}
	}
	year, month, day, err := parseDate(dateStr)
	if err != nil {
		return nil, &MalformedTagError{Key: key, Value: dateStr}
	}
	t.Year, t.Month, t.Day = year, month, day

	return &t, nil
}

// parseLeadingInt parses the leading integer out of a tag value like
// "3" or "3/12" (Vorbis comments sometimes encode "track/total").
func parseLeadingInt(s string) (int, error) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	return strconv.Atoi(s)
}

// parseDate parses a date tag in "YYYY", "YYYY-MM", or "YYYY-MM-DD" form.
func parseDate(s string) (year, month, day int, err error) {
	parts := strings.SplitN(s, "-", 3)
	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, err
	}
	if len(parts) > 1 {
		if month, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, 0, err
		}
	}
	if len(parts) > 2 {
		if day, err = strconv.Atoi(parts[2]); err != nil {
			return 0, 0, 0, err
		}
	}
	return year, month, day, nil
}

// streamInfoLen is the fixed length in bytes of a STREAMINFO block.
const streamInfoLen = 34

// parseStreamInfo decodes the STREAMINFO block's fixed bit layout. go-flac
// exposes the block as raw bytes rather than a parsed struct, so this
// follows the manual bit-layout grounded in alexander-bruun-Orb's
// cmd/ingest/main.go (itself following the FLAC format spec).
func parseStreamInfo(d []byte) (*StreamInfo, error) {
	if len(d) < streamInfoLen {
		return nil, fmt.Errorf("%w: truncated STREAMINFO block (%d bytes)", ErrUnsupportedFormat, len(d))
	}
	// Bytes 10-17 (0-indexed) hold: 20 bits sample rate, 3 bits channels-1,
	// 5 bits bits-per-sample-1, 36 bits total samples.
	sampleRate := int(uint32(d[10])<<12 | uint32(d[11])<<4 | uint32(d[12])>>4)
	channels := int((d[12]>>1)&0x07) + 1
	bitsPerSample := int((d[12]&0x01)<<4|d[13]>>4) + 1
	totalSamples := uint64(d[13]&0x0f)<<32 | uint64(d[14])<<24 | uint64(d[15])<<16 | uint64(d[16])<<8 | uint64(d[17])

	if sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("%w: invalid STREAMINFO values", ErrUnsupportedFormat)
	}
	return &StreamInfo{
		SampleRate:    sampleRate,
		BitsPerSample: bitsPerSample,
		Channels:      channels,
		TotalSamples:  totalSamples,
	}, nil
}
