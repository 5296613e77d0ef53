// Copyright 2021 Daniel Erat.
// All rights reserved.

package flacmeta

import "testing"

func TestParseStreamInfo(t *testing.T) {
	// 44100 Hz, 2 channels, 16 bits, 1000 samples, encoded per the FLAC
	// STREAMINFO bit layout (spec.md §4.B).
	d := make([]byte, streamInfoLen)
	sampleRate := uint32(44100)
	channels := uint32(2)
	bits := uint32(16)
	samples := uint64(1000)
	d[10] = byte(sampleRate >> 12)
	d[11] = byte(sampleRate >> 4)
	d[12] = byte((sampleRate&0x0f)<<4) | byte((channels-1)<<1) | byte((bits-1)>>4)
	d[13] = byte((bits-1)<<4) | byte(samples>>32)
	d[14] = byte(samples >> 24)
	d[15] = byte(samples >> 16)
	d[16] = byte(samples >> 8)
	d[17] = byte(samples)

	si, err := parseStreamInfo(d)
	if err != nil {
		t.Fatalf("parseStreamInfo failed: %v", err)
	}
	if si.SampleRate != 44100 || si.Channels != 2 || si.BitsPerSample != 16 || si.TotalSamples != 1000 {
		t.Errorf("parseStreamInfo = %+v; want {44100 16 2 1000}", si)
	}
}

func TestParseStreamInfo_Truncated(t *testing.T) {
	if _, err := parseStreamInfo(make([]byte, 10)); err == nil {
		t.Error("parseStreamInfo unexpectedly succeeded on truncated block")
	}
}

func TestParseTags(t *testing.T) {
	m := vorbisTagMap([]string{
		"TITLE=Aria",
		"ARTIST=Artemis",
		"ALBUM=Aria",
		"ALBUMARTIST=Artemis",
		"TRACKNUMBER=1",
		"DISCNUMBER=1",
		"ORIGINALDATE=2020-05-01",
		"DATE=2021",
	})
	tags, err := parseTags(m)
	if err != nil {
		t.Fatalf("parseTags failed: %v", err)
	}
	if tags.Title != "Aria" || tags.Artist != "Artemis" || tags.Track != 1 || tags.Disc != 1 {
		t.Errorf("parseTags = %+v", tags)
	}
	// originaldate must win over date (DESIGN.md's Open Question decision).
	if tags.Year != 2020 || tags.Month != 5 || tags.Day != 1 {
		t.Errorf("parseTags date = %d-%d-%d; want 2020-5-1", tags.Year, tags.Month, tags.Day)
	}
}

func TestParseTags_MissingRequired(t *testing.T) {
	m := vorbisTagMap([]string{"TITLE=Aria"})
	if _, err := parseTags(m); err == nil {
		t.Error("parseTags unexpectedly succeeded with missing tags")
	}
}

func TestParseTags_DefaultDisc(t *testing.T) {
	m := vorbisTagMap([]string{
		"TITLE=Aria", "ARTIST=A", "ALBUM=B", "ALBUMARTIST=A",
		"TRACKNUMBER=3/12", "DATE=2019",
	})
	tags, err := parseTags(m)
	if err != nil {
		t.Fatalf("parseTags failed: %v", err)
	}
	if tags.Disc != 1 {
		t.Errorf("Disc = %d; want 1", tags.Disc)
	}
	if tags.Track != 3 {
		t.Errorf("Track = %d; want 3", tags.Track)
	}
}

func TestParseDate(t *testing.T) {
	for _, tc := range []struct {
		in                     string
		year, month, day int
	}{
		{"2020", 2020, 0, 0},
		{"2020-05", 2020, 5, 0},
		{"2020-05-01", 2020, 5, 1},
	} {
		y, m, d, err := parseDate(tc.in)
		if err != nil {
			t.Errorf("parseDate(%q) failed: %v", tc.in, err)
			continue
		}
		if y != tc.year || m != tc.month || d != tc.day {
			t.Errorf("parseDate(%q) = %d-%d-%d; want %d-%d-%d", tc.in, y, m, d, tc.year, tc.month, tc.day)
		}
	}
}
