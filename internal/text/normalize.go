// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package text implements Musium's Unicode text normalization, used
// identically at index-build and query time so that searches containing
// diacritics match unaccented stored text and vice versa (spec.md §4.A).
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizer applies canonical compatibility decomposition and strips
// combining marks. See https://go.dev/blog/normalization#performing-magic.
var normalizer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// Normalize folds s to a comparable, case- and diacritic-insensitive form:
// canonical compatibility decomposition, combining-mark stripping,
// lower-casing, and collapsing of consecutive whitespace/punctuation to a
// single space. The result is valid UTF-8 containing no combining marks.
func Normalize(s string) (string, error) {
	b := make([]byte, len(s))
	for {
		n, _, err := normalizer.Transform(b, []byte(s), true)
		if err == transform.ErrShortDst {
			b = make([]byte, 2*len(b)+1)
			continue
		} else if err != nil {
			return "", err
		}
		b = b[:n]
		break
	}
	folded := strings.ToLower(strings.TrimRight(string(b), "\x00"))
	return collapseSeparators(folded), nil
}

// collapseSeparators reduces runs of whitespace and punctuation (as
// classified by unicode.IsSpace and unicode.IsPunct, so non-ASCII runes
// included) to a single space and trims the result, per spec.md §4.A's
// tokenization rule.
func collapseSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := true // trims leading separators
	for _, r := range s {
		if isSeparator(r) {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimRight(b.String(), " ")
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// Tokens splits s (which must already be normalized) into its non-empty
// whitespace-delimited tokens. See DESIGN.md's Open Question decision on
// CJK tokenization: Musium tokenizes on whitespace only.
func Tokens(normalized string) []string {
	fields := strings.Fields(normalized)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// articles lists the leading English articles stripped from sort keys
// for albums and artists (spec.md §4.D).
var articles = []string{"the ", "a ", "an "}

// SortKey returns s's normalized form with any leading English article
// removed, for use as an album/artist sort key (spec.md §4.D).
func SortKey(s string) (string, error) {
	n, err := Normalize(s)
	if err != nil {
		return "", err
	}
	for _, a := range articles {
		if strings.HasPrefix(n, a) {
			return n[len(a):], nil
		}
	}
	return n, nil
}

