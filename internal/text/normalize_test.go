// Copyright 2021 Daniel Erat.
// All rights reserved.

package text

import "testing"

func TestNormalize(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"Café", "cafe"},
		{"CAFE", "cafe"},
		{"  Hello,   World!  ", "hello world"},
		{"Déjà Vu", "deja vu"},
		{"", ""},
	} {
		got, err := Normalize(tc.in)
		if err != nil {
			t.Errorf("Normalize(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, in := range []string{"Café Del Mar", "THE BEATLES", "日本語"} {
		once, err := Normalize(in)
		if err != nil {
			t.Fatal(err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatal(err)
		}
		if once != twice {
			t.Errorf("Normalize(%q) = %q but Normalize(%q) = %q; want idempotence", in, once, once, twice)
		}
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("hello world  foo")
	want := []string{"hello", "world", "foo"}
	if len(got) != len(want) {
		t.Fatalf("Tokens() = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tokens()[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}

func TestSortKey(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"The Beatles", "beatles"},
		{"A Tribe Called Quest", "tribe called quest"},
		{"An Album", "album"},
		{"Aria", "aria"},
	} {
		got, err := SortKey(tc.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("SortKey(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
