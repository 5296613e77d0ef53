// Copyright 2021 Daniel Erat.
// All rights reserved.

package index

// intersectSortedIDs returns the sorted intersection of two ascending,
// deduplicated uint64 slices. Adapted from the teacher's
// server/query/query.go intersectSortedIDs (there specialized to song
// ids; generalized here to the uint64 entity ids used across artists,
// albums, and tracks), used by Search to AND-merge per-token candidate
// sets (spec.md §4.E).
func intersectSortedIDs(a, b []uint64) []uint64 {
	var out []uint64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
