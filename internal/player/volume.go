// Copyright 2021 Daniel Erat.
// All rights reserved.

package player

import "math"

// minVolumeDB and maxVolumeDB bound the software volume range (spec.md
// §4.H): integer decibels in [-60, 0], adjustable in 1 dB steps, 0 dB
// unity.
const (
	minVolumeDB = -60
	maxVolumeDB = 0
)

// clampVolumeDB clamps db to [minVolumeDB, maxVolumeDB].
func clampVolumeDB(db int) int {
	if db < minVolumeDB {
		return minVolumeDB
	}
	if db > maxVolumeDB {
		return maxVolumeDB
	}
	return db
}

// volumeGain converts an integer-dB volume into the linear multiplier
// applied to each sample before device write (spec.md §4.H).
func volumeGain(db int) float64 {
	return math.Pow(10, float64(db)/20)
}
