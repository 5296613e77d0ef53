// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package player implements Musium's player (spec.md §4.H): a FIFO play
// queue, integer-dB software volume, and an Idle/Playing state machine
// driving one decoder pipeline at a time. There's no teacher equivalent
// (the teacher has no local playback engine); the design is fresh,
// following spec.md §9's "tagged variant PlayerCommand... dispatched in
// one place" and "shared mutable state owned by a single thread,
// mutated only via message passing" directly — see DESIGN.md.
package player

// commandKind tags the variant of a PlayerCommand (spec.md §9).
type commandKind int

const (
	cmdEnqueue commandKind = iota
	cmdVolumeUp
	cmdVolumeDown
	cmdShutdown
	cmdVolumeSnapshot
	cmdStateSnapshot
)

// PlayerCommand is the tagged-union mailbox message dispatched with a
// single switch inside the player goroutine's select loop (spec.md §9).
// The Enqueue/VolumeUp/VolumeDown/Shutdown variants are the ones named
// explicitly by the spec; the Snapshot variants let the HTTP control
// surface (spec.md §4.I) read queue/volume/state without touching
// player-owned memory directly, preserving "handler threads never touch
// it directly."
type PlayerCommand struct {
	kind    commandKind
	trackID uint64
	reply   chan interface{} // nil for fire-and-forget commands
}

// QueuedTrack is one FIFO entry, bound to a unique monotonic queue id
// (spec.md GLOSSARY: "Queue item").
type QueuedTrack struct {
	QueueID uint64
	TrackID uint64
}

// State is the player's coarse playback state (spec.md §4.H).
type State int

const (
	StateIdle State = iota
	StatePlaying
)

func (s State) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "idle"
}

// enqueueResult is the reply payload for an Enqueue command.
type enqueueResult struct {
	queued bool // false if trackID doesn't exist in the index
	item   QueuedTrack
}

// volumeResult is the reply payload for VolumeUp/VolumeDown/VolumeSnapshot.
type volumeResult struct {
	db int
}

// stateResult is the reply payload for a StateSnapshot command.
type stateResult struct {
	state State
	queue []QueuedTrack
}
