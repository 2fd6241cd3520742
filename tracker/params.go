// Package tracker implements the HTTP and UDP tracker announce flavors
// from spec.md §4.D: given a tracker URL list and the current session
// counters, return a fresh set of peer addresses.
package tracker

import "github.com/mwoods-dev/goleech/bitutil"

// Event is the BitTorrent tracker announce event.
type Event string

const (
	EventStarted   Event = "started"
	EventStopped   Event = "stopped"
	EventCompleted Event = "completed"
	EventNone      Event = ""
)

// AnnounceParams carries the counters common to both tracker flavors.
type AnnounceParams struct {
	InfoHash   bitutil.Hash
	PeerID     [bitutil.HashSize]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
}

// udpEventCode maps Event to the UDP wire encoding from spec.md §4.D:
// 0=none, 1=completed, 2=started, 3=stopped.
func (p AnnounceParams) udpEventCode() uint32 {
	switch p.Event {
	case EventCompleted:
		return 1
	case EventStarted:
		return 2
	case EventStopped:
		return 3
	default:
		return 0
	}
}
