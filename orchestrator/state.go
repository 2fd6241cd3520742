// Package orchestrator implements the scheduler from spec.md §4.G: it
// owns the mutable torrent state, drains the transport and tracker
// event queues, and decides which blocks to request from which
// peers. It is the only package that touches a peer.Session or piece
// bitmap — everything else only hands it events.
package orchestrator

import (
	"github.com/willf/bitset"

	"github.com/mwoods-dev/goleech/metainfo"
	"github.com/mwoods-dev/goleech/peer"
)

// DefaultMaxSeeders caps the number of peers simultaneously admitted
// as request targets, per spec.md §4.G.
const DefaultMaxSeeders = 7

// Options configures the scheduler's tunables. Zero values fall back
// to the spec's defaults.
type Options struct {
	MaxSeeders  int
	MaxInFlight int
	// OwnAddrs generalizes the "port==56789" self-connection filter:
	// any peer address appearing here is dropped before a session is
	// ever created for it, so a tracker that echoes our own listener
	// back to us can't make us dial ourselves.
	OwnAddrs map[string]bool
	// OnProgress is called after every successful piece verification
	// with the number of verified pieces and the total piece count.
	OnProgress func(done, total int)
}

func (o Options) maxSeeders() int {
	if o.MaxSeeders > 0 {
		return o.MaxSeeders
	}
	return DefaultMaxSeeders
}

func (o Options) maxInFlight() int {
	if o.MaxInFlight > 0 {
		return o.MaxInFlight
	}
	return peer.DefaultMaxInFlight
}

// state is the mutable TorrentState of spec.md §4.G, touched only by
// the orchestrator's own tick loop.
type state struct {
	sessions map[string]*peer.Session
	seeders  []string

	pieceDownloaded *bitset.BitSet
	blockDownloaded map[int]*bitset.BitSet
	// blockClaimed tracks, across every peer, which blocks already
	// have an outstanding request in flight, implementing step 4's
	// "skip blocks already requested by any peer".
	blockClaimed map[int]*bitset.BitSet
}

func newState(mi *metainfo.Metainfo, resumed *bitset.BitSet) *state {
	st := &state{
		sessions:        make(map[string]*peer.Session),
		pieceDownloaded: bitset.New(uint(mi.PieceCount())),
		blockDownloaded: make(map[int]*bitset.BitSet, mi.PieceCount()),
		blockClaimed:    make(map[int]*bitset.BitSet, mi.PieceCount()),
	}
	if resumed != nil {
		st.pieceDownloaded = resumed
	}
	for p := 0; p < mi.PieceCount(); p++ {
		blocks := bitset.New(uint(mi.BlockCount(p)))
		if st.pieceDownloaded.Test(uint(p)) {
			for b := uint(0); b < uint(mi.BlockCount(p)); b++ {
				blocks.Set(b)
			}
		}
		st.blockDownloaded[p] = blocks
		st.blockClaimed[p] = bitset.New(uint(mi.BlockCount(p)))
	}
	return st
}

// complete reports whether every piece has been verified.
func (st *state) complete(pieceCount int) bool {
	return int(st.pieceDownloaded.Count()) == pieceCount
}

func (st *state) isSeeder(addr string) bool {
	for _, a := range st.seeders {
		if a == addr {
			return true
		}
	}
	return false
}

func (st *state) removeSeeder(addr string) {
	for i, a := range st.seeders {
		if a == addr {
			st.seeders = append(st.seeders[:i], st.seeders[i+1:]...)
			return
		}
	}
}
