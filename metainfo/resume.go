package metainfo

import (
	"github.com/willf/bitset"

	"github.com/mwoods-dev/goleech/filestore"
)

// ScanExisting implements spec.md §4.C step 7: for each piece, attempt
// to verify it against whatever already exists on disk (a prior,
// interrupted run) and mark it downloaded if the hash matches. This is
// what lets a second invocation over the same output directory resume
// instead of re-downloading everything.
func ScanExisting(m *Metainfo, store filestore.Store) *bitset.BitSet {
	downloaded := bitset.New(uint(m.PieceCount()))
	for p := 0; p < m.PieceCount(); p++ {
		ok, err := m.VerifyPiece(store, p)
		if err == nil && ok {
			downloaded.Set(uint(p))
		}
	}
	return downloaded
}
