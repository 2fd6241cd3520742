package orchestrator

import "github.com/mwoods-dev/goleech/bitutil"

// scheduleRequests implements tick step 4: for every undownloaded
// block of every unfinished piece, pick the first seeder that has the
// piece and isn't already at its in-flight cap, and request it. This
// is a simple in-order, per-peer-concurrency-capped schedule — no
// rarest-first or endgame mode, matching spec.md's stated scope.
func (o *Orchestrator) scheduleRequests() {
	for p := 0; p < o.mi.PieceCount(); p++ {
		if o.st.pieceDownloaded.Test(uint(p)) {
			continue
		}
		blockCount := o.mi.BlockCount(p)
		downloaded := o.st.blockDownloaded[p]
		claimed := o.st.blockClaimed[p]
		for b := 0; b < blockCount; b++ {
			if downloaded.Test(uint(b)) || claimed.Test(uint(b)) {
				continue
			}
			if o.requestBlock(p, b) {
				claimed.Set(uint(b))
			}
		}
	}
}

// requestBlock finds the first seeder carrying piece p with spare
// in-flight capacity and sends it a request for block b.
func (o *Orchestrator) requestBlock(p, b int) bool {
	for _, addr := range o.st.seeders {
		sess, ok := o.st.sessions[addr]
		if !ok {
			continue
		}
		if !sess.HasPiece(p) {
			continue
		}
		if sess.NoOfBlocksRequested() >= o.opts.maxInFlight() {
			continue
		}
		begin := b * bitutil.BlockSize
		length := int(o.mi.BlockSize(p, b))
		frame := sess.SendRequest(p, begin, length)
		o.transport.Send(addr, frame)
		return true
	}
	return false
}
