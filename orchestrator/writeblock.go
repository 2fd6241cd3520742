package orchestrator

import (
	"github.com/sirupsen/logrus"

	"github.com/mwoods-dev/goleech/bitutil"
	"github.com/mwoods-dev/goleech/peer"
)

// writeBlock implements spec.md §4.G's write_block(piece, block,
// bytes): persist the block to every overlapping file, mark it
// downloaded, and verify the piece once all its blocks have arrived.
func (o *Orchestrator) writeBlock(piece, block int, data []byte) {
	blockStart := o.mi.PieceOffset(piece) + int64(block)*int64(bitutil.BlockSize)
	if err := o.mi.WriteAt(o.store, blockStart, data); err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{"piece": piece, "block": block}).Warn("failed to write block")
		return
	}
	o.st.blockDownloaded[piece].Set(uint(block))
	o.st.blockClaimed[piece].Clear(uint(block))

	if int(o.st.blockDownloaded[piece].Count()) == o.mi.BlockCount(piece) {
		o.verifyPiece(piece)
	}
}

// verifyPiece implements verify_piece(p): re-read the piece from
// disk, hash it, and either mark it complete and broadcast Have, or
// clear its block bits so the scheduler re-requests it.
func (o *Orchestrator) verifyPiece(p int) {
	ok, err := o.mi.VerifyPiece(o.store, p)
	if err != nil {
		o.log.WithError(err).WithField("piece", p).Warn("failed to verify piece")
	}
	if ok {
		o.st.pieceDownloaded.Set(uint(p))
		blocks := o.st.blockDownloaded[p]
		for b := uint(0); b < uint(o.mi.BlockCount(p)); b++ {
			blocks.Set(b)
		}
		o.broadcastHave(p)
		if o.opts.OnProgress != nil {
			o.opts.OnProgress(int(o.st.pieceDownloaded.Count()), o.mi.PieceCount())
		}
		return
	}
	o.st.pieceDownloaded.Clear(uint(p))
	o.st.blockDownloaded[p].ClearAll()
	o.st.blockClaimed[p].ClearAll()
}

func (o *Orchestrator) broadcastHave(p int) {
	frame := peer.SendHave(p)
	for addr := range o.st.sessions {
		o.transport.Send(addr, frame)
	}
}
