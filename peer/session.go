// Package peer implements the per-peer state machine from spec.md
// §4.F: handshake tracking, frame assembly, choke/interest bookkeeping
// and the in-flight block request table.
package peer

import (
	"time"

	"github.com/willf/bitset"

	"github.com/mwoods-dev/goleech/bitutil"
	"github.com/mwoods-dev/goleech/peerwire"
)

const (
	// keepAliveInterval suppresses redundant keepalives, per spec.md §4.F.
	keepAliveInterval = 30 * time.Second
	// idleTimeout marks a peer timed out after this much inactivity.
	idleTimeout = 30 * time.Second
	// DefaultMaxInFlight is the default per-peer in-flight request cap.
	DefaultMaxInFlight = 5
)

// BlockDelivery is a downloaded block handed back to the orchestrator.
type BlockDelivery struct {
	Piece int
	Block int
	Bytes []byte
}

// Session is one peer connection's protocol state. It owns no socket:
// inbound bytes are pushed in via Feed, and outbound frames are
// returned as byte slices for the caller (the transport layer) to
// write. This keeps the state machine a pure function of its inputs,
// testable without a live connection.
type Session struct {
	Addr string

	expectedInfoHash bitutil.Hash
	localPeerID      [bitutil.HashSize]byte
	pieceCount       int
	maxInFlight      int

	buf []byte

	HandshakeSent     bool
	HandshakeReceived bool
	BitfieldSent      bool
	RemotePeerID      [bitutil.HashSize]byte

	ChokeReceived  bool
	InterestedSent bool

	RemoteBitfield *bitset.BitSet
	requested      map[int]*bitset.BitSet // piece -> block indices in flight

	lastActive    time.Time
	lastKeepAlive time.Time

	Disconnected  bool
	DisconnectMsg string
}

// NewSession constructs a Session for a freshly accepted or dialed
// connection and immediately queues the handshake frame: the caller
// must send the returned bytes before anything else.
func NewSession(addr string, infoHash bitutil.Hash, localPeerID [bitutil.HashSize]byte, pieceCount, maxInFlight int) (*Session, []byte) {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	s := &Session{
		Addr:             addr,
		expectedInfoHash: infoHash,
		localPeerID:      localPeerID,
		pieceCount:       pieceCount,
		maxInFlight:      maxInFlight,
		ChokeReceived:    true, // peers start choked per BitTorrent convention
		requested:        make(map[int]*bitset.BitSet),
		lastActive:       time.Now(),
	}
	hs := peerwire.BuildHandshake(peerwire.Handshake{InfoHash: infoHash, PeerID: localPeerID})
	s.HandshakeSent = true
	return s, hs
}

// NoOfBlocksRequested returns the total number of in-flight block
// requests across all pieces, per spec.md §4.F's derived query.
func (s *Session) NoOfBlocksRequested() int {
	total := 0
	for _, bs := range s.requested {
		total += int(bs.Count())
	}
	return total
}

// RequestedBlocks returns the per-piece set of block indices currently
// in flight to this peer, keyed by piece index. Used by the
// orchestrator to release that peer's claims when it is dropped before
// delivering them.
func (s *Session) RequestedBlocks() map[int]*bitset.BitSet {
	return s.requested
}

// IsTimedOut reports whether the peer has been silent past the
// 30-second inactivity window.
func (s *Session) IsTimedOut(now time.Time) bool {
	return now.Sub(s.lastActive) > idleTimeout
}

// HasPiece reports whether the remote bitfield claims piece p.
func (s *Session) HasPiece(p int) bool {
	return s.RemoteBitfield != nil && s.RemoteBitfield.Test(uint(p))
}

// IsBlockRequested reports whether (piece, block) is already in
// flight to this peer.
func (s *Session) IsBlockRequested(piece, block int) bool {
	bs, ok := s.requested[piece]
	return ok && bs.Test(uint(block))
}

// SendBitfield returns the bitfield frame advertising the locally
// downloaded pieces. Called once, right after handshake completes.
func SendBitfield(packed []byte) []byte {
	return peerwire.BitfieldMsg(packed)
}

// MarkBitfieldSent records that the bitfield has been sent.
func (s *Session) MarkBitfieldSent() { s.BitfieldSent = true }

// SendInterested/SendNotInterested are idempotent relative to
// InterestedSent: calling them when already in that state returns nil
// so the caller can unconditionally invoke them every tick.
func (s *Session) SendInterested() []byte {
	if s.InterestedSent {
		return nil
	}
	s.InterestedSent = true
	return peerwire.InterestedMsg()
}

func (s *Session) SendNotInterested() []byte {
	if !s.InterestedSent {
		return nil
	}
	s.InterestedSent = false
	return peerwire.NotInterestedMsg()
}

// SendHave returns a have frame for a newly verified piece.
func SendHave(piece int) []byte {
	return peerwire.HaveMsg(piece)
}

// SendRequest returns a request frame for (piece, begin, length) and
// marks the corresponding block in flight.
func (s *Session) SendRequest(piece, begin, length int) []byte {
	block := begin / bitutil.BlockSize
	bs, ok := s.requested[piece]
	if !ok {
		bs = bitset.New(0)
		s.requested[piece] = bs
	}
	bs.Set(uint(block))
	return peerwire.RequestMsg(piece, begin, length)
}

// SendKeepAlive returns a keepalive frame, or nil if one was sent
// within the last 30 seconds.
func (s *Session) SendKeepAlive(now time.Time) []byte {
	if now.Sub(s.lastKeepAlive) < keepAliveInterval {
		return nil
	}
	s.lastKeepAlive = now
	return peerwire.KeepAlive()
}

// clearBlock marks (piece, block) as no longer in flight, called once
// the piece message carrying it arrives.
func (s *Session) clearBlock(piece, block int) {
	if bs, ok := s.requested[piece]; ok {
		bs.Clear(uint(block))
	}
}
