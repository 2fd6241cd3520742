// Package peerwire implements the BitTorrent peer wire protocol:
// handshake framing and the length-prefixed message stream described
// in spec.md §4.F/§6.
package peerwire

import (
	"bytes"
	"fmt"

	"github.com/mwoods-dev/goleech/bitutil"
)

// Protocol is the fixed protocol string exchanged in every handshake.
const Protocol = "BitTorrent protocol"

// HandshakeSize is the fixed wire size of a handshake message:
// 1 + len(Protocol) + 8 (reserved) + 20 (info_hash) + 20 (peer_id).
const HandshakeSize = 1 + len(Protocol) + 8 + bitutil.HashSize + bitutil.HashSize

// Handshake is the decoded form of the 68-byte handshake.
type Handshake struct {
	InfoHash bitutil.Hash
	PeerID   [bitutil.HashSize]byte
}

// BuildHandshake serialises a Handshake to its wire form. The reserved
// extension bytes are always zero: this client implements no BEPs
// that use them.
func BuildHandshake(h Handshake) []byte {
	buf := make([]byte, HandshakeSize)
	buf[0] = byte(len(Protocol))
	copy(buf[1:], Protocol)
	// buf[1+len(Protocol) : 1+len(Protocol)+8] stays zero (reserved).
	off := 1 + len(Protocol) + 8
	copy(buf[off:], h.InfoHash[:])
	copy(buf[off+bitutil.HashSize:], h.PeerID[:])
	return buf
}

// ParseHandshake validates and decodes a received handshake. It
// rejects a mismatched protocol string but does not compare info_hash
// against anything: that is the caller's job, since only the caller
// knows which torrent this connection belongs to.
func ParseHandshake(buf []byte) (Handshake, error) {
	if len(buf) != HandshakeSize {
		return Handshake{}, fmt.Errorf("peerwire: handshake length %d, want %d", len(buf), HandshakeSize)
	}
	plen := int(buf[0])
	if plen != len(Protocol) || !bytes.Equal(buf[1:1+plen], []byte(Protocol)) {
		return Handshake{}, fmt.Errorf("peerwire: unrecognised protocol %q", buf[1:1+plen])
	}
	off := 1 + len(Protocol) + 8
	var h Handshake
	copy(h.InfoHash[:], buf[off:off+bitutil.HashSize])
	copy(h.PeerID[:], buf[off+bitutil.HashSize:off+2*bitutil.HashSize])
	return h, nil
}
