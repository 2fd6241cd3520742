// Package bitutil provides the small, shared byte-level helpers the rest
// of goleech builds on: the 20-byte content hash, big-endian wire
// conversions, MSB-first bit packing for the BitTorrent wire bitfield,
// and percent-encoding for tracker query parameters.
package bitutil

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// HashSize is the length in bytes of a SHA-1 content hash.
const HashSize = 20

// BlockSize is the fixed size of a request/transfer unit: 16 KiB.
const BlockSize = 1 << 14

// MyPeerID is this client's 20-byte peer id advertised in handshakes
// and tracker announces: Azureus-style "-GL0100-" prefix followed by
// 12 zero bytes, so every instance advertises the same id.
var MyPeerID = [HashSize]byte{'-', 'G', 'L', '0', '1', '0', '0', '-'}

// Hash is a 20-byte content hash: a torrent's info-hash or a piece digest.
type Hash [HashSize]byte

// FromSlice builds a Hash from exactly 20 bytes.
func FromSlice(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("bitutil: hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// SHA1 computes the SHA-1 digest of data as a Hash.
func SHA1(data []byte) Hash {
	return Hash(sha1.Sum(data))
}

// String renders the hash as 40 lowercase hex characters.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// PercentEncoded renders the hash with every byte escaped as %XX, as
// required for the info_hash and peer_id tracker query parameters.
func (h Hash) PercentEncoded() string {
	return PercentEncode(h[:])
}

// PercentEncode maps every byte of b to a %XX escape triplet.
func PercentEncode(b []byte) string {
	out := make([]byte, 0, len(b)*3)
	const hexDigits = "0123456789ABCDEF"
	for _, c := range b {
		out = append(out, '%', hexDigits[c>>4], hexDigits[c&0x0F])
	}
	return string(out)
}
