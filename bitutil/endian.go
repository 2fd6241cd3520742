package bitutil

import "encoding/binary"

// U32BE renders x as 4 big-endian bytes.
func U32BE(x uint32) [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], x)
	return b
}

// U64BE renders x as 8 big-endian bytes.
func U64BE(x uint64) [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], x)
	return b
}

// BEToU32 parses 4 big-endian bytes as a uint32.
func BEToU32(b [4]byte) uint32 {
	return binary.BigEndian.Uint32(b[:])
}

// BEToU64 parses 8 big-endian bytes as a uint64.
func BEToU64(b [8]byte) uint64 {
	return binary.BigEndian.Uint64(b[:])
}
