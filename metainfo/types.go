// Package metainfo parses .torrent files into the immutable geometry a
// download needs: file layout, piece/block sizing, and the info-hash
// that identifies the torrent to trackers and peers.
package metainfo

import "github.com/mwoods-dev/goleech/bitutil"

// FileItem is one file within the torrent's conceptual concatenated
// byte stream.
type FileItem struct {
	Path   string
	Length int64
	Offset int64 // starting byte index in the concatenated stream
}

// Metainfo is the immutable geometry of a torrent: everything derived
// from the .torrent file that never changes over the life of a download.
type Metainfo struct {
	Name        string
	InfoHash    bitutil.Hash
	TrackerURLs []string
	PieceLength int64
	PieceHashes []bitutil.Hash
	Files       []FileItem
	TotalSize   int64
}

// PieceCount returns P, the number of piece hashes; for a well-formed
// torrent this equals ceil(TotalSize / PieceLength).
func (m *Metainfo) PieceCount() int {
	return len(m.PieceHashes)
}

// PieceSize returns the size of piece p: PieceLength for every piece
// except possibly the last, which is TotalSize mod PieceLength (or a
// full PieceLength if that remainder is zero).
func (m *Metainfo) PieceSize(p int) int64 {
	if p == m.PieceCount()-1 {
		if rem := m.TotalSize % m.PieceLength; rem != 0 {
			return rem
		}
	}
	return m.PieceLength
}

// PieceOffset returns the starting byte of piece p in the concatenated
// stream.
func (m *Metainfo) PieceOffset(p int) int64 {
	return int64(p) * m.PieceLength
}

// BlockCount returns the number of BlockSize-sized chunks piece p splits
// into: ceil(PieceSize(p) / BlockSize).
func (m *Metainfo) BlockCount(p int) int {
	size := m.PieceSize(p)
	return int((size + bitutil.BlockSize - 1) / bitutil.BlockSize)
}

// BlockSize returns the size of block b within piece p: BlockSize for
// every block except possibly the piece's last, which is
// PieceSize(p) mod BlockSize (or a full BlockSize if that remainder is
// zero).
func (m *Metainfo) BlockSize(p, b int) int64 {
	if b == m.BlockCount(p)-1 {
		if rem := m.PieceSize(p) % bitutil.BlockSize; rem != 0 {
			return rem
		}
	}
	return bitutil.BlockSize
}

// Multi reports whether the torrent describes more than one file.
func (m *Metainfo) Multi() bool {
	return len(m.Files) > 1
}
