package metainfo

import (
	"github.com/mwoods-dev/goleech/bitutil"
	"github.com/mwoods-dev/goleech/filestore"
)

// overlap returns the portion of [start, start+length) that falls
// within file f, as (sliceStart, sliceEnd, fileOffset) where
// data[sliceStart:sliceEnd] belongs at fileOffset in f. ok is false if
// there is no overlap.
func overlap(f FileItem, start, length int64) (sliceStart, sliceEnd, fileOffset int64, ok bool) {
	end := start + length
	fileEnd := f.Offset + f.Length
	if end <= f.Offset || start >= fileEnd {
		return 0, 0, 0, false
	}
	sliceStart = 0
	fileOffset = start - f.Offset
	if fileOffset < 0 {
		sliceStart = -fileOffset
		fileOffset = 0
	}
	sliceEnd = length
	if end > fileEnd {
		sliceEnd = fileEnd - start
	}
	return sliceStart, sliceEnd, fileOffset, true
}

// WriteAt writes data at the conceptual stream offset `start`, splitting
// it across every FileItem it overlaps and creating directories as
// needed. This generalizes the teacher's pieceToFile write loop in
// client.go into a reusable geometry-aware helper.
func (m *Metainfo) WriteAt(store filestore.Store, start int64, data []byte) error {
	for _, f := range m.Files {
		sliceStart, sliceEnd, fileOffset, ok := overlap(f, start, int64(len(data)))
		if !ok {
			continue
		}
		if _, err := store.WriteAt(f.Path, data[sliceStart:sliceEnd], fileOffset); err != nil {
			return err
		}
	}
	return nil
}

// ReadAt reads length bytes starting at the conceptual stream offset
// `start`, assembling them from every overlapping FileItem. Bytes for
// ranges that don't exist on disk yet come back zeroed.
func (m *Metainfo) ReadAt(store filestore.Store, start, length int64) ([]byte, error) {
	out := make([]byte, length)
	for _, f := range m.Files {
		sliceStart, sliceEnd, fileOffset, ok := overlap(f, start, length)
		if !ok {
			continue
		}
		if _, err := store.ReadAt(f.Path, out[sliceStart:sliceEnd], fileOffset); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// VerifyPiece reads piece p back from store and checks it against its
// published hash.
func (m *Metainfo) VerifyPiece(store filestore.Store, p int) (bool, error) {
	data, err := m.ReadAt(store, m.PieceOffset(p), m.PieceSize(p))
	if err != nil {
		return false, err
	}
	return bitutil.SHA1(data) == m.PieceHashes[p], nil
}
