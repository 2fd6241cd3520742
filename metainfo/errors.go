package metainfo

import "fmt"

// MalformedPiecesError reports a "pieces" byte string whose length is
// not a multiple of 20 (a content hash is always exactly 20 bytes).
type MalformedPiecesError struct {
	Length int
}

func (e *MalformedPiecesError) Error() string {
	return fmt.Sprintf("metainfo: pieces length %d is not a multiple of 20", e.Length)
}
