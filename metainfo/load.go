package metainfo

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mwoods-dev/goleech/bencode"
	"github.com/mwoods-dev/goleech/bitutil"
)

// Load reads and parses a .torrent file at path into a Metainfo.
func Load(path string) (*Metainfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: read file")
	}
	top, err := bencode.Decode(raw)
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: decode")
	}
	if top.Kind != bencode.KindDict {
		return nil, errors.New("metainfo: top-level value is not a dict")
	}

	infoVal, err := top.GetDict("info")
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: info dict")
	}
	infoValue := bencode.NewDict(infoVal)
	infoHash := bitutil.SHA1(bencode.Encode(infoValue))

	m, err := parseInfo(infoValue, infoHash)
	if err != nil {
		return nil, err
	}

	trackers, err := parseTrackerURLs(top)
	if err != nil {
		return nil, err
	}
	m.TrackerURLs = trackers

	return m, nil
}

// parseTrackerURLs reads "announce" and flattens "announce-list",
// preserving order and deduplicating, per spec.md §4.C step 4.
func parseTrackerURLs(top bencode.Value) ([]string, error) {
	announce, err := top.GetText("announce")
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: announce")
	}
	urls := []string{announce}
	seen := map[string]bool{announce: true}

	if list, err := top.GetList("announce-list"); err == nil {
		for _, tier := range list {
			inner, err := tier.AsList()
			if err != nil {
				continue
			}
			for _, u := range inner {
				text, err := u.AsText()
				if err != nil || text == "" {
					continue
				}
				if !seen[text] {
					seen[text] = true
					urls = append(urls, text)
				}
			}
		}
	}
	return urls, nil
}

func parseInfo(info bencode.Value, hash bitutil.Hash) (*Metainfo, error) {
	name, err := info.GetText("name")
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: name")
	}
	pieceLength, err := info.GetInt("piece length")
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: piece length")
	}
	if pieceLength <= 0 {
		return nil, errors.New("metainfo: piece length must be positive")
	}
	piecesRaw, err := info.GetBytes("pieces")
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: pieces")
	}
	if len(piecesRaw)%bitutil.HashSize != 0 {
		return nil, &MalformedPiecesError{Length: len(piecesRaw)}
	}
	pieceHashes := make([]bitutil.Hash, len(piecesRaw)/bitutil.HashSize)
	for i := range pieceHashes {
		copy(pieceHashes[i][:], piecesRaw[i*bitutil.HashSize:(i+1)*bitutil.HashSize])
	}

	files, total, err := parseFiles(info, name)
	if err != nil {
		return nil, err
	}

	return &Metainfo{
		Name:        name,
		InfoHash:    hash,
		PieceLength: pieceLength,
		PieceHashes: pieceHashes,
		Files:       files,
		TotalSize:   total,
	}, nil
}

// parseFiles builds the file layout: single-file mode from "length", or
// multi-file mode from the "files" list, assigning rising offsets.
func parseFiles(info bencode.Value, name string) ([]FileItem, int64, error) {
	if length, err := info.GetInt("length"); err == nil {
		return []FileItem{{Path: name, Length: length, Offset: 0}}, length, nil
	}

	rawFiles, err := info.GetList("files")
	if err != nil {
		return nil, 0, errors.New("metainfo: info dict has neither length nor files")
	}
	files := make([]FileItem, 0, len(rawFiles))
	var offset int64
	for i, rf := range rawFiles {
		length, err := rf.GetInt("length")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "metainfo: files[%d].length", i)
		}
		pathParts, err := rf.GetList("path")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "metainfo: files[%d].path", i)
		}
		parts := make([]string, 0, len(pathParts)+1)
		parts = append(parts, name)
		for _, p := range pathParts {
			text, err := p.AsText()
			if err != nil {
				return nil, 0, errors.Wrapf(err, "metainfo: files[%d].path component", i)
			}
			parts = append(parts, text)
		}
		files = append(files, FileItem{
			Path:   filepath.Join(parts...),
			Length: length,
			Offset: offset,
		})
		offset += length
	}
	return files, offset, nil
}
