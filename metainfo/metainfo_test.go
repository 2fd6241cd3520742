package metainfo

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mwoods-dev/goleech/bencode"
	"github.com/mwoods-dev/goleech/bitutil"
)

func writeTorrentFile(t *testing.T, dict bencode.Value) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.torrent")
	if err := os.WriteFile(path, bencode.Encode(dict), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func singleFileTorrent(pieceLen int64, fileLen int64) bencode.Value {
	piece := bytes.Repeat([]byte{0xAA}, 20)
	info := bencode.NewDict(map[string]bencode.Value{
		"name":         bencode.Text("movie.mp4"),
		"piece length": bencode.Integer(pieceLen),
		"pieces":       bencode.String(piece),
		"length":       bencode.Integer(fileLen),
	})
	return bencode.NewDict(map[string]bencode.Value{
		"announce": bencode.Text("http://tracker.example/announce"),
		"info":     info,
	})
}

func TestLoadSingleFile(t *testing.T) {
	path := writeTorrentFile(t, singleFileTorrent(262144, 1000))
	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "movie.mp4" {
		t.Errorf("expected name movie.mp4, got %s", m.Name)
	}
	if m.TotalSize != 1000 {
		t.Errorf("expected total size 1000, got %d", m.TotalSize)
	}
	if len(m.Files) != 1 || m.Files[0].Offset != 0 {
		t.Errorf("unexpected file layout: %+v", m.Files)
	}
	if m.TrackerURLs[0] != "http://tracker.example/announce" {
		t.Errorf("unexpected tracker url: %v", m.TrackerURLs)
	}
}

func TestLoadMultiFile(t *testing.T) {
	piece := bytes.Repeat([]byte{0xAA}, 40) // 2 pieces
	info := bencode.NewDict(map[string]bencode.Value{
		"name":         bencode.Text("album"),
		"piece length": bencode.Integer(262144),
		"pieces":       bencode.String(piece),
		"files": bencode.List(
			bencode.NewDict(map[string]bencode.Value{
				"length": bencode.Integer(100),
				"path":   bencode.List(bencode.Text("a.mp3")),
			}),
			bencode.NewDict(map[string]bencode.Value{
				"length": bencode.Integer(200),
				"path":   bencode.List(bencode.Text("sub"), bencode.Text("b.mp3")),
			}),
		),
	})
	dict := bencode.NewDict(map[string]bencode.Value{
		"announce": bencode.Text("http://tracker.example/announce"),
		"info":     info,
	})
	path := writeTorrentFile(t, dict)
	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TotalSize != 300 {
		t.Errorf("expected total size 300, got %d", m.TotalSize)
	}
	if len(m.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(m.Files))
	}
	if m.Files[0].Offset != 0 || m.Files[1].Offset != 100 {
		t.Errorf("unexpected offsets: %+v", m.Files)
	}
	if m.Files[1].Path != filepath.Join("album", "sub", "b.mp3") {
		t.Errorf("unexpected nested path: %s", m.Files[1].Path)
	}
}

func TestLoadAnnounceList(t *testing.T) {
	info := singleFileTorrent(262144, 10)
	infoDict := info.Dict["info"]
	dict := bencode.NewDict(map[string]bencode.Value{
		"announce": bencode.Text("http://a.example/announce"),
		"announce-list": bencode.List(
			bencode.List(bencode.Text("http://a.example/announce")),
			bencode.List(bencode.Text("http://b.example/announce"), bencode.Text("udp://c.example:80")),
		),
		"info": infoDict,
	})
	path := writeTorrentFile(t, dict)
	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"http://a.example/announce", "http://b.example/announce", "udp://c.example:80"}
	if len(m.TrackerURLs) != len(expected) {
		t.Fatalf("expected %d urls, got %v", len(expected), m.TrackerURLs)
	}
	for i, u := range expected {
		if m.TrackerURLs[i] != u {
			t.Errorf("index %d: expected %s got %s", i, u, m.TrackerURLs[i])
		}
	}
}

func TestMalformedPieces(t *testing.T) {
	info := bencode.NewDict(map[string]bencode.Value{
		"name":         bencode.Text("x"),
		"piece length": bencode.Integer(16384),
		"pieces":       bencode.String([]byte("not-twenty-bytes-per-chunk")),
		"length":       bencode.Integer(10),
	})
	dict := bencode.NewDict(map[string]bencode.Value{
		"announce": bencode.Text("http://tracker.example/announce"),
		"info":     info,
	})
	path := writeTorrentFile(t, dict)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for malformed pieces")
	}
}

func TestInfoHashMatchesCanonicalEncoding(t *testing.T) {
	path := writeTorrentFile(t, singleFileTorrent(262144, 10))
	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Recompute independently to confirm info_hash == sha1(encode(info)).
	raw, _ := os.ReadFile(path)
	top, _ := bencode.Decode(raw)
	infoDict, _ := top.GetDict("info")
	expected := bitutil.SHA1(bencode.Encode(bencode.NewDict(infoDict)))
	if m.InfoHash != expected {
		t.Errorf("info hash mismatch: got %s want %s", m.InfoHash, expected)
	}
}

func TestGeometry(t *testing.T) {
	// From spec.md §8: total_size=1_000_000, piece_size=262144.
	m := &Metainfo{
		TotalSize:   1_000_000,
		PieceLength: 262144,
		PieceHashes: make([]bitutil.Hash, 4),
	}
	if got := m.PieceCount(); got != 4 {
		t.Fatalf("expected piece_count 4, got %d", got)
	}
	if got := m.PieceSize(3); got != 213568 {
		t.Errorf("expected piece_size(3)=213568, got %d", got)
	}
	if got := m.BlockCount(0); got != 16 {
		t.Errorf("expected block_count(0)=16, got %d", got)
	}
	if got := m.BlockSize(0, 15); got != 16384 {
		t.Errorf("expected block_size(0,15)=16384, got %d", got)
	}
	if got := m.BlockCount(3); got != 14 {
		t.Errorf("expected block_count(3)=14, got %d", got)
	}
	if got := m.BlockSize(3, 13); got != 576 {
		t.Errorf("expected block_size(3,13)=576, got %d", got)
	}

	var sum int64
	for p := 0; p < m.PieceCount(); p++ {
		for b := 0; b < m.BlockCount(p); b++ {
			sum += m.BlockSize(p, b)
		}
	}
	if sum != m.TotalSize {
		t.Errorf("expected sum of block sizes %d, got %d", m.TotalSize, sum)
	}
}
