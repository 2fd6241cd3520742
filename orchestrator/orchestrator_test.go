package orchestrator

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/willf/bitset"

	"github.com/mwoods-dev/goleech/bitutil"
	"github.com/mwoods-dev/goleech/filestore"
	"github.com/mwoods-dev/goleech/metainfo"
	"github.com/mwoods-dev/goleech/peer"
	"github.com/mwoods-dev/goleech/transport"
)

func testMetainfo(t *testing.T, pieceLen int64, data []byte) *metainfo.Metainfo {
	t.Helper()
	pieceCount := (int64(len(data)) + pieceLen - 1) / pieceLen
	hashes := make([]bitutil.Hash, pieceCount)
	for p := int64(0); p < pieceCount; p++ {
		start := p * pieceLen
		end := start + pieceLen
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		hashes[p] = bitutil.SHA1(data[start:end])
	}
	return &metainfo.Metainfo{
		Name:        "test",
		PieceLength: pieceLen,
		PieceHashes: hashes,
		TotalSize:   int64(len(data)),
		Files:       []metainfo.FileItem{{Path: "test.bin", Length: int64(len(data)), Offset: 0}},
	}
}

func newTestOrchestrator(t *testing.T, mi *metainfo.Metainfo) (*Orchestrator, filestore.Store) {
	t.Helper()
	store := &filestore.Disk{BaseDir: t.TempDir()}
	tr := transport.New(nil, nil)
	var peerID [bitutil.HashSize]byte
	o := New(mi, store, tr, peerID, Options{}, nil, nil)
	return o, store
}

func TestWriteBlockAndVerifyPieceSucceeds(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 16384)
	mi := testMetainfo(t, 16384, data)
	o, _ := newTestOrchestrator(t, mi)

	o.writeBlock(0, 0, data)
	require.True(t, o.st.pieceDownloaded.Test(0))
	require.True(t, o.Done())
}

func TestWriteBlockWrongDataFailsVerification(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 16384)
	mi := testMetainfo(t, 16384, data)
	o, _ := newTestOrchestrator(t, mi)

	wrong := bytes.Repeat([]byte{0x99}, 16384)
	o.writeBlock(0, 0, wrong)
	require.False(t, o.st.pieceDownloaded.Test(0))
	require.Equal(t, uint(0), o.st.blockDownloaded[0].Count())
}

func TestScheduleRequestsPicksAdmittedSeeder(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 32768) // 2 blocks, 1 piece
	mi := testMetainfo(t, 32768, data)
	o, _ := newTestOrchestrator(t, mi)

	addr := "peer1:6881"
	sess, _ := peer.NewSession(addr, mi.InfoHash, o.peerID, mi.PieceCount(), peer.DefaultMaxInFlight)
	sess.HandshakeReceived = true
	sess.RemoteBitfield = allPiecesBitset(mi.PieceCount())
	sess.ChokeReceived = false
	o.st.sessions[addr] = sess
	o.st.seeders = []string{addr}

	o.scheduleRequests()
	require.Equal(t, 2, sess.NoOfBlocksRequested())
}

func TestScheduleRequestsRespectsMaxInFlight(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 16384*10)
	mi := testMetainfo(t, 16384*10, data)
	o, _ := newTestOrchestrator(t, mi)
	o.opts.MaxInFlight = 3

	addr := "peer1:6881"
	sess, _ := peer.NewSession(addr, mi.InfoHash, o.peerID, mi.PieceCount(), 3)
	sess.HandshakeReceived = true
	sess.RemoteBitfield = allPiecesBitset(mi.PieceCount())
	sess.ChokeReceived = false
	o.st.sessions[addr] = sess
	o.st.seeders = []string{addr}

	o.scheduleRequests()
	require.Equal(t, 3, sess.NoOfBlocksRequested())
}

func TestPerPeerHousekeepingAdmitsSeederAndSendsInterested(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 16384)
	mi := testMetainfo(t, 16384, data)
	o, _ := newTestOrchestrator(t, mi)

	addr := "peer1:6881"
	sess, _ := peer.NewSession(addr, mi.InfoHash, o.peerID, mi.PieceCount(), peer.DefaultMaxInFlight)
	sess.HandshakeReceived = true
	sess.ChokeReceived = false
	o.st.sessions[addr] = sess

	o.perPeerHousekeeping(time.Now())
	require.True(t, o.st.isSeeder(addr))
	require.True(t, sess.InterestedSent)
}

func TestPerPeerHousekeepingDropsTimedOutPeer(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 16384)
	mi := testMetainfo(t, 16384, data)
	o, _ := newTestOrchestrator(t, mi)

	addr := "peer1:6881"
	sess, _ := peer.NewSession(addr, mi.InfoHash, o.peerID, mi.PieceCount(), peer.DefaultMaxInFlight)
	o.st.sessions[addr] = sess

	future := time.Now().Add(time.Minute)
	o.perPeerHousekeeping(future)
	_, stillThere := o.st.sessions[addr]
	require.False(t, stillThere)
}

func TestDropPeerReleasesClaimedBlocks(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 32768) // 2 blocks, 1 piece
	mi := testMetainfo(t, 32768, data)
	o, _ := newTestOrchestrator(t, mi)

	addr := "peer1:6881"
	sess, _ := peer.NewSession(addr, mi.InfoHash, o.peerID, mi.PieceCount(), peer.DefaultMaxInFlight)
	sess.HandshakeReceived = true
	sess.RemoteBitfield = allPiecesBitset(mi.PieceCount())
	sess.ChokeReceived = false
	o.st.sessions[addr] = sess
	o.st.seeders = []string{addr}

	o.scheduleRequests()
	require.Equal(t, uint(2), o.st.blockClaimed[0].Count())

	o.dropPeer(addr)
	require.Equal(t, uint(0), o.st.blockClaimed[0].Count())
	_, stillThere := o.st.sessions[addr]
	require.False(t, stillThere)
}

func allPiecesBitset(n int) *bitset.BitSet {
	bs := bitset.New(uint(n))
	for i := uint(0); i < uint(n); i++ {
		bs.Set(i)
	}
	return bs
}
