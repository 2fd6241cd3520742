package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/willf/bitset"

	"github.com/mwoods-dev/goleech/bitutil"
	"github.com/mwoods-dev/goleech/filestore"
	"github.com/mwoods-dev/goleech/metainfo"
	"github.com/mwoods-dev/goleech/peer"
	"github.com/mwoods-dev/goleech/transport"
)

// tickInterval is the ~30ms sleep between scheduler passes, per
// spec.md §4.G/§5.
const tickInterval = 30 * time.Millisecond

// Orchestrator is the scheduler task of spec.md §4.G/§5: it owns
// TorrentState and every PeerSession, and is the only task that ever
// touches either.
type Orchestrator struct {
	mi        *metainfo.Metainfo
	store     filestore.Store
	transport *transport.Transport
	opts      Options
	peerID    [bitutil.HashSize]byte
	log       *logrus.Entry

	trackerPeers chan string

	st *state
}

// New builds an Orchestrator for mi. resumed is the piece bitset
// metainfo.ScanExisting already verified on disk; pass nil to start
// from an empty state.
func New(mi *metainfo.Metainfo, store filestore.Store, tr *transport.Transport, peerID [bitutil.HashSize]byte, opts Options, resumed *bitset.BitSet, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		mi:           mi,
		store:        store,
		transport:    tr,
		opts:         opts,
		peerID:       peerID,
		log:          log,
		trackerPeers: make(chan string, 256),
		st:           newState(mi, resumed),
	}
}

// TrackerPeers returns the channel the tracker task posts freshly
// announced peer addresses to.
func (o *Orchestrator) TrackerPeers() chan<- string {
	return o.trackerPeers
}

// Done reports whether every piece has been verified.
func (o *Orchestrator) Done() bool {
	return o.st.complete(o.mi.PieceCount())
}

// Run is the orchestrator task of spec.md §5: it ticks every ~30ms
// until ctx is canceled, draining the transport and tracker queues
// and running the request scheduler.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.tick(time.Now())
		}
	}
}

func (o *Orchestrator) tick(now time.Time) {
	o.drainTransportEvents(now)
	o.drainTrackerPeers()
	o.perPeerHousekeeping(now)
	if !o.Done() {
		o.scheduleRequests()
	}
}

// drainTransportEvents implements tick step 1: route every pending
// transport event to session creation, byte delivery, or teardown.
func (o *Orchestrator) drainTransportEvents(now time.Time) {
	for {
		select {
		case ev := <-o.transport.Events:
			o.handleTransportEvent(ev, now)
		default:
			return
		}
	}
}

func (o *Orchestrator) handleTransportEvent(ev transport.Event, now time.Time) {
	switch ev.Kind {
	case transport.EventAddPeer:
		o.addPeer(ev.Addr)
	case transport.EventData:
		o.feedPeer(ev.Addr, ev.Data, now)
	case transport.EventDisconnect:
		o.dropPeer(ev.Addr)
	}
}

func (o *Orchestrator) addPeer(addr string) {
	if o.opts.OwnAddrs[addr] {
		return
	}
	if _, ok := o.st.sessions[addr]; ok {
		return
	}
	sess, handshake := peer.NewSession(addr, o.mi.InfoHash, o.peerID, o.mi.PieceCount(), o.opts.maxInFlight())
	o.st.sessions[addr] = sess
	o.transport.Send(addr, handshake)
}

// dropPeer removes addr's session, first releasing any block claims it
// held: blockClaimed isn't tagged by owner (it's a simple "someone
// asked for this" set), so a dropped peer's in-flight requests — which
// its own Session.requested already tracks — have to be cleared here
// or those blocks would stay claimed forever and the piece they belong
// to could never finish downloading.
func (o *Orchestrator) dropPeer(addr string) {
	if sess, ok := o.st.sessions[addr]; ok {
		o.releaseClaims(sess)
	}
	delete(o.st.sessions, addr)
	o.st.removeSeeder(addr)
}

func (o *Orchestrator) releaseClaims(sess *peer.Session) {
	for piece, blocks := range sess.RequestedBlocks() {
		claimed, ok := o.st.blockClaimed[piece]
		if !ok {
			continue
		}
		for b, ok := blocks.NextSet(0); ok; b, ok = blocks.NextSet(b + 1) {
			claimed.Clear(b)
		}
	}
}

// feedPeer hands inbound bytes to a session, sends our bitfield once
// the session has received the remote handshake, forwards any outbound
// frames the session produced, and writes any delivered blocks to disk. This merges tick steps 2
// and 3's "process_data" into the point where bytes actually arrive.
func (o *Orchestrator) feedPeer(addr string, data []byte, now time.Time) {
	sess, ok := o.st.sessions[addr]
	if !ok {
		return
	}
	outbound, deliveries, err := sess.Feed(data, now)
	if err != nil {
		o.log.WithError(err).WithField("addr", addr).Debug("peer protocol error")
		o.transport.Disconnect(addr)
		o.dropPeer(addr)
		return
	}
	if sess.HandshakeReceived && !sess.BitfieldSent {
		packed := o.localBitfieldBytes()
		o.transport.Send(addr, peer.SendBitfield(packed))
		sess.MarkBitfieldSent()
	}
	for _, frame := range outbound {
		o.transport.Send(addr, frame)
	}
	for _, d := range deliveries {
		o.writeBlock(d.Piece, d.Block, d.Bytes)
	}
}

func (o *Orchestrator) localBitfieldBytes() []byte {
	bits := make([]bool, o.mi.PieceCount())
	for p := range bits {
		bits[p] = o.st.pieceDownloaded.Test(uint(p))
	}
	return bitutil.PackBits(bits)
}

// drainTrackerPeers implements the tracker-task side of tick step 1:
// freshly announced addresses are treated exactly like a transport
// AddPeer — a dial is requested and a session will be created once
// the connection completes.
func (o *Orchestrator) drainTrackerPeers() {
	for {
		select {
		case addr := <-o.trackerPeers:
			if o.opts.OwnAddrs[addr] {
				continue
			}
			if _, ok := o.st.sessions[addr]; ok {
				continue
			}
			o.transport.Dial(addr)
		default:
			return
		}
	}
}

// perPeerHousekeeping implements the remainder of tick step 3: skip
// timed-out or not-yet-handshaked peers, otherwise toggle interest,
// send a keepalive, and admit to seeders.
func (o *Orchestrator) perPeerHousekeeping(now time.Time) {
	complete := o.Done()
	for addr, sess := range o.st.sessions {
		if sess.IsTimedOut(now) {
			o.transport.Disconnect(addr)
			o.dropPeer(addr)
			continue
		}
		if !sess.HandshakeReceived {
			continue
		}

		var frame []byte
		if complete {
			frame = sess.SendNotInterested()
		} else {
			frame = sess.SendInterested()
		}
		if frame != nil {
			o.transport.Send(addr, frame)
		}
		if ka := sess.SendKeepAlive(now); ka != nil {
			o.transport.Send(addr, ka)
		}

		if !complete && !sess.ChokeReceived && !o.st.isSeeder(addr) && len(o.st.seeders) < o.opts.maxSeeders() {
			o.st.seeders = append(o.st.seeders, addr)
		}
	}
}
