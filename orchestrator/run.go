package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mwoods-dev/goleech/tracker"
)

// announceInterval is the 30-minute sleep between tracker passes, per
// spec.md §5.
const announceInterval = 30 * time.Minute

// RunTorrent wires the three cooperative tasks of spec.md §5 —
// transport, tracker, orchestrator — under a single errgroup so a
// failure or cancellation in any one tears down the other two.
func (o *Orchestrator) RunTorrent(ctx context.Context, trackerClient *tracker.Client, ourPort uint16) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.transport.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return o.Run(ctx)
	})

	g.Go(func() error {
		return o.announceLoop(ctx, trackerClient, ourPort)
	})

	return g.Wait()
}

// announceLoop is the tracker task: announce, post every returned
// peer address for dialing, sleep 30 minutes, repeat. It keeps
// announcing until ctx is canceled; completing the download does not
// stop it. It only returns on cancellation, so a failed announce never
// makes RunTorrent's errgroup tear down the other tasks.
func (o *Orchestrator) announceLoop(ctx context.Context, client *tracker.Client, ourPort uint16) error {
	announce := func() error {
		params := tracker.AnnounceParams{
			InfoHash: o.mi.InfoHash,
			PeerID:   o.peerID,
			Port:     ourPort,
			Left:     o.bytesLeft(),
			Event:    tracker.EventNone,
		}
		peers, err := client.Announce(ctx, o.mi.TrackerURLs, params)
		if err != nil {
			o.log.WithError(err).Debug("tracker announce failed")
			return nil
		}
		for _, p := range peers {
			select {
			case o.trackerPeers <- p.String():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	startParams := tracker.AnnounceParams{
		InfoHash: o.mi.InfoHash,
		PeerID:   o.peerID,
		Port:     ourPort,
		Left:     o.bytesLeft(),
		Event:    tracker.EventStarted,
	}
	if peers, err := client.Announce(ctx, o.mi.TrackerURLs, startParams); err == nil {
		for _, p := range peers {
			select {
			case o.trackerPeers <- p.String():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	} else {
		o.log.WithError(err).Warn("initial tracker announce failed")
	}

	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := announce(); err != nil {
				return err
			}
		}
	}
}

// bytesLeft sums the size of every piece not yet verified.
func (o *Orchestrator) bytesLeft() int64 {
	var left int64
	for p := 0; p < o.mi.PieceCount(); p++ {
		if !o.st.pieceDownloaded.Test(uint(p)) {
			left += o.mi.PieceSize(p)
		}
	}
	return left
}
