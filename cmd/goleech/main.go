package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mwoods-dev/goleech/bitutil"
	"github.com/mwoods-dev/goleech/filestore"
	"github.com/mwoods-dev/goleech/metainfo"
	"github.com/mwoods-dev/goleech/orchestrator"
	"github.com/mwoods-dev/goleech/tracker"
	"github.com/mwoods-dev/goleech/transport"
)

const (
	torrentDescription    = "Required: path of the torrent file."
	outDescription        = "Optional: path of the output directory.\nIf not set, the file will be downloaded next to the torrent file."
	portDescription       = "Port to listen for incoming peer connections on."
	maxSeedersDescription = "Maximum number of peers to request blocks from at once."
	maxReqDescription     = "Maximum number of in-flight block requests per peer."
	verboseDescription    = "Enable debug logging."
)

func main() {
	var torrentPath, outPath string
	var port int
	var maxSeeders, maxRequests int
	var verbose bool

	flag.StringVar(&torrentPath, "f", "", torrentDescription)
	flag.StringVar(&torrentPath, "file", "", torrentDescription)
	flag.StringVar(&outPath, "o", "", outDescription)
	flag.StringVar(&outPath, "output", "", outDescription)
	flag.IntVar(&port, "port", 56789, portDescription)
	flag.IntVar(&maxSeeders, "max-seeders", orchestrator.DefaultMaxSeeders, maxSeedersDescription)
	flag.IntVar(&maxRequests, "max-requests", 5, maxReqDescription)
	flag.BoolVar(&verbose, "v", false, verboseDescription)
	flag.Parse()

	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	if torrentPath == "" {
		entry.Fatal("please provide a path to a torrent file with -f")
	}

	if err := run(torrentPath, outPath, port, maxSeeders, maxRequests, entry); err != nil {
		entry.WithError(err).Fatal("download failed")
	}
}

func run(torrentPath, outPath string, port, maxSeeders, maxRequests int, log *logrus.Entry) error {
	mi, err := metainfo.Load(torrentPath)
	if err != nil {
		return fmt.Errorf("loading torrent: %w", err)
	}

	dir := outPath
	if dir == "" {
		dir = filepath.Dir(torrentPath)
	}
	if mi.Multi() {
		dir = filepath.Join(dir, mi.Name)
	}
	store := &filestore.Disk{BaseDir: dir}
	if err := store.MkdirAll(""); err != nil {
		return fmt.Errorf("preparing output directory: %w", err)
	}

	resumed := metainfo.ScanExisting(mi, store)
	log.WithFields(logrus.Fields{
		"name":   mi.Name,
		"size":   humanize.Bytes(uint64(mi.TotalSize)),
		"pieces": mi.PieceCount(),
		"resume": resumed.Count(),
	}).Info("loaded torrent")

	peerID := bitutil.MyPeerID
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", port, err)
	}
	defer ln.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr := transport.New(rate.NewLimiter(rate.Limit(10), 20), log)
	go acceptLoop(ctx, ln, tr)

	ownAddrs := map[string]bool{ln.Addr().String(): true}
	opts := orchestrator.Options{
		MaxSeeders:  maxSeeders,
		MaxInFlight: maxRequests,
		OwnAddrs:    ownAddrs,
		OnProgress: func(done, total int) {
			log.WithFields(logrus.Fields{"done": done, "total": total}).
				Infof("progress %.1f%%", 100*float64(done)/float64(total))
		},
	}
	orch := orchestrator.New(mi, store, tr, peerID, opts, resumed, log)

	trackerClient := tracker.NewClient(rate.NewLimiter(rate.Limit(1), 5), log)

	go func() {
		for !orch.Done() {
			time.Sleep(time.Second)
		}
		log.Info("download complete")
		stop()
	}()

	if err := orch.RunTorrent(ctx, trackerClient, uint16(port)); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func acceptLoop(ctx context.Context, ln net.Listener, tr *transport.Transport) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		tr.Adopt(ctx, conn.RemoteAddr().String(), conn)
	}
}
