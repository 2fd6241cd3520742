package tracker

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// requestTimeout is the 1-second request budget spec.md §4.D assigns
// to both tracker flavors.
const requestTimeout = time.Second

// Client announces against a torrent's tracker URL list, trying each
// URL in order and returning the peer set from the first one that
// answers with any peers at all.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Entry
}

// NewClient builds a tracker client. The limiter paces announce
// attempts across trackers the same way the transport's dial limiter
// paces outbound peer connections, so a torrent with a long announce-list
// doesn't hammer every URL at once.
func NewClient(limiter *rate.Limiter, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		httpClient: newHTTPClient(requestTimeout),
		limiter:    limiter,
		log:        log,
	}
}

// Announce walks urls in order, announcing to each until one returns
// a non-empty peer list. Errors from individual trackers are logged
// and swallowed; Announce only fails if every URL in the list failed.
func (c *Client) Announce(ctx context.Context, urls []string, params AnnounceParams) ([]netip.AddrPort, error) {
	var lastErr error
	answered := false
	for _, u := range urls {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		peers, err := c.announceOne(ctx, u, params)
		if err != nil {
			c.log.WithError(err).WithField("tracker", u).Debug("announce failed")
			lastErr = err
			continue
		}
		answered = true
		if len(peers) > 0 {
			return peers, nil
		}
	}
	if lastErr != nil && !answered {
		return nil, lastErr
	}
	return nil, nil
}

func (c *Client) announceOne(ctx context.Context, rawURL string, params AnnounceParams) ([]netip.AddrPort, error) {
	switch {
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return announceHTTP(ctx, c.httpClient, rawURL, params)
	case strings.HasPrefix(rawURL, "udp://"):
		return announceUDP(ctx, rawURL, params)
	default:
		return nil, &UnreachableError{URL: rawURL, Cause: errUnsupportedScheme}
	}
}

var errUnsupportedScheme = errorString("unsupported tracker URL scheme")

type errorString string

func (e errorString) Error() string { return string(e) }
