package tracker

import (
	"context"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"time"

	"github.com/mwoods-dev/goleech/bencode"
	"github.com/mwoods-dev/goleech/bitutil"
)

// announceHTTP issues the GET announce request described in spec.md
// §4.D/§6 and parses the compact peer list out of the bencoded
// response body.
func announceHTTP(ctx context.Context, client *http.Client, rawURL string, params AnnounceParams) ([]netip.AddrPort, error) {
	full := rawURL + "?" + buildQuery(params)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, &UnreachableError{URL: rawURL, Cause: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &UnreachableError{URL: rawURL, Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &UnreachableError{URL: rawURL, Cause: errStatus(resp.StatusCode)}
	}

	body := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		body = append(body, buf[:n]...)
		if err != nil {
			break
		}
	}

	val, err := bencode.Decode(body)
	if err != nil {
		return nil, &MalformedResponseError{URL: rawURL, Reason: err.Error()}
	}
	if reason, err := val.GetText("failure reason"); err == nil {
		return nil, &MalformedResponseError{URL: rawURL, Reason: reason}
	}
	peersRaw, err := val.GetBytes("peers")
	if err != nil {
		return nil, &MalformedResponseError{URL: rawURL, Reason: "missing peers key"}
	}
	return decodeCompactPeers(peersRaw)
}

// buildQuery builds the announce query string. info_hash and peer_id
// are percent-encoded bytewise per spec.md §4.D; the rest go through
// the stdlib query encoder.
func buildQuery(p AnnounceParams) string {
	v := url.Values{}
	v.Set("port", strconv.Itoa(int(p.Port)))
	v.Set("uploaded", strconv.FormatInt(p.Uploaded, 10))
	v.Set("downloaded", strconv.FormatInt(p.Downloaded, 10))
	v.Set("left", strconv.FormatInt(p.Left, 10))
	v.Set("compact", "1")
	if p.Event != EventNone {
		v.Set("event", string(p.Event))
	}
	return "info_hash=" + bitutil.PercentEncode(p.InfoHash[:]) +
		"&peer_id=" + bitutil.PercentEncode(p.PeerID[:]) +
		"&" + v.Encode()
}

// decodeCompactPeers parses a BEP 23 compact peer list: N 6-byte
// records of (ipv4[4], port[2] big-endian).
func decodeCompactPeers(data []byte) ([]netip.AddrPort, error) {
	const recordSize = 6
	if len(data)%recordSize != 0 {
		return nil, &MalformedResponseError{Reason: "peers length not a multiple of 6"}
	}
	peers := make([]netip.AddrPort, 0, len(data)/recordSize)
	for i := 0; i < len(data); i += recordSize {
		addr := netip.AddrFrom4([4]byte(data[i : i+4]))
		port := uint16(data[i+4])<<8 | uint16(data[i+5])
		peers = append(peers, netip.AddrPortFrom(addr, port))
	}
	return peers, nil
}

type errStatus int

func (e errStatus) Error() string {
	return "unexpected HTTP status " + strconv.Itoa(int(e))
}

// newHTTPClient returns the *http.Client used for HTTP tracker
// announces, with the 1-second read/write timeout spec.md §4.D
// requires treated as the client-wide request timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
