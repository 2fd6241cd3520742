package tracker

import (
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const (
	udpProtocolID  uint64 = 0x41727101980
	udpActionConn  uint32 = 0
	udpActionAnn   uint32 = 1
	udpTimeout            = time.Second
	udpNumWant     int32  = -1
)

// announceUDP runs the two-round connect/announce handshake from
// spec.md §4.D over a single UDP socket, verifying the echoed
// transaction_id at every step.
func announceUDP(ctx context.Context, rawURL string, params AnnounceParams) ([]netip.AddrPort, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &UnreachableError{URL: rawURL, Cause: err}
	}

	raddr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return nil, &UnreachableError{URL: rawURL, Cause: err}
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, &UnreachableError{URL: rawURL, Cause: err}
	}
	defer conn.Close()

	connID, err := udpConnect(conn)
	if err != nil {
		return nil, &UnreachableError{URL: rawURL, Cause: err}
	}
	peers, err := udpAnnounce(conn, connID, params)
	if err != nil {
		return nil, &UnreachableError{URL: rawURL, Cause: err}
	}
	return peers, nil
}

// udpConnect sends the connect request and returns the connection_id
// the tracker assigns for the subsequent announce.
func udpConnect(conn *net.UDPConn) (uint64, error) {
	txID := randomTransactionID()

	req := make([]byte, 16)
	binary.BigEndian.PutUint64(req[0:8], udpProtocolID)
	binary.BigEndian.PutUint32(req[8:12], udpActionConn)
	binary.BigEndian.PutUint32(req[12:16], txID)

	resp, err := udpRoundTrip(conn, req, 16)
	if err != nil {
		return 0, err
	}
	if binary.BigEndian.Uint32(resp[0:4]) != udpActionConn {
		return 0, errors.New("udp tracker: unexpected action in connect response")
	}
	if binary.BigEndian.Uint32(resp[4:8]) != txID {
		return 0, errors.New("udp tracker: transaction id mismatch in connect response")
	}
	return binary.BigEndian.Uint64(resp[8:16]), nil
}

// udpAnnounce sends the announce request over an established
// connection id and parses the compact IPv4 peer list out of the
// reply.
func udpAnnounce(conn *net.UDPConn, connID uint64, p AnnounceParams) ([]netip.AddrPort, error) {
	txID := randomTransactionID()

	req := make([]byte, 98)
	binary.BigEndian.PutUint64(req[0:8], connID)
	binary.BigEndian.PutUint32(req[8:12], udpActionAnn)
	binary.BigEndian.PutUint32(req[12:16], txID)
	copy(req[16:36], p.InfoHash[:])
	copy(req[36:56], p.PeerID[:])
	binary.BigEndian.PutUint64(req[56:64], uint64(p.Downloaded))
	binary.BigEndian.PutUint64(req[64:72], uint64(p.Left))
	binary.BigEndian.PutUint64(req[72:80], uint64(p.Uploaded))
	binary.BigEndian.PutUint32(req[80:84], p.udpEventCode())
	// IP address (0 = tracker picks), key, num_want, port.
	binary.BigEndian.PutUint32(req[84:88], 0)
	binary.BigEndian.PutUint32(req[88:92], txID)
	binary.BigEndian.PutUint32(req[92:96], uint32(udpNumWant))
	binary.BigEndian.PutUint16(req[96:98], p.Port)

	resp, err := udpRoundTrip(conn, req, 20)
	if err != nil {
		return nil, err
	}
	if binary.BigEndian.Uint32(resp[0:4]) != udpActionAnn {
		return nil, errors.New("udp tracker: unexpected action in announce response")
	}
	if binary.BigEndian.Uint32(resp[4:8]) != txID {
		return nil, errors.New("udp tracker: transaction id mismatch in announce response")
	}

	peerBytes := resp[20:]
	return decodeCompactPeers(peerBytes)
}

// udpRoundTrip writes req, reads a reply of at least minLen bytes
// within the 1-second tracker timeout, and returns it.
func udpRoundTrip(conn *net.UDPConn, req []byte, minLen int) ([]byte, error) {
	if err := conn.SetDeadline(time.Now().Add(udpTimeout)); err != nil {
		return nil, err
	}
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	if n < minLen {
		return nil, errors.Errorf("udp tracker: short response (%d bytes)", n)
	}
	return buf[:n], nil
}

func randomTransactionID() uint32 {
	var b [4]byte
	_, _ = cryptoRandRead(b[:])
	return binary.BigEndian.Uint32(b[:])
}
