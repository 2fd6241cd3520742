package peer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/willf/bitset"

	"github.com/mwoods-dev/goleech/bitutil"
	"github.com/mwoods-dev/goleech/peerwire"
)

// Feed appends freshly arrived bytes to the session's buffer and
// drains as many complete frames as are available, dispatching each
// in turn. It returns the outbound bytes produced as a side effect of
// dispatch (currently none: no handler produces any, and the
// post-handshake bitfield is built by the caller) and any block
// deliveries extracted from Piece messages.
//
// Framing is strict, per spec.md §4.F: while the handshake hasn't been
// received, the next frame is exactly 68 bytes; afterwards frames are
// length-prefixed. Feed stops as soon as the buffer is shorter than
// the next frame length and waits for more bytes.
func (s *Session) Feed(data []byte, now time.Time) (outbound [][]byte, deliveries []BlockDelivery, err error) {
	s.buf = append(s.buf, data...)

	for {
		if !s.HandshakeReceived {
			if len(s.buf) < peerwire.HandshakeSize {
				return outbound, deliveries, nil
			}
			frame := s.buf[:peerwire.HandshakeSize]
			s.buf = s.buf[peerwire.HandshakeSize:]
			out, dispErr := s.dispatchHandshake(frame, now)
			if dispErr != nil {
				return outbound, deliveries, dispErr
			}
			outbound = append(outbound, out...)
			continue
		}

		if len(s.buf) < 4 {
			return outbound, deliveries, nil
		}
		length := binary.BigEndian.Uint32(s.buf[:4])
		frameLen := 4 + int(length)
		if len(s.buf) < frameLen {
			return outbound, deliveries, nil
		}
		frame := s.buf[:frameLen]
		s.buf = s.buf[frameLen:]

		s.lastActive = now
		if length == 0 {
			continue // keepalive: length check only
		}

		msg, readErr := peerwire.ReadMessage(bytes.NewReader(frame))
		if readErr != nil {
			return outbound, deliveries, readErr
		}
		delivery, dispErr := s.dispatchMessage(msg)
		if dispErr != nil {
			return outbound, deliveries, dispErr
		}
		if delivery != nil {
			deliveries = append(deliveries, *delivery)
		}
	}
}

func (s *Session) dispatchHandshake(frame []byte, now time.Time) ([][]byte, error) {
	hs, err := peerwire.ParseHandshake(frame)
	if err != nil {
		s.Disconnected = true
		s.DisconnectMsg = err.Error()
		return nil, err
	}
	if hs.InfoHash != s.expectedInfoHash {
		s.Disconnected = true
		s.DisconnectMsg = "info_hash mismatch"
		return nil, fmt.Errorf("peer: info_hash mismatch from %s", s.Addr)
	}
	s.RemotePeerID = hs.PeerID
	s.HandshakeReceived = true
	s.lastActive = now
	s.RemoteBitfield = bitset.New(uint(s.pieceCount))
	return nil, nil
}

func (s *Session) dispatchMessage(msg *peerwire.Message) (*BlockDelivery, error) {
	switch msg.ID {
	case peerwire.Choke:
		if len(msg.Payload) != 0 {
			return nil, fmt.Errorf("peer: choke payload length %d, want 0", len(msg.Payload))
		}
		s.ChokeReceived = true
	case peerwire.Unchoke:
		if len(msg.Payload) != 0 {
			return nil, fmt.Errorf("peer: unchoke payload length %d, want 0", len(msg.Payload))
		}
		s.ChokeReceived = false
	case peerwire.Have:
		piece, err := peerwire.ParseHavePayload(msg.Payload)
		if err != nil {
			return nil, err
		}
		s.ensureRemoteBitfield()
		s.RemoteBitfield.Set(uint(piece))
	case peerwire.Bitfield:
		wantLen := (s.pieceCount + 7) / 8
		if len(msg.Payload) != wantLen {
			return nil, fmt.Errorf("peer: bitfield payload length %d, want %d", len(msg.Payload), wantLen)
		}
		s.ensureRemoteBitfield()
		bits := bitutil.UnpackBits(msg.Payload)
		for i := 0; i < s.pieceCount && i < len(bits); i++ {
			if bits[i] {
				s.RemoteBitfield.Set(uint(i))
			}
		}
	case peerwire.Piece:
		piece, begin, block, err := peerwire.ParsePiecePayload(msg.Payload)
		if err != nil {
			return nil, err
		}
		blockIndex := begin / bitutil.BlockSize
		s.clearBlock(piece, blockIndex)
		return &BlockDelivery{Piece: piece, Block: blockIndex, Bytes: block}, nil
	case peerwire.Interested, peerwire.NotInterested, peerwire.Request, peerwire.Cancel, peerwire.Port:
		// Receive-only acknowledgement: no state change for a pure leecher.
	default:
		// Unknown id: ignore, per spec.md §4.F.
	}
	return nil, nil
}

func (s *Session) ensureRemoteBitfield() {
	if s.RemoteBitfield == nil {
		s.RemoteBitfield = bitset.New(uint(s.pieceCount))
	}
}
