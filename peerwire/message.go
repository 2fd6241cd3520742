package peerwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageID is the single-byte type tag of a peer message, per
// spec.md §4.F.
type MessageID uint8

const (
	Choke MessageID = iota
	Unchoke
	Interested
	NotInterested
	Have
	Bitfield
	Request
	Piece
	Cancel
	Port
)

func (id MessageID) String() string {
	switch id {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not_interested"
	case Have:
		return "have"
	case Bitfield:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	case Port:
		return "port"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// Message is a single parsed peer message. A nil Message with a nil
// error denotes a keepalive (wire length 0).
type Message struct {
	ID      MessageID
	Payload []byte
}

// Encode serialises a message to its wire form: a 4-byte big-endian
// length prefix covering the id byte and payload, followed by the id
// and payload themselves.
func (m *Message) Encode() []byte {
	buf := make([]byte, 4+1+len(m.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(m.Payload)))
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// KeepAlive returns the wire form of a keepalive message: a bare
// 4-byte zero length prefix with no id or payload.
func KeepAlive() []byte {
	return []byte{0, 0, 0, 0}
}

// ReadMessage reads one frame from r. It returns (nil, nil) for a
// keepalive so callers can distinguish "nothing happened" from a real
// message without an extra sentinel type.
func ReadMessage(r io.Reader) (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, nil
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return &Message{ID: MessageID(body[0]), Payload: body[1:]}, nil
}

// Simple builders for the fixed-shape outbound messages. Request and
// Cancel share a payload shape (index, begin, length); Have carries a
// single piece index; the zero-payload messages need no payload
// argument at all.

func simple(id MessageID) []byte {
	return (&Message{ID: id}).Encode()
}

func ChokeMsg() []byte         { return simple(Choke) }
func UnchokeMsg() []byte       { return simple(Unchoke) }
func InterestedMsg() []byte    { return simple(Interested) }
func NotInterestedMsg() []byte { return simple(NotInterested) }

func HaveMsg(index int) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return (&Message{ID: Have, Payload: payload}).Encode()
}

func BitfieldMsg(packed []byte) []byte {
	return (&Message{ID: Bitfield, Payload: packed}).Encode()
}

func RequestMsg(index, begin, length int) []byte {
	return indexBeginLength(Request, index, begin, length)
}

func CancelMsg(index, begin, length int) []byte {
	return indexBeginLength(Cancel, index, begin, length)
}

func indexBeginLength(id MessageID, index, begin, length int) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return (&Message{ID: id, Payload: payload}).Encode()
}

func PieceMsg(index, begin int, block []byte) []byte {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	copy(payload[8:], block)
	return (&Message{ID: Piece, Payload: payload}).Encode()
}

func PortMsg(port uint16) []byte {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, port)
	return (&Message{ID: Port, Payload: payload}).Encode()
}

// ParseRequestPayload decodes the (index, begin, length) payload
// shared by Request and Cancel messages.
func ParseRequestPayload(payload []byte) (index, begin, length int, err error) {
	if len(payload) != 12 {
		return 0, 0, 0, fmt.Errorf("peerwire: request payload length %d, want 12", len(payload))
	}
	index = int(binary.BigEndian.Uint32(payload[0:4]))
	begin = int(binary.BigEndian.Uint32(payload[4:8]))
	length = int(binary.BigEndian.Uint32(payload[8:12]))
	return index, begin, length, nil
}

// ParsePiecePayload decodes a Piece message payload into its index,
// begin offset and block data. The returned block aliases payload.
func ParsePiecePayload(payload []byte) (index, begin int, block []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, fmt.Errorf("peerwire: piece payload length %d, want >= 8", len(payload))
	}
	index = int(binary.BigEndian.Uint32(payload[0:4]))
	begin = int(binary.BigEndian.Uint32(payload[4:8]))
	return index, begin, payload[8:], nil
}

// ParseHavePayload decodes a Have message payload into a piece index.
func ParseHavePayload(payload []byte) (int, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("peerwire: have payload length %d, want 4", len(payload))
	}
	return int(binary.BigEndian.Uint32(payload)), nil
}

// ParsePortPayload decodes a Port message payload into a DHT port.
func ParsePortPayload(payload []byte) (uint16, error) {
	if len(payload) != 2 {
		return 0, fmt.Errorf("peerwire: port payload length %d, want 2", len(payload))
	}
	return binary.BigEndian.Uint16(payload), nil
}
