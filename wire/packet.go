// Package wire implements the data diode's on-the-wire packet format: a
// fixed 7-byte little-endian header followed by a zero-padded payload area.
package wire

import (
	"encoding/binary"
	"fmt"
	"runtime"
)

// Color tags every datagram sent over the wire.
type Color byte

const (
	// ColorRed and ColorBlue alternate across consecutive data chunks.
	ColorRed  Color = 'R'
	ColorBlue Color = 'B'
	// ColorBlack marks the end-of-stream digest packet.
	ColorBlack Color = 'K'
	// ColorWhite marks idle keep-alive filler.
	ColorWhite Color = 'W'
)

func (c Color) String() string {
	return string(byte(c))
}

// Opposite returns the other color in the R/B alternation. Only meaningful
// for ColorRed/ColorBlue.
func (c Color) Opposite() Color {
	if c == ColorRed {
		return ColorBlue
	}
	return ColorRed
}

// UDPMaxBytes is the fixed datagram length used for every packet. Broadcast
// packets fragment above 1472 bytes on platforms that care about that limit;
// elsewhere a larger datagram amortizes header overhead.
var UDPMaxBytes = defaultUDPMaxBytes()

func defaultUDPMaxBytes() int {
	if runtime.GOOS == "darwin" {
		return 1472
	}
	return 9216
}

// HeaderSize is the size in bytes of the fixed packet header:
// color (1) + n_packets (2) + seq (2) + payload_len (2).
const HeaderSize = 7

// MaxPayload is the largest payload a single datagram can carry.
func MaxPayload() int {
	return UDPMaxBytes - HeaderSize
}

// Packet is the decoded form of a datagram.
type Packet struct {
	Color      Color
	NPackets   uint16
	Seq        uint16
	PayloadLen uint16
	Payload    []byte
}

// Encode packs color, nPackets, seq and payload into a full-size datagram,
// zero-padding the payload area out to MaxPayload bytes. It panics if
// payload exceeds MaxPayload, which indicates a caller bug, not a runtime
// condition.
func Encode(color Color, nPackets, seq uint16, payload []byte) []byte {
	maxPayload := MaxPayload()
	if len(payload) > maxPayload {
		panic(fmt.Sprintf("wire: payload of %d bytes exceeds MaxPayload %d", len(payload), maxPayload))
	}

	datagram := make([]byte, UDPMaxBytes)
	datagram[0] = byte(color)
	binary.LittleEndian.PutUint16(datagram[1:3], nPackets)
	binary.LittleEndian.PutUint16(datagram[3:5], seq)
	binary.LittleEndian.PutUint16(datagram[5:7], uint16(len(payload)))
	copy(datagram[HeaderSize:], payload)
	return datagram
}

// Decode unpacks a received datagram's header and slices out its meaningful
// payload bytes. It returns an error for datagrams too short to contain a
// full header or whose claimed payload length overruns the buffer; callers
// are expected to drop such datagrams rather than propagate the error.
func Decode(datagram []byte) (Packet, error) {
	if len(datagram) < HeaderSize {
		return Packet{}, fmt.Errorf("wire: datagram of %d bytes shorter than header size %d", len(datagram), HeaderSize)
	}

	payloadLen := binary.LittleEndian.Uint16(datagram[5:7])
	payloadEnd := HeaderSize + int(payloadLen)
	if payloadEnd > len(datagram) {
		return Packet{}, fmt.Errorf("wire: payload_len %d overruns datagram of %d bytes", payloadLen, len(datagram))
	}

	return Packet{
		Color:      Color(datagram[0]),
		NPackets:   binary.LittleEndian.Uint16(datagram[1:3]),
		Seq:        binary.LittleEndian.Uint16(datagram[3:5]),
		PayloadLen: payloadLen,
		Payload:    datagram[HeaderSize:payloadEnd],
	}, nil
}
