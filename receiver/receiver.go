// Package receiver implements ReceiverCore: per-color chunk reassembly,
// completion detection, ordered emission onto an output sink, and the
// SHA-256 digest verification that is this protocol's only integrity check.
package receiver

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/ClarkuCSCI/godiode/wire"
)

// SinkDepth is the default buffer size of the output sink channel, sized to
// absorb at least one full chunk's worth of packets so a writer stall never
// stalls the network reader.
const SinkDepth = 256

// dataColors are the two colors that carry reassembled chunk data.
var dataColors = [2]wire.Color{wire.ColorRed, wire.ColorBlue}

// message flows from the network reader goroutine to the output writer
// goroutine over the sink channel.
type message struct {
	data        []byte
	terminator  bool // marks end of chunk data; the eof message follows
	eof         bool // if true, data is the claimed EOF digest and no further messages follow
}

// Transport is the subset of transport.Receiver ReceiverCore depends on.
type Transport interface {
	ReadDatagram(buf []byte) (int, error)
}

// PacketObserver mirrors sender.PacketObserver on the receive side.
type PacketObserver interface {
	ObservePacket(color wire.Color, nPackets, seq uint16, payload []byte)
}

// Core is the receive-side reassembly state machine.
type Core struct {
	transport Transport
	observer  PacketObserver
	sink      chan message

	completed map[wire.Color]bool
	slots     map[wire.Color]map[uint16][]byte
}

// New creates a ReceiverCore reading datagrams from t.
func New(t Transport, observer PacketObserver) *Core {
	return &Core{
		transport: t,
		observer:  observer,
		sink:      make(chan message, SinkDepth),
		completed: map[wire.Color]bool{wire.ColorRed: false, wire.ColorBlue: false},
		slots: map[wire.Color]map[uint16][]byte{
			wire.ColorRed:  make(map[uint16][]byte),
			wire.ColorBlue: make(map[uint16][]byte),
		},
	}
}

// ReceiveLoop reads datagrams until an EOF packet arrives, ctx is
// cancelled, or the transport returns an error, then closes the sink
// channel. It never writes output itself; apart from ReadDatagram, it blocks
// only when the sink already holds SinkDepth undelivered messages.
func (c *Core) ReceiveLoop(ctx context.Context) error {
	defer close(c.sink)

	buf := make([]byte, wire.UDPMaxBytes)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := c.transport.ReadDatagram(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receiver: read datagram: %w", err)
		}

		pkt, err := wire.Decode(buf[:n])
		if err != nil {
			logrus.Debugf("receiver: dropping malformed datagram: %v", err)
			continue
		}
		if c.observer != nil {
			c.observer.ObservePacket(pkt.Color, pkt.NPackets, pkt.Seq, pkt.Payload)
		}

		if c.handlePacket(pkt) {
			return nil
		}
	}
}

// handlePacket applies one decoded packet to the reassembly state machine.
// It returns true once the EOF packet has been handled and the receive
// loop should stop.
func (c *Core) handlePacket(pkt wire.Packet) (eof bool) {
	switch pkt.Color {
	case wire.ColorBlack:
		c.sink <- message{terminator: true} // terminator
		digest := make([]byte, len(pkt.Payload))
		copy(digest, pkt.Payload)
		c.sink <- message{eof: true, data: digest}
		return true

	case wire.ColorWhite:
		return false

	case wire.ColorRed, wire.ColorBlue:
		c.handleDataPacket(pkt)
		return false

	default:
		logrus.Debugf("receiver: dropping packet with unknown color %v", pkt.Color)
		return false
	}
}

func (c *Core) handleDataPacket(pkt wire.Packet) {
	color := pkt.Color
	if c.completed[color] {
		return
	}

	slots := c.slots[color]
	if pkt.Seq < pkt.NPackets {
		if _, exists := slots[pkt.Seq]; !exists && len(slots) < int(pkt.NPackets) {
			payload := make([]byte, len(pkt.Payload))
			copy(payload, pkt.Payload)
			slots[pkt.Seq] = payload
		}
	}

	if len(slots) == int(pkt.NPackets) {
		for seq := uint16(0); seq < pkt.NPackets; seq++ {
			c.sink <- message{data: slots[seq]}
		}
		c.completed[color] = true
		c.slots[color] = make(map[uint16][]byte)

		other := color.Opposite()
		c.completed[other] = false
	}
}

// OutputWriter drains the sink, writes data to out, and verifies the
// running SHA-256 digest against the EOF packet's claimed digest.
type OutputWriter struct {
	core *Core
	out  io.Writer
}

// NewOutputWriter creates a writer draining core's sink to out.
func NewOutputWriter(core *Core, out io.Writer) *OutputWriter {
	return &OutputWriter{core: core, out: out}
}

// ErrDigestMismatch is returned when the received data's digest disagrees
// with the EOF packet's claimed digest.
var ErrDigestMismatch = errors.New("receiver: digest mismatch")

// ErrMissingEOF is returned when the sink closes before an EOF packet ever
// arrived.
var ErrMissingEOF = errors.New("receiver: EOF packet never received")

// Run drains messages until the sink closes. It returns nil on a verified
// digest match, ErrDigestMismatch on a verified mismatch, and ErrMissingEOF
// if the transfer ended without an EOF packet.
func (w *OutputWriter) Run() error {
	sha := sha256.New()
	for msg := range w.core.sink {
		if msg.eof {
			received := sha.Sum(nil)
			if string(received) == string(msg.data) {
				return nil
			}
			logrus.Warnf("receiver: digest mismatch: received=%x eof=%x", received, msg.data)
			return ErrDigestMismatch
		}
		if msg.terminator {
			// Terminator with no payload: the EOF digest message follows.
			continue
		}
		if _, err := w.out.Write(msg.data); err != nil {
			return fmt.Errorf("receiver: write output: %w", err)
		}
		sha.Write(msg.data)
	}
	return ErrMissingEOF
}
