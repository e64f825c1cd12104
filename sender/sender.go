// Package sender implements SenderCore: the state machine that drives color
// selection, redundancy, warmup, keep-alive, and EOF finalization, and wraps
// each chunk into packets paced across the wire.
package sender

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ClarkuCSCI/godiode/chunkbuffer"
	"github.com/ClarkuCSCI/godiode/pacer"
	"github.com/ClarkuCSCI/godiode/wire"
)

// MinWarmupChunks is the minimum number of times the first data chunk is
// sent, absorbing the early packet loss observed on real hardware.
const MinWarmupChunks = 5

// MinEOFChunks is the minimum number of times the EOF digest packet is
// sent.
const MinEOFChunks = 2

// Transport is the subset of transport.Sender that SenderCore depends on,
// so tests can substitute a fake.
type Transport interface {
	SendTo(datagram []byte) error
}

// PacketObserver is notified of every datagram transmitted, letting the
// optional CSV/Prometheus hooks (internal/telemetry, internal/metrics)
// observe traffic without SenderCore depending on either.
type PacketObserver interface {
	ObservePacket(color wire.Color, nPackets, seq uint16, payload []byte)
}

// Config holds the operator-supplied parameters that shape chunk pacing and
// redundancy.
type Config struct {
	ChunkMaxPackets int
	ChunkDuration   time.Duration
	Redundancy      int
}

// Core drives the send side of the protocol: it pops chunks from a
// ChunkBuffer, tracks the running digest, and emits packets over Transport.
type Core struct {
	transport   Transport
	chunkBuffer *chunkbuffer.ChunkBuffer
	cfg         Config
	observer    PacketObserver

	currentColor  wire.Color
	warmup        bool
	previousChunk []byte
	previousColor wire.Color
	digest        []byte // set once EOF has been sent

	sha sha256Hash
}

// sha256Hash is the subset of hash.Hash used here, aliased for clarity.
type sha256Hash interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
}

// New creates a SenderCore. observer may be nil.
func New(t Transport, cb *chunkbuffer.ChunkBuffer, cfg Config, observer PacketObserver) *Core {
	return &Core{
		transport:    t,
		chunkBuffer:  cb,
		cfg:          cfg,
		observer:     observer,
		currentColor: wire.ColorRed,
		warmup:       true,
		sha:          sha256.New(),
	}
}

// Run drives Core.step until EOF has been sent, ctx is cancelled, or a
// transport error occurs. On a clean EOF, Digest returns the sent data's
// SHA-256 digest.
func (c *Core) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		done, err := c.step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Digest returns the SHA-256 digest sent in the EOF packet, valid only
// after Run has returned nil.
func (c *Core) Digest() []byte {
	return c.digest
}

// step performs one iteration of spec.md §4.5's SenderCore.step: pop a
// chunk and send it, or send keep-alive traffic if none is ready.
func (c *Core) step() (done bool, err error) {
	data, sentinel, ok := c.chunkBuffer.TryPop()
	if ok {
		if sentinel {
			digest := c.sha.Sum(nil)
			c.digest = digest
			logrus.Debugf("sender: EOF digest: %x", digest)
			redundancy := c.cfg.Redundancy
			if redundancy < MinEOFChunks {
				redundancy = MinEOFChunks
			}
			if err := c.sendChunk(digest, wire.ColorBlack, redundancy); err != nil {
				return false, err
			}
			return true, nil
		}

		c.sha.Write(data)
		redundancy := c.cfg.Redundancy
		if c.warmup {
			redundancy = MinWarmupChunks + c.cfg.Redundancy - 1
		}
		if err := c.sendChunk(data, c.currentColor, redundancy); err != nil {
			return false, err
		}
		c.previousChunk = data
		c.previousColor = c.currentColor
		c.warmup = false
		c.currentColor = c.currentColor.Opposite()
		return false, nil
	}

	if c.previousChunk != nil {
		// Resend under the color it was originally sent with: the receiver
		// either still needs the slots (chunk incomplete) or drops them as
		// duplicates of an already-emitted chunk.
		if err := c.sendChunk(c.previousChunk, c.previousColor, 1); err != nil {
			return false, err
		}
		return false, nil
	}

	logrus.Debug("sender: no data yet, sending idle filler")
	if err := c.sendChunk([]byte{0}, wire.ColorWhite, 1); err != nil {
		return false, err
	}
	return false, nil
}

// sendChunk wraps chunk bytes into chunkMaxPackets datagrams (repeating
// slots for redundancy when the chunk doesn't fill every slot), sending the
// whole sequence redundancy times, each pass paced to span ChunkDuration.
func (c *Core) sendChunk(chunk []byte, color wire.Color, redundancy int) error {
	nPackets := numPackets(len(chunk))
	maxPayload := wire.MaxPayload()

	for r := 0; r < redundancy; r++ {
		p := pacer.New(c.cfg.ChunkMaxPackets, c.cfg.ChunkDuration)
		for k := 0; k < c.cfg.ChunkMaxPackets; k++ {
			i := k % nPackets
			start := i * maxPayload
			end := start + maxPayload
			if end > len(chunk) {
				end = len(chunk)
			}
			payload := chunk[start:end]

			datagram := wire.Encode(color, uint16(nPackets), uint16(i), payload)
			if err := c.transport.SendTo(datagram); err != nil {
				return err
			}
			if c.observer != nil {
				c.observer.ObservePacket(color, uint16(nPackets), uint16(i), payload)
			}
			p.AfterPacket(k + 1)
		}
		p.Finish()
	}
	return nil
}

// numPackets is the number of distinct payload slots that cover dataLen
// bytes of chunk data: ceil(dataLen / MaxPayload), at least 1.
func numPackets(dataLen int) int {
	maxPayload := wire.MaxPayload()
	n := (dataLen + maxPayload - 1) / maxPayload
	if n < 1 {
		n = 1
	}
	return n
}
