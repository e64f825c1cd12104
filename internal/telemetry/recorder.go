// Package telemetry implements the packet-detail CSV log: an optional,
// per-packet diagnostic record distinct from the Prometheus counters in
// internal/metrics. Each record gets a sortable unique ID via
// github.com/rs/xid, the same identifier library the teacher uses to tag
// each tracked connection (cmd/exporter_example2/main.go).
package telemetry

import (
	"crypto/sha256"
	"encoding/csv"
	"fmt"
	"io"
	"sync"

	"github.com/rs/xid"

	"github.com/ClarkuCSCI/godiode/wire"
)

var header = []string{"ID", "PacketLength", "PacketColor", "NumberOfPackets", "SequenceNumber", "PayloadDigest"}

// Recorder writes one CSV row per observed packet. It is safe for
// concurrent use by a single sender or receiver goroutine that calls
// ObservePacket; Close flushes and closes the underlying writer.
type Recorder struct {
	mu  sync.Mutex
	w   *csv.Writer
	out io.Closer
}

// NewRecorder creates a Recorder writing to w, emitting the CSV header
// immediately. If w also implements io.Closer, Close closes it too.
func NewRecorder(w io.Writer) (*Recorder, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("telemetry: write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: flush header: %w", err)
	}

	r := &Recorder{w: cw}
	if c, ok := w.(io.Closer); ok {
		r.out = c
	}
	return r, nil
}

// ObservePacket implements sender.PacketObserver and receiver.PacketObserver.
func (r *Recorder) ObservePacket(color wire.Color, nPackets, seq uint16, payload []byte) {
	digest := sha256.Sum256(payload)
	row := []string{
		xid.New().String(),
		fmt.Sprintf("%d", wire.HeaderSize+len(payload)),
		colorName(color),
		fmt.Sprintf("%d", nPackets),
		fmt.Sprintf("%d", seq),
		fmt.Sprintf("%x", digest),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Write(row); err != nil {
		return // best-effort diagnostic log; a write failure here must not interrupt the transfer
	}
	r.w.Flush()
}

// Close flushes pending output and closes the underlying writer, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.w.Flush()
	err := r.w.Error()
	r.mu.Unlock()

	if r.out != nil {
		if cerr := r.out.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func colorName(c wire.Color) string {
	switch c {
	case wire.ColorRed:
		return "red"
	case wire.ColorBlue:
		return "blue"
	case wire.ColorBlack:
		return "black"
	case wire.ColorWhite:
		return "white"
	default:
		return "unknown"
	}
}
