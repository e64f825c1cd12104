package receiver

import (
	"bytes"
	"context"
	"crypto/sha256"
	"sync"
	"testing"

	"github.com/ClarkuCSCI/godiode/wire"
)

// fakeTransport replays a fixed sequence of encoded datagrams, then blocks
// until Close is called (simulating "no more traffic").
type fakeTransport struct {
	mu        sync.Mutex
	datagrams [][]byte
	i         int
	done      chan struct{}
}

func newFakeTransport(datagrams [][]byte) *fakeTransport {
	return &fakeTransport{datagrams: datagrams, done: make(chan struct{})}
}

func (f *fakeTransport) ReadDatagram(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.i >= len(f.datagrams) {
		<-f.done // block forever (until test closes it via Close)
		return 0, errClosed
	}
	n := copy(buf, f.datagrams[f.i])
	f.i++
	return n, nil
}

func (f *fakeTransport) Close() { close(f.done) }

var errClosed = &closedError{}

type closedError struct{}

func (*closedError) Error() string { return "fake transport closed" }

func buildChunkDatagrams(color wire.Color, data []byte) [][]byte {
	maxPayload := wire.MaxPayload()
	nPackets := (len(data) + maxPayload - 1) / maxPayload
	if nPackets < 1 {
		nPackets = 1
	}
	var out [][]byte
	for i := 0; i < nPackets; i++ {
		start := i * maxPayload
		end := start + maxPayload
		if end > len(data) {
			end = len(data)
		}
		out = append(out, wire.Encode(color, uint16(nPackets), uint16(i), data[start:end]))
	}
	return out
}

func runToCompletion(t *testing.T, datagrams [][]byte) ([]byte, error) {
	t.Helper()
	ft := newFakeTransport(datagrams)
	defer ft.Close()

	core := New(ft, nil)
	var out bytes.Buffer
	writer := NewOutputWriter(core, &out)

	errCh := make(chan error, 1)
	go func() { errCh <- core.ReceiveLoop(context.Background()) }()

	writeErr := writer.Run()
	<-errCh
	return out.Bytes(), writeErr
}

func TestTinyRoundTrip(t *testing.T) {
	data := []byte("Hello\n")
	var datagrams [][]byte
	datagrams = append(datagrams, buildChunkDatagrams(wire.ColorRed, data)...)
	digest := sha256.Sum256(data)
	datagrams = append(datagrams, wire.Encode(wire.ColorBlack, 1, 0, digest[:]))

	out, err := runToCompletion(t, datagrams)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("output = %q, want %q", out, data)
	}
}

func TestDigestMismatchReturnsError(t *testing.T) {
	data := []byte("Hello\n")
	var datagrams [][]byte
	datagrams = append(datagrams, buildChunkDatagrams(wire.ColorRed, data)...)
	badDigest := sha256.Sum256([]byte("different"))
	datagrams = append(datagrams, wire.Encode(wire.ColorBlack, 1, 0, badDigest[:]))

	_, err := runToCompletion(t, datagrams)
	if err != ErrDigestMismatch {
		t.Errorf("err = %v, want ErrDigestMismatch", err)
	}
}

func TestDuplicateSuppression(t *testing.T) {
	data := []byte("duplicate me")
	chunkDatagrams := buildChunkDatagrams(wire.ColorRed, data)

	var datagrams [][]byte
	for i := 0; i < 3; i++ { // send 3 copies of every (color, seq)
		datagrams = append(datagrams, chunkDatagrams...)
	}
	digest := sha256.Sum256(data)
	datagrams = append(datagrams, wire.Encode(wire.ColorBlack, 1, 0, digest[:]))

	out, err := runToCompletion(t, datagrams)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("output = %q, want %q (chunk emitted exactly once)", out, data)
	}
}

func TestOutOfOrderPacketsReassembleBySeq(t *testing.T) {
	// Force multiple packets by using a chunk larger than one payload slot.
	data := bytes.Repeat([]byte("0123456789"), wire.MaxPayload()/5)
	chunkDatagrams := buildChunkDatagrams(wire.ColorRed, data)

	// Reverse arrival order.
	reversed := make([][]byte, len(chunkDatagrams))
	for i, dg := range chunkDatagrams {
		reversed[len(chunkDatagrams)-1-i] = dg
	}

	digest := sha256.Sum256(data)
	datagrams := append(reversed, wire.Encode(wire.ColorBlack, 1, 0, digest[:]))

	out, err := runToCompletion(t, datagrams)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("output bytes do not match input despite identical digest check passing")
	}
}

func TestWhitePacketsAreIgnored(t *testing.T) {
	data := []byte("hi")
	var datagrams [][]byte
	datagrams = append(datagrams, wire.Encode(wire.ColorWhite, 1, 0, []byte{0}))
	datagrams = append(datagrams, buildChunkDatagrams(wire.ColorRed, data)...)
	digest := sha256.Sum256(data)
	datagrams = append(datagrams, wire.Encode(wire.ColorBlack, 1, 0, digest[:]))

	out, err := runToCompletion(t, datagrams)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("output = %q, want %q", out, data)
	}
}

func TestMissingEOFReturnsError(t *testing.T) {
	ft := newFakeTransport(nil)
	core := New(ft, nil)
	var out bytes.Buffer
	writer := NewOutputWriter(core, &out)

	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		core.ReceiveLoop(ctx)
	}()

	if err := writer.Run(); err != ErrMissingEOF {
		t.Errorf("err = %v, want ErrMissingEOF", err)
	}
}
