package inputreader

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/ClarkuCSCI/godiode/chunkbuffer"
)

func TestRegularFileReadToEOF(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "inputreader")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	want := bytes.Repeat([]byte("abcdefgh"), 100)
	if _, err := f.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	cb := chunkbuffer.New(chunkbuffer.DefaultWatermark)
	r, err := New(f, cb, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not complete")
	}

	var got []byte
	for {
		data, sentinel, ok := cb.TryPop()
		if !ok {
			t.Fatal("expected sentinel before buffer went empty")
		}
		if sentinel {
			break
		}
		got = append(got, data...)
	}

	if !bytes.Equal(got, want) {
		t.Errorf("reassembled %d bytes, want %d bytes matching input", len(got), len(want))
	}
}

func TestPipeReadRespectsCancellation(t *testing.T) {
	r0, w0, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r0.Close()
	defer w0.Close()

	cb := chunkbuffer.New(chunkbuffer.DefaultWatermark)
	reader, err := New(r0, cb, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reader.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error after cancellation: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit promptly after cancellation")
	}
}
