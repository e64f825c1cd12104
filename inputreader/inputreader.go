// Package inputreader streams the sender's input into a chunkbuffer.ChunkBuffer.
// Regular files are read with a single blocking call per chunk; pipes and
// character devices are read incrementally so that data already available
// is forwarded without waiting for a full chunk to accumulate.
package inputreader

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ClarkuCSCI/godiode/chunkbuffer"
)

// errCancelled signals that ctx was cancelled mid-read; Run treats it the
// same as a clean EOF.
var errCancelled = errors.New("inputreader: cancelled")

// readinessQuantum bounds how long a stream-mode read blocks before
// rechecking for cancellation, keeping shutdown responsive per spec.md §5.
const readinessQuantum = 100 * time.Millisecond

// Reader streams bytes from src into a ChunkBuffer until EOF or ctx is
// cancelled.
type Reader struct {
	src          *os.File
	chunkBuffer  *chunkbuffer.ChunkBuffer
	maxDataBytes int
	regularFile  bool
}

// New creates a Reader over src (typically os.Stdin), detecting whether src
// is a regular file (single blocking reads suffice) or a pipe/character
// device (incremental reads with a readiness quantum).
func New(src *os.File, cb *chunkbuffer.ChunkBuffer, chunkMaxDataBytes int) (*Reader, error) {
	info, err := src.Stat()
	if err != nil {
		return nil, err
	}

	return &Reader{
		src:          src,
		chunkBuffer:  cb,
		maxDataBytes: chunkMaxDataBytes,
		regularFile:  info.Mode().IsRegular(),
	}, nil
}

// Run reads until EOF or ctx cancellation, appending each read to the
// ChunkBuffer and closing it (pushing the EOF sentinel) on return.
func (r *Reader) Run(ctx context.Context) error {
	defer r.chunkBuffer.Close()

	buf := make([]byte, r.maxDataBytes)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := r.read(ctx, buf)
		if n > 0 {
			logrus.Debugf("inputreader: read %d bytes", n)
			r.chunkBuffer.Append(buf[:n], r.maxDataBytes)
		}
		if err == io.EOF || n == 0 && err == nil {
			return nil
		}
		if err != nil {
			if err == errCancelled {
				return nil
			}
			return err
		}
	}
}

// read performs one logical read: a single blocking read for a regular
// file, or a readiness-polled incremental read for a pipe/character device.
func (r *Reader) read(ctx context.Context, buf []byte) (int, error) {
	if r.regularFile {
		n, err := r.src.Read(buf)
		if err == io.EOF {
			return n, io.EOF
		}
		return n, err
	}

	for {
		if ctx.Err() != nil {
			return 0, errCancelled
		}

		if err := r.src.SetReadDeadline(time.Now().Add(readinessQuantum)); err == nil {
			n, err := r.src.Read(buf)
			if isTimeout(err) {
				continue
			}
			return n, err
		}

		// The underlying file doesn't support deadlines (some platforms'
		// stdin); fall back to a plain blocking read.
		return r.src.Read(buf)
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
