// Command godiode-gen writes a file of seeded pseudo-random bytes and
// prints its SHA-256 digest, for generating reproducible test payloads to
// push through godiode-send/godiode-receive.
package main

import (
	"crypto/sha256"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	defaultByteCount = 125_000
	writeChunk       = 1000
)

func main() {
	os.Exit(run())
}

func run() int {
	logrus.SetOutput(os.Stderr)

	byteCount := flag.Int("byte-count", defaultByteCount, "number of bytes to generate")
	seed := flag.Int64("seed", rand.Int63n(1_000_000), "random seed for generating data")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: godiode-gen [flags] <output>")
		return 2
	}
	output := args[0]

	digest, err := generate(*byteCount, *seed, output)
	if err != nil {
		logrus.Errorf("generate: %v", err)
		return 1
	}

	fmt.Printf("%x\n", digest)
	return 0
}

// generate writes byteCount pseudo-random bytes seeded by seed to output,
// then returns the SHA-256 digest of what was written.
func generate(byteCount int, seed int64, output string) ([]byte, error) {
	f, err := os.Create(output)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", output, err)
	}
	defer f.Close()

	src := rand.New(rand.NewSource(seed))
	h := sha256.New()
	w := io.MultiWriter(f, h)

	buf := make([]byte, writeChunk)
	remaining := byteCount
	for remaining > 0 {
		n := writeChunk
		if remaining < n {
			n = remaining
		}
		if _, err := src.Read(buf[:n]); err != nil {
			return nil, fmt.Errorf("generate random bytes: %w", err)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return nil, fmt.Errorf("write %s: %w", output, err)
		}
		remaining -= n
	}

	return h.Sum(nil), nil
}
