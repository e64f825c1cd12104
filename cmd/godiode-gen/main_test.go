package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateIsDeterministicForSameSeed(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.bin")
	pathB := filepath.Join(dir, "b.bin")

	digestA, err := generate(10000, 42, pathA)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	digestB, err := generate(10000, 42, pathB)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if !bytes.Equal(digestA, digestB) {
		t.Error("expected identical digests for identical seed and byte count")
	}

	contentsA, err := os.ReadFile(pathA)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	contentsB, err := os.ReadFile(pathB)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(contentsA, contentsB) {
		t.Error("expected identical file contents for identical seed")
	}
	if len(contentsA) != 10000 {
		t.Errorf("wrote %d bytes, want 10000", len(contentsA))
	}
}

func TestGenerateDifferentSeedsDiffer(t *testing.T) {
	dir := t.TempDir()
	digestA, err := generate(5000, 1, filepath.Join(dir, "a.bin"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	digestB, err := generate(5000, 2, filepath.Join(dir, "b.bin"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if bytes.Equal(digestA, digestB) {
		t.Error("expected different digests for different seeds")
	}
}
