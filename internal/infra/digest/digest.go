// Package digest computes content digests of files on disk.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ChunkSize is the read buffer used while hashing.
const ChunkSize = 32 * 1024

// ErrIO is returned when a file cannot be opened or read.
var ErrIO = errors.New("io error")

// File returns the hex SHA-256 of the file at path, reading it in ChunkSize
// pieces.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	return sum, nil
}

// Reader returns the hex SHA-256 of everything read from r.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
