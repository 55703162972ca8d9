// Package checksum provides SHA-256 helpers for downloaded media. The hashing
// writer lets a download be fingerprinted while it is copied to disk, so the
// HTTP layer can send a strong ETag without a second pass over the file.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()

	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifySHA256 verifies that the checksum of data matches the expected checksum
func VerifySHA256(reader io.Reader, expectedChecksum string) (bool, error) {
	actualChecksum, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}

	return actualChecksum == expectedChecksum, nil
}

// Writer passes writes through to an underlying writer while hashing them.
// Only bytes accepted by the underlying writer are hashed.
type Writer struct {
	w    io.Writer
	h    hash.Hash
	size int64
}

// NewWriter returns a Writer wrapping w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, h: sha256.New()}
}

func (cw *Writer) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.h.Write(p[:n])
	cw.size += int64(n)
	return n, err
}

// Sum returns the hex SHA-256 of everything written so far.
func (cw *Writer) Sum() string {
	return hex.EncodeToString(cw.h.Sum(nil))
}

// Size returns the number of bytes written so far.
func (cw *Writer) Size() int64 { return cw.size }
