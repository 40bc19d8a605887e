// Package cas provides the content hashing used for asset identity and change detection.
//
// All digests are BLAKE3-256. The zero Hash is reserved as the "empty" digest: it is what a
// node without any readable backing bytes hashes to, and it never compares equal in sync
// decisions.
package cas

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Hash represents a BLAKE3-256 hash value.
type Hash [Size]byte

// Empty is the sentinel digest of a node with no readable bytes.
var Empty Hash

// String returns the hexadecimal representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex characters, for logs and listings.
func (h Hash) Short() string {
	return h.String()[:12]
}

// IsZero reports whether h is the empty digest.
func (h Hash) IsZero() bool {
	return h == Empty
}

// Bytes returns an opaque copy of the digest suitable only for equality comparison.
func (h Hash) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, h[:])
	return out
}

// ParseHash decodes a hex string produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if s == "" {
		return h, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(raw) != Size {
		return h, fmt.Errorf("invalid hash length %d, expected %d", len(raw), Size)
	}
	copy(h[:], raw)
	return h, nil
}

// Sum computes the BLAKE3 hash of the given data.
func Sum(data []byte) Hash {
	return blake3.Sum256(data)
}

// SumReader streams r through BLAKE3 and returns the digest and the number of bytes read.
func SumReader(r io.Reader) (Hash, int64, error) {
	h := NewHasher()
	n, err := io.Copy(h, r)
	if err != nil {
		return Hash{}, n, fmt.Errorf("failed to hash stream: %w", err)
	}
	return h.Sum(), n, nil
}

// SumFile hashes the file at path without loading it into memory.
func SumFile(path string) (Hash, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Hash{}, 0, err
	}
	defer f.Close()
	return SumReader(f)
}

// Hasher accumulates bytes for one digest.
type Hasher struct {
	h hash.Hash
}

// NewHasher creates an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New(Size, nil)}
}

// Write implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// WriteHash appends a child digest.
func (h *Hasher) WriteHash(child Hash) {
	h.h.Write(child[:])
}

// Sum returns the digest of everything written so far.
func (h *Hasher) Sum() Hash {
	var out Hash
	copy(out[:], h.h.Sum(nil))
	return out
}
