// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"github.com/JakeFAU/loan-rate-crawler/internal/loan"
)

// Hasher implements loan.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// NewDigest returns a streaming digest; write content through it and read Hex afterwards.
func (h *Hasher) NewDigest() loan.Digest {
	return &Digest{h: sha256.New()}
}

// Digest accumulates a SHA-256 sum and the number of bytes written.
type Digest struct {
	h    hash.Hash
	size int64
}

// Write feeds p into the running sum.
func (d *Digest) Write(p []byte) (int, error) {
	n, err := d.h.Write(p)
	d.size += int64(n)
	return n, err //nolint:wrapcheck // hash.Hash never returns an error
}

// Hex returns the hex-encoded digest of everything written so far.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Size reports how many bytes were written.
func (d *Digest) Size() int64 {
	return d.size
}
