package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

// ErrNotFound is returned when a digest has no stored body.
var ErrNotFound = errors.New("storage: entity not found")

// EntityStore is a content-addressed store of response bodies. Bodies are
// addressed by the hex digest of their content, so writes are idempotent
// and a body never changes after it is written. Writes must be atomic
// against concurrent readers: partial bodies are never observable.
//
// Implementations must be thread-safe.
type EntityStore interface {
	// Open returns a stream over the body with the given digest,
	// or ErrNotFound.
	Open(digest string) (io.ReadCloser, error)
	// Read returns the body with the given digest, or ErrNotFound.
	Read(digest string) ([]byte, error)
	// Write stores the body read from r and returns its digest and size.
	Write(r io.Reader) (digest string, size int64, err error)
	// Purge removes the body with the given digest.
	Purge(digest string) error
}

// contentDigest computes the address of a body.
func contentDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// keyDigest hashes an opaque cache key for stores whose native keys are
// constrained (file names, memcached keys).
func keyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
