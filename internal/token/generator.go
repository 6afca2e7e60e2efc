package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dtroode/accounts-server/internal/model"
)

var (
	_ model.TokenGenerator = (*Secure)(nil)
	_ model.TokenGenerator = (*Sequence)(nil)
)

// Secure generates hex tokens from a cryptographically secure source.
type Secure struct {
	size   int
	source io.Reader
}

// NewSecure creates a generator producing tokens of size random bytes
// (2*size hex characters).
func NewSecure(size int) *Secure {
	return &Secure{size: size, source: rand.Reader}
}

// Generate returns a new random token.
func (s *Secure) Generate() (string, error) {
	buf := make([]byte, s.size)
	if _, err := io.ReadFull(s.source, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Sequence is a deterministic generator for tests. Tokens have the same
// length as Secure tokens of the given size.
type Sequence struct {
	size int
	n    atomic.Uint64
}

// NewSequence creates a deterministic generator.
func NewSequence(size int) *Sequence {
	return &Sequence{size: size}
}

// Generate returns the next token in the sequence.
func (s *Sequence) Generate() (string, error) {
	return fmt.Sprintf("%0*x", 2*s.size, s.n.Add(1)), nil
}
