// Package idgen centralizes identifier and token generation so the saga
// coordinator and auth core can be tested with deterministic ids.
package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
)

// Generator creates identifiers and cryptographic tokens.
type Generator interface {
	// NewID returns a random UUIDv4, used for entity primary keys whose
	// ordering carries no meaning.
	NewID() uuid.UUID

	// NewToken returns a URL-safe random token with n bytes of entropy,
	// used for session/refresh/reset tokens. The raw value is returned to
	// the caller exactly once; only its hash is ever persisted.
	NewToken(n int) (string, error)
}

// UUIDGenerator is the production Generator.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() uuid.UUID { return uuid.New() }

func (UUIDGenerator) NewToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Sequential is a deterministic Generator for tests: ids and tokens are
// derived from an incrementing counter instead of entropy.
type Sequential struct {
	seed uint64
}

func NewSequential(seed uint64) *Sequential { return &Sequential{seed: seed} }

func (s *Sequential) NewID() uuid.UUID {
	s.seed++

	var b [16]byte
	binary.BigEndian.PutUint64(b[8:], s.seed)

	id, _ := uuid.FromBytes(b[:])

	return id
}

func (s *Sequential) NewToken(n int) (string, error) {
	s.seed++

	return hex.EncodeToString([]byte{byte(s.seed), byte(s.seed >> 8)}), nil
}
