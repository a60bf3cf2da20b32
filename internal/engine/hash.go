package engine

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/afurourrego/dungeonflip/internal/chain"
)

// Hash is a 32-byte keccak digest. It marshals as 0x-prefixed hex.
type Hash [32]byte

// Hex renders h as 0x-prefixed lowercase hex.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// IsZero reports whether every byte is zero.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 0x-prefixed (or bare) 64-char hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != 64 {
		return h, fmt.Errorf("hash: want 64 hex chars, got %d", len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("hash: %w", err)
	}
	return h, nil
}

// Keccak256 hashes the concatenation of parts with legacy Keccak-256.
func Keccak256(parts ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		d.Write(p)
	}
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

func word(v uint64) []byte {
	var b [32]byte
	binary.BigEndian.PutUint64(b[24:], v)
	return b[:]
}

// DrawDigest derives the per-card random digest:
// keccak256(seed ‖ room ‖ wallet ‖ cardIndex ‖ entropy).
func DrawDigest(seed Hash, room uint64, wallet chain.Address, cardIndex uint8, entropy Hash) Hash {
	return Keccak256(seed[:], word(room), wallet.Bytes(), []byte{cardIndex}, entropy[:])
}

// AdvanceSeed chains the session seed past a consumed draw, so the same
// card index in the same room never resolves from the same inputs twice.
func AdvanceSeed(seed, digest Hash) Hash {
	return Keccak256(seed[:], digest[:])
}

// SessionSeed derives the starting seed of a fresh run.
func SessionSeed(tokenID uint64, wallet chain.Address, entropy Hash, unix int64) Hash {
	return Keccak256(word(tokenID), wallet.Bytes(), entropy[:], word(uint64(unix)))
}
