package engine

import (
	"crypto/rand"
	"fmt"
	"sync"
)

// EntropySource is the block-entropy analogue: every call returns a value
// the caller could not predict when submitting.
type EntropySource interface {
	Entropy() (Hash, error)
}

// RandomSource turns a draw digest into the float stream that resolves a card.
type RandomSource interface {
	Stream(digest Hash) FloatStream
}

// StreamLabel is the HMAC message label for card streams. Changing it
// changes every outcome and needs a card-table version bump.
const StreamLabel = "dungeon-card"

// HMACSource is the production RandomSource.
type HMACSource struct{}

func (HMACSource) Stream(digest Hash) FloatStream {
	return NewByteGenerator(digest[:], StreamLabel)
}

// CryptoEntropy reads from crypto/rand.
type CryptoEntropy struct{}

func (CryptoEntropy) Entropy() (Hash, error) {
	var h Hash
	if _, err := rand.Read(h[:]); err != nil {
		return h, fmt.Errorf("entropy: %w", err)
	}
	return h, nil
}

// CounterEntropy is a deterministic source for simulations and replays:
// the n-th value is keccak256(base ‖ n).
type CounterEntropy struct {
	mu   sync.Mutex
	base Hash
	n    uint64
}

// NewCounterEntropy seeds a deterministic entropy sequence.
func NewCounterEntropy(base Hash) *CounterEntropy {
	return &CounterEntropy{base: base}
}

func (c *CounterEntropy) Entropy() (Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return Keccak256(c.base[:], word(c.n)), nil
}

// ScriptedSource replays a fixed float sequence across all draws, then
// falls back to the HMAC stream of each digest. Tests use it to force
// specific cards.
type ScriptedSource struct {
	mu     sync.Mutex
	floats []float64
}

// NewScriptedSource queues floats to be handed out in order.
func NewScriptedSource(floats ...float64) *ScriptedSource {
	return &ScriptedSource{floats: append([]float64(nil), floats...)}
}

// Push appends more floats to the queue.
func (s *ScriptedSource) Push(floats ...float64) {
	s.mu.Lock()
	s.floats = append(s.floats, floats...)
	s.mu.Unlock()
}

// Remaining reports how many scripted floats are still queued.
func (s *ScriptedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.floats)
}

func (s *ScriptedSource) Stream(digest Hash) FloatStream {
	return &scriptedStream{src: s, fallback: NewByteGenerator(digest[:], StreamLabel)}
}

type scriptedStream struct {
	src      *ScriptedSource
	fallback *ByteGenerator
}

func (st *scriptedStream) NextFloat() float64 {
	st.src.mu.Lock()
	defer st.src.mu.Unlock()
	if len(st.src.floats) == 0 {
		return st.fallback.NextFloat()
	}
	f := st.src.floats[0]
	st.src.floats = st.src.floats[1:]
	return f
}
