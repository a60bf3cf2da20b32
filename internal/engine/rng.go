package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math"
)

// FloatStream yields uniformly distributed floats in [0, 1).
type FloatStream interface {
	NextFloat() float64
}

// ByteGenerator streams HMAC-SHA256 output. Each 32-byte round is
// HMAC(key, "label:round"); floats consume exactly 4 bytes.
type ByteGenerator struct {
	key          []byte
	label        string
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewByteGenerator creates a generator at the start of round 0.
func NewByteGenerator(key []byte, label string) *ByteGenerator {
	bg := &ByteGenerator{
		key:   append([]byte(nil), key...),
		label: label,
	}
	bg.generateRound()
	return bg
}

// Next returns the next byte from the generator
func (bg *ByteGenerator) Next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}

	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

// NextFloat generates the next float using exactly 4 bytes
func (bg *ByteGenerator) NextFloat() float64 {
	b0 := bg.Next()
	b1 := bg.Next()
	b2 := bg.Next()
	b3 := bg.Next()

	return bytesToFloat([4]byte{b0, b1, b2, b3})
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, bg.key)
	message := fmt.Sprintf("%s:%d", bg.label, bg.currentRound)
	h.Write([]byte(message))
	copy(bg.buffer[:], h.Sum(nil))
}

// bytesToFloat maps 4 bytes to [0, 1) as sum(b[i] / 256^(i+1)).
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		divider := math.Pow(256, float64(i+1))
		result += float64(b) / divider
	}
	return result
}
