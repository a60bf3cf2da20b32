// Package dungeon holds the pure card and combat rules. Everything here is
// a deterministic function of the float stream handed in; state lives in
// the run engine.
package dungeon

import (
	"fmt"
	"math"
)

// CardType is the face of a resolved card.
type CardType uint8

const (
	CardMonster CardType = iota
	CardTrap
	CardPotion
	CardTreasure
)

var cardNames = [...]string{"monster", "trap", "potion", "treasure"}

func (c CardType) String() string {
	if int(c) < len(cardNames) {
		return cardNames[c]
	}
	return fmt.Sprintf("card(%d)", uint8(c))
}

func (c CardType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CardType) UnmarshalText(b []byte) error {
	for i, n := range cardNames {
		if n == string(b) {
			*c = CardType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown card type %q", b)
}

// CardTableVersion must be bumped whenever CardTable or the float
// consumption order changes: replays of older draws depend on it.
const CardTableVersion = 1

// Weight is one row of the draw table.
type Weight struct {
	Card    CardType `json:"card"`
	Percent uint8    `json:"percent"`
}

// CardTable is the fixed draw distribution. Percentages sum to 100.
var CardTable = [...]Weight{
	{Card: CardMonster, Percent: 45},
	{Card: CardTrap, Percent: 15},
	{Card: CardPotion, Percent: 10},
	{Card: CardTreasure, Percent: 30},
}

// Table returns a copy of CardTable.
func Table() []Weight {
	out := make([]Weight, len(CardTable))
	copy(out, CardTable[:])
	return out
}

// DrawCard maps f ∈ [0,1) onto CardTable by cumulative weight.
func DrawCard(f float64) CardType {
	roll := uint8(math.Floor(f * 100))
	if roll > 99 {
		roll = 99
	}
	var acc uint8
	for _, w := range CardTable {
		acc += w.Percent
		if roll < acc {
			return w.Card
		}
	}
	return CardTable[len(CardTable)-1].Card
}

// between maps f ∈ [0,1) uniformly onto the integers [lo, hi].
func between(f float64, lo, hi uint64) uint64 {
	span := hi - lo + 1
	v := uint64(math.Floor(f * float64(span)))
	if v >= span {
		v = span - 1
	}
	return lo + v
}

func init() {
	var sum int
	for _, w := range CardTable {
		sum += int(w.Percent)
	}
	if sum != 100 {
		panic(fmt.Sprintf("dungeon: card table sums to %d, want 100", sum))
	}
}
