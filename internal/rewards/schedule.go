package rewards

import (
	"fmt"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/progress"
)

// Slots is the number of paid ranks.
const Slots = progress.TopN

// Schedule is the prize share per rank, in percent.
var Schedule = [Slots]uint64{30, 20, 15, 10, 8, 6, 4, 3, 2, 2}

// NoWinner marks an empty slot. Its share is carried into the next week.
const NoWinner chain.Address = "0x000000000000000000000000000000000000dead"

// Payout splits total by Schedule. Rounding remainder goes to first place
// and shares of NoWinner slots are returned as carried. The amounts plus
// carried always equal total.
func Payout(total uint64, winners [Slots]chain.Address) (amounts [Slots]uint64, carried uint64) {
	var shares [Slots]uint64
	var sum uint64
	for i, p := range Schedule {
		shares[i] = total/100*p + total%100*p/100
		sum += shares[i]
	}
	shares[0] += total - sum

	for i, w := range winners {
		if w == NoWinner {
			carried += shares[i]
			continue
		}
		amounts[i] = shares[i]
	}
	return amounts, carried
}

// WinnersFrom pads a ranking out to Slots with NoWinner.
func WinnersFrom(top []progress.Entry) [Slots]chain.Address {
	var out [Slots]chain.Address
	for i := range out {
		out[i] = NoWinner
		if i < len(top) {
			out[i] = top[i].Player
		}
	}
	return out
}

func validateWinners(winners [Slots]chain.Address) error {
	seen := make(map[chain.Address]int, Slots)
	named := 0
	for i, w := range winners {
		if w.IsZero() {
			return chain.ErrInvalidAddress.With("winner slot %d is the zero address", i+1)
		}
		if w == NoWinner {
			continue
		}
		if j, dup := seen[w]; dup {
			return ErrDuplicateWinner.With("%s holds slots %d and %d", w, j+1, i+1)
		}
		seen[w] = i
		named++
	}
	if named == 0 {
		return ErrNoWinners
	}
	return nil
}

func init() {
	var sum uint64
	for _, p := range Schedule {
		sum += p
	}
	if sum != 100 {
		panic(fmt.Sprintf("rewards: schedule sums to %d, want 100", sum))
	}
}
