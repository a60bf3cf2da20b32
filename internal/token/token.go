// Package token models the adventurer NFT collection the dungeon consumes:
// ownership, immutable stats and the custody transfer the run engine uses
// to lock a token while it is inside the dungeon.
package token

import (
	"context"

	"github.com/afurourrego/dungeonflip/internal/chain"
)

// Stat ranges fixed at mint time.
const (
	AtkMin, AtkMax = 1, 2
	DefMin, DefMax = 1, 2
	HPMin, HPMax   = 4, 6
)

// Stats are an adventurer's immutable attributes.
type Stats struct {
	Atk uint64 `json:"atk"`
	Def uint64 `json:"def"`
	HP  uint64 `json:"hp"`
}

// Valid reports whether every stat sits inside its mint range.
func (s Stats) Valid() bool {
	return s.Atk >= AtkMin && s.Atk <= AtkMax &&
		s.Def >= DefMin && s.Def <= DefMax &&
		s.HP >= HPMin && s.HP <= HPMax
}

// StatToken is what the run engine needs from the collection.
type StatToken interface {
	OwnerOf(tokenID uint64) (chain.Address, error)
	StatsOf(tokenID uint64) (Stats, error)
	BalanceOf(owner chain.Address) uint64
	// TransferFrom moves tokenID from -> to on behalf of operator, who must
	// be from itself or approved by from.
	TransferFrom(ctx context.Context, operator, from, to chain.Address, tokenID uint64) error
}
