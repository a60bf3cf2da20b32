package run

import (
	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/dungeon"
	"github.com/afurourrego/dungeonflip/internal/engine"
)

// ReplayInput is everything needed to recompute a published draw.
type ReplayInput struct {
	Seed       engine.Hash        `json:"seed"`
	Room       uint64             `json:"room"`
	Wallet     chain.Address      `json:"wallet"`
	CardIndex  uint8              `json:"card_index"`
	Entropy    engine.Hash        `json:"entropy"`
	Adventurer dungeon.Adventurer `json:"adventurer"`
}

// Replay recomputes a card resolution with the production random source.
// The digest matches the Draw field of the CardResolved event.
func Replay(in ReplayInput) (engine.Hash, dungeon.Outcome) {
	digest := engine.DrawDigest(in.Seed, in.Room, in.Wallet, in.CardIndex, in.Entropy)
	return digest, dungeon.Resolve(engine.HMACSource{}.Stream(digest), in.Adventurer)
}
