package run

import (
	"fmt"
	"time"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/dungeon"
	"github.com/afurourrego/dungeonflip/internal/engine"
)

// Status is a run's position in the state machine.
type Status uint8

const (
	StatusIdle Status = iota
	StatusActive
	StatusPaused
	StatusDead
	StatusCompleted
)

var statusNames = [...]string{"idle", "active", "paused", "dead", "completed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for i, n := range statusNames {
		if n == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown run status %q", b)
}

// Session is the per-token run record.
type Session struct {
	TokenID            uint64        `json:"token_id"`
	Status             Status        `json:"status"`
	NFTDeposited       bool          `json:"nft_deposited"`
	LastKnownOwner     chain.Address `json:"last_known_owner"`
	OccupyingWallet    chain.Address `json:"occupying_wallet"`
	CurrentRoom        uint64        `json:"current_room"`
	CurrentHP          uint64        `json:"current_hp"`
	MaxHP              uint64        `json:"max_hp"`
	Atk                uint64        `json:"atk"`
	Def                uint64        `json:"def"`
	GemsCollected      uint64        `json:"gems_collected"`
	Seed               engine.Hash   `json:"seed"`
	LastCheckpointTime time.Time     `json:"last_checkpoint_time"`
	LastScore          uint64        `json:"last_score"`
	RunsStarted        uint64        `json:"runs_started"`
}

func (s *Session) adventurer() dungeon.Adventurer {
	return dungeon.Adventurer{Atk: s.Atk, Def: s.Def, HP: s.CurrentHP, MaxHP: s.MaxHP}
}

// clearAccruals wipes the scoring fields at a terminal transition so a run
// can contribute its score only once.
func (s *Session) clearAccruals() {
	s.CurrentRoom = 0
	s.CurrentHP = 0
	s.GemsCollected = 0
	s.OccupyingWallet = ""
}

// Scoring weights.
const (
	RoomWeight = 10
	GemWeight  = 1
)

// Score is roomsCleared*RoomWeight + gems*GemWeight.
func Score(roomsCleared, gems uint64) uint64 {
	return roomsCleared*RoomWeight + gems*GemWeight
}

// RoomsCleared is the number of rooms behind the adventurer.
func (s *Session) RoomsCleared() uint64 {
	if s.CurrentRoom == 0 {
		return 0
	}
	return s.CurrentRoom - 1
}
