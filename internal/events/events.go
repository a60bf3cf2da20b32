// Package events defines the notifications emitted by the ledger
// components and the bus that fans them out to journals and live
// subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/dungeon"
	"github.com/afurourrego/dungeonflip/internal/engine"
)

// Type names an event kind on the wire.
type Type string

const (
	TypeRunStarted         Type = "RunStarted"
	TypeCardResolved       Type = "CardResolved"
	TypeRunPaused          Type = "RunPaused"
	TypeRunDied            Type = "RunDied"
	TypeRunExited          Type = "RunExited"
	TypeRunWithdrawn       Type = "RunWithdrawn"
	TypeScoreUpdated       Type = "ScoreUpdated"
	TypeWeekAdvanced       Type = "WeekAdvanced"
	TypeRewardsDistributed Type = "RewardsDistributed"
	TypeFeeDistributed     Type = "FeeDistributed"
	TypeBucketWithdrawn    Type = "BucketWithdrawn"
)

// Event is implemented by every payload.
type Event interface {
	EventType() Type
}

// TokenScoped events concern one adventurer token.
type TokenScoped interface {
	Token() uint64
}

type RunStarted struct {
	TokenID uint64        `json:"token_id"`
	Wallet  chain.Address `json:"wallet"`
	Room    uint64        `json:"room"`
	Resumed bool          `json:"resumed"`
}

type CardResolved struct {
	TokenID   uint64           `json:"token_id"`
	CardIndex uint8            `json:"card_index"`
	CardType  dungeon.CardType `json:"card_type"`
	Room      uint64           `json:"room"`
	HP        uint64           `json:"hp"`
	Gems      uint64           `json:"gems"`
	Draw      engine.Hash      `json:"draw"`
}

type RunPaused struct {
	TokenID uint64 `json:"token_id"`
	Room    uint64 `json:"room"`
	HP      uint64 `json:"hp"`
	Gems    uint64 `json:"gems"`
}

type RunDied struct {
	TokenID uint64 `json:"token_id"`
	Room    uint64 `json:"room"`
	Gems    uint64 `json:"gems"`
}

type RunExited struct {
	TokenID      uint64 `json:"token_id"`
	RoomsCleared uint64 `json:"rooms_cleared"`
	Gems         uint64 `json:"gems"`
	Score        uint64 `json:"score"`
}

// RunWithdrawn marks a claim after death or a forced withdrawal.
type RunWithdrawn struct {
	TokenID uint64        `json:"token_id"`
	To      chain.Address `json:"to"`
	Forced  bool          `json:"forced"`
	Score   uint64        `json:"score"`
}

type ScoreUpdated struct {
	Player      chain.Address `json:"player"`
	Delta       uint64        `json:"delta"`
	TotalScore  uint64        `json:"total_score"`
	WeeklyScore uint64        `json:"weekly_score"`
	Week        uint64        `json:"week"`
}

type WeekAdvanced struct {
	OldWeek        uint64 `json:"old_week"`
	NewWeek        uint64 `json:"new_week"`
	CarriedBalance uint64 `json:"carried_balance"`
}

type RewardsDistributed struct {
	Week    uint64          `json:"week"`
	Winners []chain.Address `json:"winners"`
	Amounts []uint64        `json:"amounts"`
	Total   uint64          `json:"total"`
}

type FeeDistributed struct {
	Payer     chain.Address `json:"payer"`
	Amount    uint64        `json:"amount"`
	Rewards   uint64        `json:"rewards"`
	Dev       uint64        `json:"dev"`
	Marketing uint64        `json:"marketing"`
}

type BucketWithdrawn struct {
	Bucket string        `json:"bucket"`
	To     chain.Address `json:"to"`
	Amount uint64        `json:"amount"`
}

func (RunStarted) EventType() Type         { return TypeRunStarted }
func (CardResolved) EventType() Type       { return TypeCardResolved }
func (RunPaused) EventType() Type          { return TypeRunPaused }
func (RunDied) EventType() Type            { return TypeRunDied }
func (RunExited) EventType() Type          { return TypeRunExited }
func (RunWithdrawn) EventType() Type       { return TypeRunWithdrawn }
func (ScoreUpdated) EventType() Type       { return TypeScoreUpdated }
func (WeekAdvanced) EventType() Type       { return TypeWeekAdvanced }
func (RewardsDistributed) EventType() Type { return TypeRewardsDistributed }
func (FeeDistributed) EventType() Type     { return TypeFeeDistributed }
func (BucketWithdrawn) EventType() Type    { return TypeBucketWithdrawn }

func (e RunStarted) Token() uint64   { return e.TokenID }
func (e CardResolved) Token() uint64 { return e.TokenID }
func (e RunPaused) Token() uint64    { return e.TokenID }
func (e RunDied) Token() uint64      { return e.TokenID }
func (e RunExited) Token() uint64    { return e.TokenID }
func (e RunWithdrawn) Token() uint64 { return e.TokenID }

// Envelope is an event as it leaves the bus.
type Envelope struct {
	Seq     uint64    `json:"seq"`
	Type    Type      `json:"type"`
	TokenID uint64    `json:"token_id,omitempty"`
	Time    time.Time `json:"time"`
	Data    Event     `json:"data"`
}

// Decode rebuilds the typed payload of a journaled event.
func Decode(t Type, raw []byte) (Event, error) {
	var ev Event
	switch t {
	case TypeRunStarted:
		ev = &RunStarted{}
	case TypeCardResolved:
		ev = &CardResolved{}
	case TypeRunPaused:
		ev = &RunPaused{}
	case TypeRunDied:
		ev = &RunDied{}
	case TypeRunExited:
		ev = &RunExited{}
	case TypeRunWithdrawn:
		ev = &RunWithdrawn{}
	case TypeScoreUpdated:
		ev = &ScoreUpdated{}
	case TypeWeekAdvanced:
		ev = &WeekAdvanced{}
	case TypeRewardsDistributed:
		ev = &RewardsDistributed{}
	case TypeFeeDistributed:
		ev = &FeeDistributed{}
	case TypeBucketWithdrawn:
		ev = &BucketWithdrawn{}
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if err := json.Unmarshal(raw, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return ev, nil
}
