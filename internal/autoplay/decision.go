package autoplay

import (
	"fmt"
	"math"
	"strings"

	"github.com/afurourrego/dungeonflip/internal/dungeon"
)

// Action is what a strategy asks for next.
type Action string

const (
	ActionCard  Action = "card"
	ActionExit  Action = "exit"
	ActionPause Action = "pause"
)

// Decision is a parsed decide() result.
type Decision struct {
	Action Action `json:"action"`
	Card   uint8  `json:"card,omitempty"`
}

// View is the run state a strategy sees.
type View struct {
	TokenID      uint64           `json:"token_id"`
	Room         uint64           `json:"room"`
	MaxRooms     uint64           `json:"max_rooms"`
	CardsPerRoom uint8            `json:"cards_per_room"`
	HP           uint64           `json:"hp"`
	MaxHP        uint64           `json:"max_hp"`
	Atk          uint64           `json:"atk"`
	Def          uint64           `json:"def"`
	Gems         uint64           `json:"gems"`
	Score        uint64           `json:"score"`
	Draws        int              `json:"draws"`
	Last         *dungeon.Outcome `json:"last"`
}

// parseDecision accepts a card index, "exit", "pause", or an object
// {action, card}.
func parseDecision(v any) (Decision, error) {
	switch x := v.(type) {
	case int64:
		return cardDecision(float64(x))
	case float64:
		return cardDecision(x)
	case string:
		switch a := Action(strings.ToLower(strings.TrimSpace(x))); a {
		case ActionExit, ActionPause:
			return Decision{Action: a}, nil
		}
		return Decision{}, fmt.Errorf("decide() returned unknown action %q", x)
	case map[string]any:
		action, _ := x["action"].(string)
		if Action(action) == ActionCard || action == "" {
			return parseDecision(x["card"])
		}
		return parseDecision(action)
	case nil:
		return Decision{}, fmt.Errorf("decide() returned nothing")
	default:
		return Decision{}, fmt.Errorf("decide() returned unsupported %T", v)
	}
}

func cardDecision(f float64) (Decision, error) {
	if f < 0 || f > math.MaxUint8 || f != math.Trunc(f) {
		return Decision{}, fmt.Errorf("card index %v out of range", f)
	}
	return Decision{Action: ActionCard, Card: uint8(f)}, nil
}
