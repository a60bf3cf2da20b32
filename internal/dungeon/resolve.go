package dungeon

import "github.com/afurourrego/dungeonflip/internal/engine"

// Card effect tuning.
const (
	TrapDamageMin, TrapDamageMax = 1, 2
	MaxTreasureGems              = 15
	PotionSmallHeal              = 1
)

// Adventurer is the slice of run state a card can touch.
type Adventurer struct {
	Atk   uint64 `json:"atk"`
	Def   uint64 `json:"def"`
	HP    uint64 `json:"hp"`
	MaxHP uint64 `json:"max_hp"`
}

// Outcome is the full effect of one resolved card.
type Outcome struct {
	Card     CardType      `json:"card"`
	HPBefore uint64        `json:"hp_before"`
	HPAfter  uint64        `json:"hp_after"`
	Gems     uint64        `json:"gems"`
	Damage   uint64        `json:"damage,omitempty"`
	Healed   uint64        `json:"healed,omitempty"`
	FullHeal bool          `json:"full_heal,omitempty"`
	Enemy    *Enemy        `json:"enemy,omitempty"`
	Combat   *CombatResult `json:"combat,omitempty"`
	Died     bool          `json:"died"`
}

// Resolve draws and applies one card. HP stays within [0, MaxHP].
func Resolve(stream engine.FloatStream, adv Adventurer) Outcome {
	out := Outcome{
		Card:     DrawCard(stream.NextFloat()),
		HPBefore: adv.HP,
		HPAfter:  adv.HP,
	}

	switch out.Card {
	case CardMonster:
		enemy := RollEnemy(stream)
		res := Fight(stream, adv.Atk, adv.Def, adv.HP, enemy)
		out.Enemy = &enemy
		out.Combat = &res
		out.Damage = res.DamageTaken
		out.HPAfter = res.HPAfter

	case CardTrap:
		dmg := between(stream.NextFloat(), TrapDamageMin, TrapDamageMax)
		dmg = min(dmg, adv.HP)
		out.Damage = dmg
		out.HPAfter = adv.HP - dmg

	case CardPotion:
		if stream.NextFloat() < 0.5 {
			out.HPAfter = min(adv.HP+PotionSmallHeal, adv.MaxHP)
		} else {
			out.HPAfter = adv.MaxHP
			out.FullHeal = true
		}
		out.Healed = out.HPAfter - adv.HP

	case CardTreasure:
		out.Gems = between(stream.NextFloat(), 0, MaxTreasureGems)
	}

	if out.HPAfter > adv.MaxHP {
		out.HPAfter = adv.MaxHP
	}
	out.Died = out.HPAfter == 0
	return out
}
