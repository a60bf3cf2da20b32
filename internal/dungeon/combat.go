package dungeon

import "github.com/afurourrego/dungeonflip/internal/engine"

// Combat tuning.
const (
	PlayerHitChance = 0.80
	EnemyHitChance  = 0.70
	MaxCombatRounds = 100

	MonsterAtkMin, MonsterAtkMax = 1, 2
	MonsterDefMin, MonsterDefMax = 0, 1
	MonsterHPMin, MonsterHPMax   = 2, 4
)

// Enemy is a monster rolled for one encounter.
type Enemy struct {
	Atk uint64 `json:"atk"`
	Def uint64 `json:"def"`
	HP  uint64 `json:"hp"`
}

// RollEnemy consumes three floats: atk, def, hp.
func RollEnemy(stream engine.FloatStream) Enemy {
	return Enemy{
		Atk: between(stream.NextFloat(), MonsterAtkMin, MonsterAtkMax),
		Def: between(stream.NextFloat(), MonsterDefMin, MonsterDefMax),
		HP:  between(stream.NextFloat(), MonsterHPMin, MonsterHPMax),
	}
}

// CombatResult summarises one fight.
type CombatResult struct {
	Rounds      int    `json:"rounds"`
	PlayerWon   bool   `json:"player_won"`
	EnemyFled   bool   `json:"enemy_fled,omitempty"`
	DamageDealt uint64 `json:"damage_dealt"`
	DamageTaken uint64 `json:"damage_taken"`
	HPAfter     uint64 `json:"hp_after"`
}

func strike(atk, def uint64) uint64 {
	if atk > def+1 {
		return atk - def
	}
	return 1
}

// Fight runs the whole exchange inside one call. The player swings first
// each round; a miss consumes its float like a hit does.
func Fight(stream engine.FloatStream, atk, def, hp uint64, enemy Enemy) CombatResult {
	res := CombatResult{HPAfter: hp}
	if hp == 0 {
		return res
	}
	enemyHP := enemy.HP
	toEnemy := strike(atk, enemy.Def)
	toPlayer := strike(enemy.Atk, def)

	for res.Rounds < MaxCombatRounds {
		res.Rounds++

		if stream.NextFloat() < PlayerHitChance {
			d := min(toEnemy, enemyHP)
			enemyHP -= d
			res.DamageDealt += d
			if enemyHP == 0 {
				res.PlayerWon = true
				return res
			}
		}

		if stream.NextFloat() < EnemyHitChance {
			d := min(toPlayer, res.HPAfter)
			res.HPAfter -= d
			res.DamageTaken += d
			if res.HPAfter == 0 {
				return res
			}
		}
	}

	res.PlayerWon = true
	res.EnemyFled = true
	return res
}
