package dungeon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afurourrego/dungeonflip/internal/engine"
)

type constStream float64

func (c constStream) NextFloat() float64 { return float64(c) }

func scripted(floats ...float64) engine.FloatStream {
	return engine.NewScriptedSource(floats...).Stream(engine.Hash{})
}

func hmacFloats(key string, n int) []float64 {
	st := engine.HMACSource{}.Stream(engine.Keccak256([]byte(key)))
	out := make([]float64, n)
	for i := range out {
		out[i] = st.NextFloat()
	}
	return out
}

func TestDrawCard(t *testing.T) {
	tests := []struct {
		f    float64
		want CardType
	}{
		{0.0, CardMonster},
		{0.30, CardMonster},
		{0.449, CardMonster},
		{0.46, CardTrap},
		{0.59, CardTrap},
		{0.61, CardPotion},
		{0.69, CardPotion},
		{0.71, CardTreasure},
		{0.99999, CardTreasure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DrawCard(tt.f), "f=%v", tt.f)
	}
}

func TestCardTableSumsToHundred(t *testing.T) {
	var sum int
	for _, w := range Table() {
		sum += int(w.Percent)
	}
	assert.Equal(t, 100, sum)
	assert.Equal(t, 1, CardTableVersion)
}

func TestDrawDistributionRoughlyMatchesTable(t *testing.T) {
	counts := map[CardType]int{}
	const n = 20000
	floats := hmacFloats("distribution", n)
	for _, f := range floats {
		counts[DrawCard(f)]++
	}
	for _, w := range CardTable {
		got := float64(counts[w.Card]) / n * 100
		assert.InDelta(t, float64(w.Percent), got, 1.5, "%s", w.Card)
	}
}

func TestResolveTrap(t *testing.T) {
	out := Resolve(scripted(0.5, 0.9), Adventurer{Atk: 1, Def: 1, HP: 5, MaxHP: 5})
	assert.Equal(t, CardTrap, out.Card)
	assert.Equal(t, uint64(2), out.Damage)
	assert.Equal(t, uint64(3), out.HPAfter)
	assert.False(t, out.Died)

	out = Resolve(scripted(0.5, 0.1), Adventurer{Atk: 1, Def: 1, HP: 5, MaxHP: 5})
	assert.Equal(t, uint64(1), out.Damage)
}

func TestResolveTrapFloorsAtZero(t *testing.T) {
	out := Resolve(scripted(0.5, 0.9), Adventurer{Atk: 1, Def: 1, HP: 1, MaxHP: 5})
	assert.Equal(t, uint64(1), out.Damage)
	assert.Equal(t, uint64(0), out.HPAfter)
	assert.True(t, out.Died)
}

func TestResolvePotion(t *testing.T) {
	small := Resolve(scripted(0.65, 0.2), Adventurer{HP: 2, MaxHP: 6})
	assert.Equal(t, CardPotion, small.Card)
	assert.Equal(t, uint64(3), small.HPAfter)
	assert.Equal(t, uint64(1), small.Healed)
	assert.False(t, small.FullHeal)

	full := Resolve(scripted(0.65, 0.8), Adventurer{HP: 2, MaxHP: 6})
	assert.Equal(t, uint64(6), full.HPAfter)
	assert.True(t, full.FullHeal)

	capped := Resolve(scripted(0.65, 0.2), Adventurer{HP: 6, MaxHP: 6})
	assert.Equal(t, uint64(6), capped.HPAfter)
	assert.Equal(t, uint64(0), capped.Healed)
}

func TestResolveTreasure(t *testing.T) {
	out := Resolve(scripted(0.8, 0.0), Adventurer{HP: 4, MaxHP: 4})
	assert.Equal(t, CardTreasure, out.Card)
	assert.Equal(t, uint64(0), out.Gems)

	out = Resolve(scripted(0.8, 0.99), Adventurer{HP: 4, MaxHP: 4})
	assert.Equal(t, uint64(MaxTreasureGems), out.Gems)
	assert.Equal(t, uint64(4), out.HPAfter)
}

func TestRollEnemyWithinBand(t *testing.T) {
	st := engine.HMACSource{}.Stream(engine.Keccak256([]byte("enemies")))
	for i := 0; i < 100; i++ {
		e := RollEnemy(st)
		assert.GreaterOrEqual(t, e.Atk, uint64(MonsterAtkMin))
		assert.LessOrEqual(t, e.Atk, uint64(MonsterAtkMax))
		assert.LessOrEqual(t, e.Def, uint64(MonsterDefMax))
		assert.GreaterOrEqual(t, e.HP, uint64(MonsterHPMin))
		assert.LessOrEqual(t, e.HP, uint64(MonsterHPMax))
	}
}

func TestFight(t *testing.T) {
	t.Run("one hit kill", func(t *testing.T) {
		res := Fight(scripted(0.1), 2, 1, 5, Enemy{Atk: 2, Def: 0, HP: 2})
		assert.True(t, res.PlayerWon)
		assert.Equal(t, 1, res.Rounds)
		assert.Equal(t, uint64(5), res.HPAfter)
		assert.Equal(t, uint64(2), res.DamageDealt)
	})

	t.Run("player dies", func(t *testing.T) {
		res := Fight(scripted(0.9, 0.1), 1, 1, 1, Enemy{Atk: 2, Def: 1, HP: 4})
		assert.False(t, res.PlayerWon)
		assert.Equal(t, uint64(0), res.HPAfter)
		assert.Equal(t, uint64(1), res.DamageTaken)
	})

	t.Run("minimum damage is one", func(t *testing.T) {
		// atk 1 vs def 1 still deals 1; enemy atk 1 vs def 2 still deals 1.
		res := Fight(scripted(0.1, 0.1, 0.1), 1, 2, 5, Enemy{Atk: 1, Def: 1, HP: 2})
		assert.True(t, res.PlayerWon)
		assert.Equal(t, 2, res.Rounds)
		assert.Equal(t, uint64(4), res.HPAfter)
	})

	t.Run("enemy flees at round cap", func(t *testing.T) {
		res := Fight(constStream(0.95), 1, 1, 3, Enemy{Atk: 1, Def: 0, HP: 2})
		assert.True(t, res.PlayerWon)
		assert.True(t, res.EnemyFled)
		assert.Equal(t, MaxCombatRounds, res.Rounds)
		assert.Equal(t, uint64(3), res.HPAfter)
	})
}

func TestResolveMonsterLoss(t *testing.T) {
	// monster, enemy atk=2 def=1 hp=4, player misses, enemy hits twice.
	out := Resolve(scripted(0.1, 0.9, 0.9, 0.9, 0.95, 0.1, 0.95, 0.1), Adventurer{Atk: 1, Def: 1, HP: 2, MaxHP: 4})
	require.Equal(t, CardMonster, out.Card)
	require.NotNil(t, out.Enemy)
	assert.Equal(t, Enemy{Atk: 2, Def: 1, HP: 4}, *out.Enemy)
	assert.True(t, out.Died)
	assert.Equal(t, uint64(0), out.HPAfter)
	assert.Equal(t, uint64(2), out.Damage)
}

func TestCardTypeText(t *testing.T) {
	var c CardType
	require.NoError(t, c.UnmarshalText([]byte("potion")))
	assert.Equal(t, CardPotion, c)
	assert.Error(t, c.UnmarshalText([]byte("dragon")))
}
