package autoplay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/engine"
	"github.com/afurourrego/dungeonflip/internal/run"
	"github.com/afurourrego/dungeonflip/internal/token"
	"github.com/afurourrego/dungeonflip/internal/world"
)

var (
	alice = chain.MustAddress("0x00000000000000000000000000000000000a11ce")

	treasure2 = []float64{0.80, 0.13}
	trapMax   = []float64{0.50, 0.99}
)

func newWorld(t *testing.T, maxRooms uint64) (*world.World, *engine.ScriptedSource) {
	t.Helper()
	script := engine.NewScriptedSource()
	w, err := world.New(world.Options{
		Addresses: world.Addresses{
			Owner:     chain.MustAddress("0x00000000000000000000000000000000000000a0"),
			Fees:      chain.MustAddress("0x00000000000000000000000000000000000000f1"),
			Ledger:    chain.MustAddress("0x00000000000000000000000000000000000000f2"),
			Rewards:   chain.MustAddress("0x00000000000000000000000000000000000000f3"),
			RunEngine: chain.MustAddress("0x00000000000000000000000000000000000000f4"),
		},
		EntryFee: 100,
		MaxRooms: maxRooms,
		Clock:    chain.NewManualClock(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)),
		Entropy:  engine.NewCounterEntropy(engine.Keccak256([]byte("autoplay"))),
		Random:   script,
	})
	require.NoError(t, err)
	require.NoError(t, w.Faucet(alice, 1000))
	return w, script
}

func mint(t *testing.T, w *world.World, hp uint64) uint64 {
	t.Helper()
	id, err := w.Tokens.Mint(alice, token.Stats{Atk: 1, Def: 1, HP: hp})
	require.NoError(t, err)
	require.NoError(t, w.Tokens.SetApprovalForAll(alice, w.Addresses.RunEngine, true))
	return id
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Decision
		wantErr bool
	}{
		{"int", int64(2), Decision{Action: ActionCard, Card: 2}, false},
		{"float", float64(1), Decision{Action: ActionCard, Card: 1}, false},
		{"fraction", 1.5, Decision{}, true},
		{"negative", int64(-1), Decision{}, true},
		{"too big", int64(256), Decision{}, true},
		{"exit", "exit", Decision{Action: ActionExit}, false},
		{"pause upper", " PAUSE ", Decision{Action: ActionPause}, false},
		{"unknown", "flee", Decision{}, true},
		{"object card", map[string]any{"action": "card", "card": int64(3)}, Decision{Action: ActionCard, Card: 3}, false},
		{"object exit", map[string]any{"action": "exit"}, Decision{Action: ActionExit}, false},
		{"object no card", map[string]any{}, Decision{}, true},
		{"nil", nil, Decision{}, true},
		{"bool", true, Decision{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDecision(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadRejectsBadStrategies(t *testing.T) {
	assert.ErrorContains(t, NewVM().Load(`var x = 1;`), "decide()")
	assert.ErrorContains(t, NewVM().Load(`function decide( {`), "strategy execution error")
	assert.ErrorContains(t, NewVM().Load(`while (true) {}`), "timed out")
}

func TestDecideSeesRunFields(t *testing.T) {
	vm := NewVM()
	require.NoError(t, vm.Load(`
		function decide(run) {
			log("room", run.room, "hp", run.hp);
			if (typeof require !== "undefined" || typeof eval !== "undefined") return "exit";
			return { action: "card", card: run.cards_per_room - 1 };
		}
	`))

	d, err := vm.Decide(View{Room: 3, HP: 4, CardsPerRoom: 4})
	require.NoError(t, err)
	assert.Equal(t, Decision{Action: ActionCard, Card: 3}, d)

	logs := vm.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "room 3 hp 4", logs[0].Message)
}

func TestDecideTimesOut(t *testing.T) {
	vm := NewVM()
	require.NoError(t, vm.Load(`function decide(run) { for (;;) {} }`))

	_, err := vm.Decide(View{})
	assert.ErrorContains(t, err, "timed out")

	// The runtime stays usable after an interrupt.
	require.NoError(t, vm.Load(`function decide(run) { return "exit"; }`))
	d, err := vm.Decide(View{})
	require.NoError(t, err)
	assert.Equal(t, ActionExit, d.Action)
}

func TestPlayBanksScore(t *testing.T) {
	w, script := newWorld(t, 0)
	id := mint(t, w, 5)
	for i := 0; i < 3; i++ {
		script.Push(treasure2...)
	}

	p, err := NewPlayer(w.Runs, `
		function decide(run) {
			if (run.draws >= 3) return "exit";
			return run.draws;
		}
	`, nil)
	require.NoError(t, err)

	res, err := p.Play(context.Background(), alice, id, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Draws)
	assert.Equal(t, uint64(3), res.Rooms)
	assert.Equal(t, uint64(6), res.Gems)
	assert.Equal(t, run.Score(3, 6), res.Score)
	assert.Equal(t, 3, res.Cards["treasure"])
	assert.False(t, res.Died)

	owner, err := w.Tokens.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
}

func TestPlayClaimsAfterDeath(t *testing.T) {
	w, script := newWorld(t, 0)
	id := mint(t, w, 4)
	script.Push(trapMax...)
	script.Push(trapMax...)

	p, err := NewPlayer(w.Runs, `function decide(run) { return 0; }`, nil)
	require.NoError(t, err)

	res, err := p.Play(context.Background(), alice, id, 100)
	require.NoError(t, err)
	assert.True(t, res.Died)
	assert.Equal(t, 2, res.Draws)
	assert.Equal(t, run.Score(1, 0), res.Score)

	owner, err := w.Tokens.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, alice, owner, "claim returns the token")
}

func TestPlayPauses(t *testing.T) {
	w, script := newWorld(t, 0)
	id := mint(t, w, 5)
	script.Push(treasure2...)

	p, err := NewPlayer(w.Runs, `function decide(run) { return run.draws === 0 ? 1 : "pause"; }`, nil)
	require.NoError(t, err)

	res, err := p.Play(context.Background(), alice, id, 100)
	require.NoError(t, err)
	assert.True(t, res.Paused)

	sess, err := w.Runs.Session(id)
	require.NoError(t, err)
	assert.Equal(t, run.StatusPaused, sess.Status)
	assert.Equal(t, uint64(2), sess.CurrentRoom)
}

func TestPlayExitsWhenCleared(t *testing.T) {
	w, script := newWorld(t, 2)
	id := mint(t, w, 5)
	script.Push(treasure2...)
	script.Push(treasure2...)

	p, err := NewPlayer(w.Runs, "", nil)
	require.NoError(t, err)

	res, err := p.Play(context.Background(), alice, id, 100)
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	assert.Equal(t, 2, res.Draws)
	assert.Equal(t, run.Score(2, 4), res.Score)

	var stats Statistics
	stats.Record(res)
	stats.Record(Result{Died: true, Score: 5, Draws: 1, Cards: map[string]int{"trap": 1}})
	assert.Equal(t, 2, stats.Runs)
	assert.Equal(t, 1, stats.Banked)
	assert.Equal(t, 1, stats.Cleared)
	assert.Equal(t, res.Score+5, stats.TotalScore)
	assert.Equal(t, 2, stats.Cards["treasure"])
	assert.InDelta(t, 50.0, stats.DeathRate(), 1e-9)
}
