package autoplay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/run"
)

// DefaultStrategy pushes on while the adventurer has more than one hit
// point and banks the run otherwise.
const DefaultStrategy = `
function decide(run) {
  if (run.hp <= 1 && run.draws > 0) {
    return "exit";
  }
  return run.draws % run.cards_per_room;
}
`

// maxSteps bounds a single Play call.
const maxSteps = 10000

// RunEngine is the slice of the run engine a Player drives.
type RunEngine interface {
	Constants() run.Constants
	EnterDungeon(ctx context.Context, caller chain.Address, tokenID uint64, payment uint64) (run.Session, error)
	ChooseCard(ctx context.Context, caller chain.Address, tokenID uint64, cardIndex uint8) (run.Draw, error)
	ExitDungeon(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error)
	PauseRun(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error)
	ClaimAfterDeath(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error)
}

// Result is the outcome of one run.
type Result struct {
	TokenID uint64         `json:"token_id"`
	Rooms   uint64         `json:"rooms"`
	Gems    uint64         `json:"gems"`
	Score   uint64         `json:"score"`
	Draws   int            `json:"draws"`
	Died    bool           `json:"died"`
	Paused  bool           `json:"paused"`
	Cleared bool           `json:"cleared"`
	Cards   map[string]int `json:"cards"`
}

// Player plays runs for one wallet.
type Player struct {
	engine RunEngine
	vm     *VM
	logger *log.Logger
}

// NewPlayer loads a strategy. An empty script uses DefaultStrategy.
func NewPlayer(engine RunEngine, script string, logger *log.Logger) (*Player, error) {
	if script == "" {
		script = DefaultStrategy
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	vm := NewVM()
	if err := vm.Load(script); err != nil {
		return nil, err
	}
	return &Player{engine: engine, vm: vm, logger: logger}, nil
}

// Logs returns what the strategy logged.
func (p *Player) Logs() []LogEntry { return p.vm.Logs() }

// Play enters the dungeon with tokenID and follows the strategy until the
// run is banked, paused, or lost. A dead adventurer is claimed back so
// the score reached before death counts.
func (p *Player) Play(ctx context.Context, wallet chain.Address, tokenID, payment uint64) (Result, error) {
	c := p.engine.Constants()
	sess, err := p.engine.EnterDungeon(ctx, wallet, tokenID, payment)
	if err != nil {
		return Result{}, fmt.Errorf("enter: %w", err)
	}
	res := Result{TokenID: tokenID, Cards: make(map[string]int)}
	view := View{MaxRooms: c.MaxRooms, CardsPerRoom: c.CardsPerRoom}

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fill(&view, sess, res.Draws)

		// Every room cleared; only exit remains.
		if sess.CurrentRoom > c.MaxRooms {
			res.Cleared = true
			return p.finish(ctx, wallet, tokenID, sess, res, ActionExit)
		}

		d, err := p.vm.Decide(view)
		if err != nil {
			return res, err
		}
		if d.Action != ActionCard {
			return p.finish(ctx, wallet, tokenID, sess, res, d.Action)
		}

		draw, err := p.engine.ChooseCard(ctx, wallet, tokenID, d.Card)
		if err != nil {
			return res, fmt.Errorf("choose card %d: %w", d.Card, err)
		}
		res.Draws++
		res.Cards[draw.Outcome.Card.String()]++
		outcome := draw.Outcome
		view.Last = &outcome
		sess = draw.Session

		if outcome.Died {
			res.Died = true
			claimed, err := p.engine.ClaimAfterDeath(ctx, wallet, tokenID)
			if err != nil {
				return res, fmt.Errorf("claim: %w", err)
			}
			res.Score = claimed.LastScore
			res.Rooms, res.Gems = sess.RoomsCleared(), sess.GemsCollected
			p.logger.Printf("run lost: token=%d draws=%d score=%d", tokenID, res.Draws, res.Score)
			return res, nil
		}
	}
	return res, errors.New("strategy did not finish the run")
}

func (p *Player) finish(ctx context.Context, wallet chain.Address, tokenID uint64, sess run.Session, res Result, action Action) (Result, error) {
	res.Rooms, res.Gems = sess.RoomsCleared(), sess.GemsCollected
	if action == ActionPause {
		if _, err := p.engine.PauseRun(ctx, wallet, tokenID); err != nil {
			return res, fmt.Errorf("pause: %w", err)
		}
		res.Paused = true
		res.Score = run.Score(res.Rooms, res.Gems)
		return res, nil
	}
	exited, err := p.engine.ExitDungeon(ctx, wallet, tokenID)
	if err != nil {
		return res, fmt.Errorf("exit: %w", err)
	}
	res.Score = exited.LastScore
	p.logger.Printf("run banked: token=%d draws=%d score=%d", tokenID, res.Draws, res.Score)
	return res, nil
}

func fill(v *View, s run.Session, draws int) {
	v.TokenID = s.TokenID
	v.Room = s.CurrentRoom
	v.HP = s.CurrentHP
	v.MaxHP = s.MaxHP
	v.Atk = s.Atk
	v.Def = s.Def
	v.Gems = s.GemsCollected
	v.Score = run.Score(s.RoomsCleared(), s.GemsCollected)
	v.Draws = draws
}

// Statistics aggregates many results.
type Statistics struct {
	Runs       int            `json:"runs"`
	Deaths     int            `json:"deaths"`
	Banked     int            `json:"banked"`
	Paused     int            `json:"paused"`
	Cleared    int            `json:"cleared"`
	TotalScore uint64         `json:"total_score"`
	BestScore  uint64         `json:"best_score"`
	Draws      int            `json:"draws"`
	Cards      map[string]int `json:"cards"`
}

// Record folds one result in.
func (s *Statistics) Record(r Result) {
	if s.Cards == nil {
		s.Cards = make(map[string]int)
	}
	s.Runs++
	switch {
	case r.Died:
		s.Deaths++
	case r.Paused:
		s.Paused++
	default:
		s.Banked++
	}
	if r.Cleared {
		s.Cleared++
	}
	if !r.Paused {
		s.TotalScore += r.Score
	}
	if r.Score > s.BestScore {
		s.BestScore = r.Score
	}
	s.Draws += r.Draws
	for k, v := range r.Cards {
		s.Cards[k] += v
	}
}

// DeathRate is the share of runs lost, in percent.
func (s *Statistics) DeathRate() float64 {
	if s.Runs == 0 {
		return 0
	}
	return float64(s.Deaths) / float64(s.Runs) * 100
}
