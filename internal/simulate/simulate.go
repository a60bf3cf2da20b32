package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/afurourrego/dungeonflip/internal/autoplay"
	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/engine"
	"github.com/afurourrego/dungeonflip/internal/fees"
	"github.com/afurourrego/dungeonflip/internal/progress"
	"github.com/afurourrego/dungeonflip/internal/rewards"
	"github.com/afurourrego/dungeonflip/internal/run"
	"github.com/afurourrego/dungeonflip/internal/units"
	"github.com/afurourrego/dungeonflip/internal/world"
)

// Epoch is the simulated start time.
var Epoch = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// WeekReport is one simulated week.
type WeekReport struct {
	Week        uint64              `json:"week"`
	Runs        int                 `json:"runs"`
	Errors      int                 `json:"errors"`
	Leaderboard []progress.Entry    `json:"leaderboard"`
	Payout      rewards.WeekHistory `json:"payout"`
	Settled     bool                `json:"settled"`
}

// PlayerReport is one wallet's totals.
type PlayerReport struct {
	Name     string              `json:"name"`
	Address  chain.Address       `json:"address"`
	Stats    autoplay.Statistics `json:"stats"`
	Spent    uint64              `json:"spent"`
	Won      uint64              `json:"won"`
	Progress progress.Progress   `json:"progress"`
}

// Report is the full simulation outcome.
type Report struct {
	Weeks   []WeekReport    `json:"weeks"`
	Players []PlayerReport  `json:"players"`
	Buckets fees.Balances   `json:"buckets"`
	Units   units.Converter `json:"-"`
}

type player struct {
	spec   PlayerSpec
	addr   chain.Address
	bot    *autoplay.Player
	tokens []uint64
	paused map[uint64]bool
	next   int
	report PlayerReport
}

// Run plays the scenario to completion. logOut receives component logs;
// nil discards them.
func Run(ctx context.Context, sc Scenario, logOut io.Writer) (*Report, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	cfg, err := sc.config()
	if err != nil {
		return nil, err
	}
	opts, err := world.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	clock := chain.NewManualClock(Epoch)
	opts.Clock = clock
	opts.LogOutput = logOut
	w, err := world.New(opts)
	if err != nil {
		return nil, err
	}
	if logOut == nil {
		logOut = io.Discard
	}
	logger := log.New(logOut, "[SIM] ", log.LstdFlags|log.LUTC)

	fee := w.Runs.Constants().EntryFee
	players := make([]*player, 0, len(sc.Players))
	for _, spec := range sc.Players {
		addr, err := spec.address()
		if err != nil {
			return nil, err
		}
		bot, err := autoplay.NewPlayer(w, spec.script, log.New(logOut, "[BOT "+spec.Name+"] ", log.LstdFlags|log.LUTC))
		if err != nil {
			return nil, fmt.Errorf("player %s: %w", spec.Name, err)
		}
		p := &player{spec: spec, addr: addr, bot: bot, paused: map[uint64]bool{}}
		p.report = PlayerReport{Name: spec.Name, Address: addr}
		budget := fee * uint64(spec.RunsPerWeek) * uint64(sc.Weeks)
		if budget > 0 {
			if err := w.Faucet(addr, budget); err != nil {
				return nil, err
			}
		}
		for i := 0; i < spec.Adventurers; i++ {
			seed := []byte(fmt.Sprintf("%s/%s/%d", sc.Seed, spec.Name, i))
			id, _, err := w.MintAdventurer(addr, engine.Keccak256(seed))
			if err != nil {
				return nil, err
			}
			p.tokens = append(p.tokens, id)
		}
		players = append(players, p)
	}

	rep := &Report{Units: w.Units}
	for wk := 0; wk < sc.Weeks; wk++ {
		week := w.Ledger.CurrentWeek()
		wr := WeekReport{Week: week}
		for round := 0; ; round++ {
			played := false
			for _, p := range players {
				if round >= p.spec.RunsPerWeek {
					continue
				}
				played = true
				if err := p.playOne(ctx, w, fee); err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					wr.Errors++
					logger.Printf("run failed: player=%s week=%d err=%v", p.spec.Name, week, err)
					continue
				}
				wr.Runs++
			}
			if !played {
				break
			}
		}
		wr.Leaderboard, _ = w.Ledger.Leaderboard(week)

		clock.Advance(w.Rewards.MinWeekInterval() + time.Second)
		if _, err := w.AdvanceWeek(ctx, players[0].addr); err != nil {
			return nil, fmt.Errorf("advance week %d: %w", week, err)
		}
		if h, err := w.Rewards.History(week); err == nil {
			wr.Payout = h
			wr.Settled = h.Distributed
			for i, winner := range h.Winners {
				for _, p := range players {
					if p.addr == winner {
						p.report.Won += h.Amounts[i]
					}
				}
			}
		}
		rep.Weeks = append(rep.Weeks, wr)
	}

	for _, p := range players {
		if prog, err := w.Ledger.Player(p.addr); err == nil {
			p.report.Progress = prog
		}
		rep.Players = append(rep.Players, p.report)
	}
	rep.Buckets = w.Fees.Balances()
	return rep, nil
}

// playOne runs the next adventurer in rotation, resuming it when paused.
func (p *player) playOne(ctx context.Context, w *world.World, fee uint64) error {
	id := p.tokens[p.next%len(p.tokens)]
	p.next++
	payment := fee
	if p.paused[id] {
		payment = 0
	}
	before := w.Bank.BalanceOf(p.addr)
	res, err := p.bot.Play(ctx, p.addr, id, payment)
	if after := w.Bank.BalanceOf(p.addr); after < before {
		p.report.Spent += before - after
	}
	if err != nil {
		// Bank whatever is in flight so the token is free next round.
		_, xerr := w.ExitDungeon(ctx, p.addr, id)
		if xerr != nil && !errors.Is(xerr, run.ErrUnknownRun) && !errors.Is(xerr, run.ErrNotActive) {
			err = errors.Join(err, xerr)
		}
		delete(p.paused, id)
		return err
	}
	p.paused[id] = res.Paused
	p.report.Stats.Record(res)
	return nil
}

// WriteText renders the report as aligned tables.
func (r *Report) WriteText(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, wk := range r.Weeks {
		fmt.Fprintf(tw, "== week %d: %d runs, %d failed ==\n", wk.Week, wk.Runs, wk.Errors)
		fmt.Fprintln(tw, "rank\tplayer\tscore\tpayout\t")
		for _, e := range wk.Leaderboard {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t\n", e.Rank, e.Player.Short(), e.Score, r.Units.Format(payoutFor(wk.Payout, e.Player)))
		}
		if wk.Settled {
			fmt.Fprintf(tw, "prize %s, carried over %s\n", r.Units.Format(wk.Payout.TotalPrize), r.Units.Format(wk.Payout.CarriedOver))
		} else {
			fmt.Fprintln(tw, "not settled")
		}
		fmt.Fprintln(tw)
	}

	fmt.Fprintln(tw, "== players ==")
	fmt.Fprintln(tw, "player\truns\tdeaths\tdeath %\tavg score\tbest\tspent\twon\tnet\t")
	for _, p := range r.Players {
		avg := decimal.Zero
		if p.Stats.Runs > 0 {
			avg = decimal.NewFromUint64(p.Stats.TotalScore).Div(decimal.NewFromInt(int64(p.Stats.Runs)))
		}
		net := r.Units.FromUnits(p.Won).Sub(r.Units.FromUnits(p.Spent))
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%d\t%s\t%s\t%s\t\n",
			p.Name, p.Stats.Runs, p.Stats.Deaths, units.Percent(uint64(p.Stats.Deaths), uint64(p.Stats.Runs)),
			avg.StringFixed(2), p.Stats.BestScore, r.Units.Format(p.Spent), r.Units.Format(p.Won), net.String())
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "buckets: rewards %s  dev %s  marketing %s  total fees %s\n",
		r.Units.Format(r.Buckets.Rewards), r.Units.Format(r.Buckets.Dev),
		r.Units.Format(r.Buckets.Marketing), r.Units.Format(r.Buckets.TotalFeesReceived))
	return tw.Flush()
}

func payoutFor(h rewards.WeekHistory, who chain.Address) uint64 {
	for i, w := range h.Winners {
		if w == who && i < len(h.Amounts) {
			return h.Amounts[i]
		}
	}
	return 0
}

// TopEarners orders players by net winnings.
func (r *Report) TopEarners() []PlayerReport {
	out := append([]PlayerReport(nil), r.Players...)
	sort.SliceStable(out, func(i, j int) bool {
		return int64(out[i].Won)-int64(out[i].Spent) > int64(out[j].Won)-int64(out[j].Spent)
	})
	return out
}
