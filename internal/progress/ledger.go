// Package progress implements the ProgressLedger: per-player total and
// weekly scores across rotating weeks, and the ranked weekly snapshot
// used for prize payouts.
//
// Weekly scores are reset lazily. A player's stored weekly score only
// counts for the week stamped in LastPlayedWeek; reads for any other week
// treat it as zero, and the next write in a newer week overwrites it.
package progress

import (
	"context"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/events"
)

// TopN is the size of a weekly ranking.
const TopN = 10

// FirstWeek is the week a fresh ledger starts in.
const FirstWeek = 1

// Progress is a player's stored record.
type Progress struct {
	Player         chain.Address `json:"player"`
	TotalScore     uint64        `json:"total_score"`
	WeeklyScore    uint64        `json:"weekly_score"`
	GamesPlayed    uint64        `json:"games_played"`
	LastPlayedWeek uint64        `json:"last_played_week"`
	IsActive       bool          `json:"is_active"`
	// Seq is the ledger-wide sequence number of the last write; it orders
	// equal weekly scores.
	Seq uint64 `json:"seq"`
}

// ScoreFor is the stale-aware weekly score for week.
func (p Progress) ScoreFor(week uint64) uint64 {
	if p.LastPlayedWeek != week {
		return 0
	}
	return p.WeeklyScore
}

// Entry is one ranked row.
type Entry struct {
	Rank   int           `json:"rank"`
	Player chain.Address `json:"player"`
	Score  uint64        `json:"score"`
}

// Config identifies the ledger on the chain.
type Config struct {
	Address chain.Address
	Owner   chain.Address
}

// Ledger is the ProgressLedger component.
type Ledger struct {
	mu           sync.Mutex
	addr         chain.Address
	owner        chain.Address
	runEngine    chain.Address
	rewards      chain.Address
	currentWeek  uint64
	seq          uint64
	totalPlayers uint64
	players      map[chain.Address]*Progress
	finalized    map[uint64][]Entry

	emit   events.Emitter
	logger *log.Logger
}

// New creates a ledger positioned at FirstWeek.
func New(cfg Config, emit events.Emitter, logger *log.Logger) (*Ledger, error) {
	if cfg.Address.IsZero() || cfg.Owner.IsZero() {
		return nil, chain.ErrInvalidAddress
	}
	if emit == nil {
		emit = events.Discard
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Ledger{
		addr:        cfg.Address,
		owner:       cfg.Owner,
		currentWeek: FirstWeek,
		players:     make(map[chain.Address]*Progress),
		finalized:   make(map[uint64][]Entry),
		emit:        emit,
		logger:      logger,
	}, nil
}

func (l *Ledger) Address() chain.Address { return l.addr }

// SetCollaborators wires the run engine (score writer) and the reward
// settlement (ranking reader).
func (l *Ledger) SetCollaborators(_ context.Context, caller, runEngine, rewards chain.Address) error {
	if caller != l.owner {
		return chain.ErrUnauthorized
	}
	if runEngine.IsZero() || rewards.IsZero() {
		return chain.ErrInvalidAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runEngine = runEngine
	l.rewards = rewards
	return nil
}

func (l *Ledger) CurrentWeek() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentWeek
}

func (l *Ledger) TotalPlayers() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalPlayers
}

// Player returns the stale-aware view: WeeklyScore is zero unless the
// player has scored in the current week.
func (l *Ledger) Player(addr chain.Address) (Progress, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.players[addr]
	if !ok {
		return Progress{}, ErrUnknownPlayer.With("no progress for %s", addr)
	}
	view := *p
	view.WeeklyScore = p.ScoreFor(l.currentWeek)
	return view, nil
}

// RecordScore adds amount to player's total and weekly scores. Only the
// run engine may call it.
func (l *Ledger) RecordScore(_ context.Context, caller, player chain.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller.IsZero() || caller != l.runEngine {
		return chain.ErrUnauthorized
	}
	if amount == 0 {
		return chain.ErrInvalidAmount
	}
	if player.IsZero() {
		return chain.ErrInvalidAddress
	}

	p, ok := l.players[player]
	if !ok {
		p = &Progress{Player: player, IsActive: true}
		l.players[player] = p
		l.totalPlayers++
		l.logger.Printf("new player: player=%s total_players=%d", player, l.totalPlayers)
	}
	if p.LastPlayedWeek < l.currentWeek {
		p.WeeklyScore = 0
	}
	p.TotalScore += amount
	p.WeeklyScore += amount
	p.GamesPlayed++
	p.LastPlayedWeek = l.currentWeek
	l.seq++
	p.Seq = l.seq

	l.emit.Emit(events.ScoreUpdated{
		Player:      player,
		Delta:       amount,
		TotalScore:  p.TotalScore,
		WeeklyScore: p.WeeklyScore,
		Week:        l.currentWeek,
	})
	return nil
}

// AdvanceEpoch starts the next week without touching player records.
func (l *Ledger) AdvanceEpoch(_ context.Context, caller chain.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.canRotate(caller) {
		return 0, chain.ErrUnauthorized
	}
	l.currentWeek++
	l.logger.Printf("epoch advanced: week=%d", l.currentWeek)
	return l.currentWeek, nil
}

// CloseEpoch finalizes the ranking of the current week and advances in
// one step, so no score can land between the snapshot and the rotation.
func (l *Ledger) CloseEpoch(_ context.Context, caller chain.Address) (uint64, []Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.canRotate(caller) {
		return 0, nil, chain.ErrUnauthorized
	}
	closed := l.currentWeek
	top := l.finalize(closed)
	l.currentWeek++
	l.logger.Printf("epoch closed: week=%d ranked=%d next=%d", closed, len(top), l.currentWeek)
	return closed, cloneEntries(top), nil
}

func (l *Ledger) canRotate(caller chain.Address) bool {
	if caller.IsZero() {
		return false
	}
	return caller == l.owner || caller == l.runEngine || caller == l.rewards
}

// TopPlayers returns the ranking for week. Closed weeks are finalized on
// first read and every later call returns the stored snapshot. The open
// week is ranked on the fly and not cached.
func (l *Ledger) TopPlayers(_ context.Context, caller chain.Address, week uint64) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller.IsZero() || (caller != l.rewards && caller != l.owner) {
		return nil, chain.ErrUnauthorized
	}
	if week < FirstWeek || week > l.currentWeek {
		return nil, ErrUnknownWeek.With("week %d (current %d)", week, l.currentWeek)
	}
	if week == l.currentWeek {
		return l.rank(week), nil
	}
	return cloneEntries(l.finalize(week)), nil
}

// Leaderboard is the public read. It never finalizes.
func (l *Ledger) Leaderboard(week uint64) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if week < FirstWeek || week > l.currentWeek {
		return nil, ErrUnknownWeek.With("week %d (current %d)", week, l.currentWeek)
	}
	if top, ok := l.finalized[week]; ok {
		return cloneEntries(top), nil
	}
	return l.rank(week), nil
}

// Finalized reports whether week's ranking has been frozen.
func (l *Ledger) Finalized(week uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.finalized[week]
	return ok
}

func (l *Ledger) finalize(week uint64) []Entry {
	if top, ok := l.finalized[week]; ok {
		return top
	}
	top := l.rank(week)
	l.finalized[week] = top
	return top
}

// rank orders players by effective score for week, ties by earlier write
// then by address. Players with nothing for the week are left out.
func (l *Ledger) rank(week uint64) []Entry {
	type candidate struct {
		addr  chain.Address
		score uint64
		seq   uint64
	}
	var cands []candidate
	for addr, p := range l.players {
		if s := p.ScoreFor(week); s > 0 {
			cands = append(cands, candidate{addr: addr, score: s, seq: p.Seq})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.addr < b.addr
	})
	if len(cands) > TopN {
		cands = cands[:TopN]
	}
	out := make([]Entry, len(cands))
	for i, c := range cands {
		out[i] = Entry{Rank: i + 1, Player: c.addr, Score: c.score}
	}
	return out
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	copy(out, in)
	return out
}

// State is the serialisable form of a Ledger.
type State struct {
	RunEngine    chain.Address      `json:"run_engine"`
	Rewards      chain.Address      `json:"rewards"`
	CurrentWeek  uint64             `json:"current_week"`
	Seq          uint64             `json:"seq"`
	TotalPlayers uint64             `json:"total_players"`
	Players      []Progress         `json:"players"`
	Finalized    map[uint64][]Entry `json:"finalized,omitempty"`
}

// Snapshot captures every record and finalized ranking.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := State{
		RunEngine:    l.runEngine,
		Rewards:      l.rewards,
		CurrentWeek:  l.currentWeek,
		Seq:          l.seq,
		TotalPlayers: l.totalPlayers,
		Finalized:    make(map[uint64][]Entry, len(l.finalized)),
	}
	for _, p := range l.players {
		st.Players = append(st.Players, *p)
	}
	sort.Slice(st.Players, func(i, j int) bool { return st.Players[i].Player < st.Players[j].Player })
	for w, top := range l.finalized {
		st.Finalized[w] = cloneEntries(top)
	}
	return st
}

// Restore replaces the ledger contents with st.
func (l *Ledger) Restore(st State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runEngine = st.RunEngine
	l.rewards = st.Rewards
	l.currentWeek = max(st.CurrentWeek, FirstWeek)
	l.seq = st.Seq
	l.totalPlayers = st.TotalPlayers
	l.players = make(map[chain.Address]*Progress, len(st.Players))
	for i := range st.Players {
		p := st.Players[i]
		l.players[p.Player] = &p
	}
	l.finalized = make(map[uint64][]Entry, len(st.Finalized))
	for w, top := range st.Finalized {
		l.finalized[w] = cloneEntries(top)
	}
}
