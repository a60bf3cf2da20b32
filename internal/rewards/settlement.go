// Package rewards implements RewardSettlement: week rotation and the
// ranked prize payout out of the fee settlement's rewards bucket.
package rewards

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/events"
	"github.com/afurourrego/dungeonflip/internal/fees"
	"github.com/afurourrego/dungeonflip/internal/progress"
)

// DefaultMinWeekInterval is the cooldown between week advances.
const DefaultMinWeekInterval = 7 * 24 * time.Hour

// WeekHistory is the immutable record of one settled week.
type WeekHistory struct {
	WeekNumber    uint64          `json:"week_number"`
	TotalPrize    uint64          `json:"total_prize"`
	Winners       []chain.Address `json:"winners"`
	Amounts       []uint64        `json:"amounts"`
	CarriedOver   uint64          `json:"carried_over"`
	Distributed   bool            `json:"distributed"`
	DistributedAt time.Time       `json:"distributed_at"`
}

// Ledger is the slice of the progress ledger the settlement drives.
type Ledger interface {
	CloseEpoch(ctx context.Context, caller chain.Address) (uint64, []progress.Entry, error)
	CurrentWeek() uint64
}

// Fees is the slice of the fee settlement the payout drains.
type Fees interface {
	WithdrawRewardsBucket(ctx context.Context, caller, to chain.Address) (uint64, error)
	CarryOverRewards(ctx context.Context, caller chain.Address, amount uint64) error
	Balances() fees.Balances
}

// HistoryRecorder persists settled weeks outside the process.
type HistoryRecorder interface {
	RecordWeek(ctx context.Context, h WeekHistory) error
}

// Archiver writes a compressed per-week archive.
type Archiver interface {
	ArchiveWeek(ctx context.Context, h WeekHistory) error
}

// Config identifies the settlement and the callers allowed to trigger a
// manual distribution.
type Config struct {
	Address         chain.Address
	Owner           chain.Address
	RunEngine       chain.Address
	Ledger          chain.Address
	MinWeekInterval time.Duration
}

// Deps are the collaborators, injected at construction.
type Deps struct {
	Ledger   Ledger
	Fees     Fees
	Bank     *chain.Bank
	Clock    chain.Clock
	Emitter  events.Emitter
	Logger   *log.Logger
	History  HistoryRecorder
	Archiver Archiver
}

// Settlement is the RewardSettlement component.
type Settlement struct {
	mu          sync.Mutex
	cfg         Config
	currentWeek uint64
	lastAdvance time.Time
	history     map[uint64]*WeekHistory

	ledger   Ledger
	fees     Fees
	bank     *chain.Bank
	clock    chain.Clock
	emit     events.Emitter
	logger   *log.Logger
	recorder HistoryRecorder
	archiver Archiver
}

// New creates a settlement in week one. The first advance is allowed one
// interval after construction.
func New(cfg Config, deps Deps) (*Settlement, error) {
	if cfg.Address.IsZero() || cfg.Owner.IsZero() {
		return nil, chain.ErrInvalidAddress
	}
	if deps.Ledger == nil || deps.Fees == nil || deps.Bank == nil {
		return nil, errors.New("rewards: ledger, fees and bank are required")
	}
	if cfg.MinWeekInterval <= 0 {
		cfg.MinWeekInterval = DefaultMinWeekInterval
	}
	if deps.Clock == nil {
		deps.Clock = chain.SystemClock{}
	}
	if deps.Emitter == nil {
		deps.Emitter = events.Discard
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	return &Settlement{
		cfg:         cfg,
		currentWeek: deps.Ledger.CurrentWeek(),
		lastAdvance: deps.Clock.Now(),
		history:     make(map[uint64]*WeekHistory),
		ledger:      deps.Ledger,
		fees:        deps.Fees,
		bank:        deps.Bank,
		clock:       deps.Clock,
		emit:        deps.Emitter,
		logger:      deps.Logger,
		recorder:    deps.History,
		archiver:    deps.Archiver,
	}, nil
}

func (s *Settlement) Address() chain.Address { return s.cfg.Address }

// Schedule returns the prize percentages.
func (s *Settlement) Schedule() [Slots]uint64 { return Schedule }

// MinWeekInterval is the configured cooldown.
func (s *Settlement) MinWeekInterval() time.Duration { return s.cfg.MinWeekInterval }

func (s *Settlement) CurrentWeek() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentWeek
}

// NextAdvanceAt is the earliest time AdvanceWeek will succeed.
func (s *Settlement) NextAdvanceAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAdvance.Add(s.cfg.MinWeekInterval)
}

// History returns the record of a settled week.
func (s *Settlement) History(week uint64) (WeekHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[week]
	if !ok {
		return WeekHistory{}, ErrUnknownWeek.With("no history for week %d", week)
	}
	return cloneHistory(*h), nil
}

// Weeks lists settled week numbers in ascending order.
func (s *Settlement) Weeks() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	weeks := make([]uint64, 0, len(s.history))
	for w := range s.history {
		weeks = append(weeks, w)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i] < weeks[j] })
	return weeks
}

// AdvanceWeek closes the current week and pays its ranking. Anyone may
// call it once MinWeekInterval has passed since the last advance. A week
// with no ranked players or an empty bucket is left unpaid and the bucket
// carries over.
func (s *Settlement) AdvanceWeek(ctx context.Context, caller chain.Address) (events.WeekAdvanced, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if next := s.lastAdvance.Add(s.cfg.MinWeekInterval); now.Before(next) {
		return events.WeekAdvanced{}, ErrTooEarly.With("next advance at %s", next.Format(time.RFC3339))
	}

	closed, top, err := s.ledger.CloseEpoch(ctx, s.cfg.Address)
	if err != nil {
		return events.WeekAdvanced{}, err
	}
	if closed != s.currentWeek {
		s.logger.Printf("week counters diverged, following ledger: rewards=%d ledger=%d", s.currentWeek, closed)
	}
	old := s.currentWeek
	s.currentWeek = closed + 1
	s.lastAdvance = now

	if len(top) > 0 && s.fees.Balances().Rewards > 0 {
		if _, err := s.settle(ctx, closed, WinnersFrom(top)); err != nil {
			s.logger.Printf("automatic settlement failed, week left open: week=%d caller=%s err=%v", closed, caller, err)
		}
	}

	ev := events.WeekAdvanced{OldWeek: old, NewWeek: s.currentWeek, CarriedBalance: s.fees.Balances().Rewards}
	s.logger.Printf("week advanced: old=%d new=%d carried=%d ranked=%d caller=%s", ev.OldWeek, ev.NewWeek, ev.CarriedBalance, len(top), caller)
	s.emit.Emit(ev)
	return ev, nil
}

// DistributeRewards pays the most recently closed week to an explicit list
// of winners. NoWinner marks an empty slot.
func (s *Settlement) DistributeRewards(ctx context.Context, caller chain.Address, winners [Slots]chain.Address) (WeekHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.canDistribute(caller) {
		return WeekHistory{}, chain.ErrUnauthorized
	}
	if s.currentWeek <= progress.FirstWeek {
		return WeekHistory{}, ErrNoClosedWeek
	}
	week := s.currentWeek - 1
	if h, ok := s.history[week]; ok && h.Distributed {
		return WeekHistory{}, ErrAlreadyDistributed.With("week %d already paid %d", week, h.TotalPrize)
	}
	if err := validateWinners(winners); err != nil {
		return WeekHistory{}, err
	}
	return s.settle(ctx, week, winners)
}

func (s *Settlement) canDistribute(caller chain.Address) bool {
	if caller.IsZero() {
		return false
	}
	return caller == s.cfg.Owner || caller == s.cfg.RunEngine || caller == s.cfg.Ledger
}

// settle drains the rewards bucket and pays week. Callers hold s.mu.
func (s *Settlement) settle(ctx context.Context, week uint64, winners [Slots]chain.Address) (WeekHistory, error) {
	total, err := s.fees.WithdrawRewardsBucket(ctx, s.cfg.Address, s.cfg.Address)
	if err != nil {
		return WeekHistory{}, err
	}
	amounts, carried := Payout(total, winners)

	payments := make([]chain.Payment, 0, Slots)
	for i, w := range winners {
		if amounts[i] > 0 {
			payments = append(payments, chain.Payment{To: w, Amount: amounts[i]})
		}
	}
	if err := s.bank.Pay(s.cfg.Address, payments); err != nil {
		s.refund(ctx, total, week)
		return WeekHistory{}, err
	}
	if carried > 0 {
		if err := s.fees.CarryOverRewards(ctx, s.cfg.Address, carried); err != nil {
			s.logger.Printf("carry over failed, units held by settlement: week=%d amount=%d err=%v", week, carried, err)
		}
	}

	h := WeekHistory{
		WeekNumber:    week,
		TotalPrize:    total,
		Winners:       append([]chain.Address(nil), winners[:]...),
		Amounts:       append([]uint64(nil), amounts[:]...),
		CarriedOver:   carried,
		Distributed:   true,
		DistributedAt: s.clock.Now(),
	}
	s.history[week] = &h
	s.logger.Printf("rewards distributed: week=%d total=%d carried=%d", week, total, carried)

	if s.recorder != nil {
		if err := s.recorder.RecordWeek(ctx, cloneHistory(h)); err != nil {
			s.logger.Printf("history record failed: week=%d err=%v", week, err)
		}
	}
	if s.archiver != nil {
		if err := s.archiver.ArchiveWeek(ctx, cloneHistory(h)); err != nil {
			s.logger.Printf("week archive failed: week=%d err=%v", week, err)
		}
	}

	s.emit.Emit(events.RewardsDistributed{
		Week:    week,
		Winners: append([]chain.Address(nil), winners[:]...),
		Amounts: append([]uint64(nil), amounts[:]...),
		Total:   total - carried,
	})
	return cloneHistory(h), nil
}

// refund puts a withdrawn bucket back after a failed payout.
func (s *Settlement) refund(ctx context.Context, amount, week uint64) {
	if err := s.fees.CarryOverRewards(ctx, s.cfg.Address, amount); err != nil {
		s.logger.Printf("refund failed, units held by settlement: week=%d amount=%d err=%v", week, amount, err)
	}
}

func cloneHistory(h WeekHistory) WeekHistory {
	h.Winners = append([]chain.Address(nil), h.Winners...)
	h.Amounts = append([]uint64(nil), h.Amounts...)
	return h
}

// State is the serialisable form of a Settlement.
type State struct {
	CurrentWeek uint64        `json:"current_week"`
	LastAdvance time.Time     `json:"last_advance"`
	History     []WeekHistory `json:"history"`
}

// Snapshot captures the week counter and every settled week.
func (s *Settlement) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{CurrentWeek: s.currentWeek, LastAdvance: s.lastAdvance}
	for _, h := range s.history {
		st.History = append(st.History, cloneHistory(*h))
	}
	sort.Slice(st.History, func(i, j int) bool { return st.History[i].WeekNumber < st.History[j].WeekNumber })
	return st
}

// Restore replaces the settlement state with st.
func (s *Settlement) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentWeek = max(st.CurrentWeek, progress.FirstWeek)
	s.lastAdvance = st.LastAdvance
	s.history = make(map[uint64]*WeekHistory, len(st.History))
	for _, h := range st.History {
		h := cloneHistory(h)
		s.history[h.WeekNumber] = &h
	}
}
