// Package fees implements FeeSettlement: entry fees are split into three
// accrual buckets that are withdrawn independently by their role.
package fees

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/events"
)

// Bucket names as they appear in events and the API.
const (
	BucketRewards   = "rewards"
	BucketDev       = "dev"
	BucketMarketing = "marketing"
)

// Split holds the fee percentages. Marketing also absorbs rounding dust.
type Split struct {
	Rewards   uint64 `json:"rewards"`
	Dev       uint64 `json:"dev"`
	Marketing uint64 `json:"marketing"`
}

// DefaultSplit is 70/20/10.
var DefaultSplit = Split{Rewards: 70, Dev: 20, Marketing: 10}

func (s Split) valid() bool {
	return s.Rewards+s.Dev+s.Marketing == 100
}

// Apply divides amount. The three parts always sum to amount.
func (s Split) Apply(amount uint64) (rewards, dev, marketing uint64) {
	rewards = percentOf(amount, s.Rewards)
	dev = percentOf(amount, s.Dev)
	marketing = amount - rewards - dev
	return
}

// percentOf is floor(amount*p/100) without overflowing on large amounts.
func percentOf(amount, p uint64) uint64 {
	return amount/100*p + amount%100*p/100
}

// Balances are the accrual counters.
type Balances struct {
	Rewards           uint64 `json:"rewards"`
	Dev               uint64 `json:"dev"`
	Marketing         uint64 `json:"marketing"`
	TotalFeesReceived uint64 `json:"total_fees_received"`
}

// Held is the sum the settlement account must hold.
func (b Balances) Held() uint64 {
	return b.Rewards + b.Dev + b.Marketing
}

// Config identifies the settlement on the ledger.
type Config struct {
	Address chain.Address
	Owner   chain.Address
	Split   Split
}

// Settlement is the FeeSettlement component.
type Settlement struct {
	mu        sync.Mutex
	addr      chain.Address
	owner     chain.Address
	split     Split
	runEngine chain.Address
	rewards   chain.Address
	paused    bool
	bal       Balances

	bank   *chain.Bank
	emit   events.Emitter
	logger *log.Logger
}

// New creates a settlement. Collaborators are wired later with
// SetCollaborators.
func New(cfg Config, bank *chain.Bank, emit events.Emitter, logger *log.Logger) (*Settlement, error) {
	if cfg.Address.IsZero() || cfg.Owner.IsZero() {
		return nil, chain.ErrInvalidAddress
	}
	if cfg.Split == (Split{}) {
		cfg.Split = DefaultSplit
	}
	if !cfg.Split.valid() {
		return nil, ErrInvalidSplit
	}
	if emit == nil {
		emit = events.Discard
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Settlement{
		addr:   cfg.Address,
		owner:  cfg.Owner,
		split:  cfg.Split,
		bank:   bank,
		emit:   emit,
		logger: logger,
	}, nil
}

func (s *Settlement) Address() chain.Address { return s.addr }
func (s *Settlement) Owner() chain.Address   { return s.owner }
func (s *Settlement) Split() Split           { return s.split }

// Balances returns the current counters.
func (s *Settlement) Balances() Balances {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bal
}

// SetCollaborators wires the only callers allowed to deposit fees and to
// drain the rewards bucket.
func (s *Settlement) SetCollaborators(_ context.Context, caller, runEngine, rewards chain.Address) error {
	if caller != s.owner {
		return chain.ErrUnauthorized
	}
	if runEngine.IsZero() || rewards.IsZero() {
		return chain.ErrInvalidAddress
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runEngine = runEngine
	s.rewards = rewards
	s.logger.Printf("collaborators set: run_engine=%s rewards=%s", runEngine, rewards)
	return nil
}

// SetPaused halts or resumes fee intake.
func (s *Settlement) SetPaused(_ context.Context, caller chain.Address, paused bool) error {
	if caller != s.owner {
		return chain.ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	s.logger.Printf("paused=%t", paused)
	return nil
}

// Paused reports the administrative halt flag.
func (s *Settlement) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// DistributeEntryFee pulls amount from payer and splits it across the
// buckets. Only the run engine may call it.
func (s *Settlement) DistributeEntryFee(_ context.Context, caller, payer chain.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller.IsZero() || caller != s.runEngine {
		return chain.ErrUnauthorized
	}
	if s.paused {
		return chain.ErrHalted
	}
	if amount == 0 {
		return chain.ErrInvalidAmount
	}

	rewards, dev, marketing := s.split.Apply(amount)
	if err := s.bank.Transfer(payer, s.addr, amount); err != nil {
		return err
	}
	s.bal.Rewards += rewards
	s.bal.Dev += dev
	s.bal.Marketing += marketing
	s.bal.TotalFeesReceived += amount

	s.emit.Emit(events.FeeDistributed{Payer: payer, Amount: amount, Rewards: rewards, Dev: dev, Marketing: marketing})
	return nil
}

// WithdrawRewardsBucket sends the whole rewards bucket to to. Only the
// reward settlement may call it.
func (s *Settlement) WithdrawRewardsBucket(_ context.Context, caller, to chain.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller.IsZero() || caller != s.rewards {
		return 0, chain.ErrUnauthorized
	}
	return s.withdraw(BucketRewards, &s.bal.Rewards, to)
}

// WithdrawDevBucket sends the dev bucket to to. Owner only.
func (s *Settlement) WithdrawDevBucket(_ context.Context, caller, to chain.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.owner {
		return 0, chain.ErrUnauthorized
	}
	return s.withdraw(BucketDev, &s.bal.Dev, to)
}

// WithdrawMarketing sends the marketing bucket to to. Owner only.
func (s *Settlement) WithdrawMarketing(_ context.Context, caller, to chain.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.owner {
		return 0, chain.ErrUnauthorized
	}
	return s.withdraw(BucketMarketing, &s.bal.Marketing, to)
}

// withdraw zeroes the counter before the transfer and restores it if the
// transfer fails. Callers hold s.mu.
func (s *Settlement) withdraw(name string, bucket *uint64, to chain.Address) (uint64, error) {
	if to.IsZero() {
		return 0, chain.ErrInvalidAddress
	}
	amount := *bucket
	if amount == 0 {
		return 0, ErrNoBalance.With("%s bucket is empty", name)
	}
	*bucket = 0
	if err := s.bank.Transfer(s.addr, to, amount); err != nil {
		*bucket = amount
		return 0, err
	}
	s.logger.Printf("bucket withdrawn: bucket=%s to=%s amount=%d", name, to, amount)
	s.emit.Emit(events.BucketWithdrawn{Bucket: name, To: to, Amount: amount})
	return amount, nil
}

// CarryOverRewards returns undistributed prize units from the reward
// settlement account to the rewards bucket.
func (s *Settlement) CarryOverRewards(_ context.Context, caller chain.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller.IsZero() || caller != s.rewards {
		return chain.ErrUnauthorized
	}
	if amount == 0 {
		return nil
	}
	if err := s.bank.Transfer(caller, s.addr, amount); err != nil {
		return err
	}
	s.bal.Rewards += amount
	s.logger.Printf("rewards carried over: amount=%d bucket=%d", amount, s.bal.Rewards)
	return nil
}

// State is the serialisable form of a Settlement.
type State struct {
	RunEngine chain.Address `json:"run_engine"`
	Rewards   chain.Address `json:"rewards"`
	Paused    bool          `json:"paused"`
	Balances  Balances      `json:"balances"`
}

// Snapshot captures counters and wiring.
func (s *Settlement) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{RunEngine: s.runEngine, Rewards: s.rewards, Paused: s.paused, Balances: s.bal}
}

// Restore replaces counters and wiring.
func (s *Settlement) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runEngine = st.RunEngine
	s.rewards = st.Rewards
	s.paused = st.Paused
	s.bal = st.Balances
}
