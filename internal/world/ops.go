package world

import (
	"context"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/engine"
	"github.com/afurourrego/dungeonflip/internal/events"
	"github.com/afurourrego/dungeonflip/internal/rewards"
	"github.com/afurourrego/dungeonflip/internal/run"
	"github.com/afurourrego/dungeonflip/internal/token"
)

// Operations that change state hold the world's read lock so a snapshot,
// which takes the write lock, never lands between the components one call
// touches. Reads go to the components directly.

// Constants reports the run engine's fixed parameters.
func (w *World) Constants() run.Constants { return w.Runs.Constants() }

func (w *World) EnterDungeon(ctx context.Context, caller chain.Address, tokenID uint64, payment uint64) (run.Session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Runs.EnterDungeon(ctx, caller, tokenID, payment)
}

func (w *World) ChooseCard(ctx context.Context, caller chain.Address, tokenID uint64, cardIndex uint8) (run.Draw, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Runs.ChooseCard(ctx, caller, tokenID, cardIndex)
}

func (w *World) PauseRun(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Runs.PauseRun(ctx, caller, tokenID)
}

func (w *World) ExitDungeon(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Runs.ExitDungeon(ctx, caller, tokenID)
}

func (w *World) ClaimAfterDeath(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Runs.ClaimAfterDeath(ctx, caller, tokenID)
}

func (w *World) ForceWithdraw(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Runs.ForceWithdraw(ctx, caller, tokenID)
}

func (w *World) AdvanceWeek(ctx context.Context, caller chain.Address) (events.WeekAdvanced, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Rewards.AdvanceWeek(ctx, caller)
}

func (w *World) DistributeRewards(ctx context.Context, caller chain.Address, winners [rewards.Slots]chain.Address) (rewards.WeekHistory, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Rewards.DistributeRewards(ctx, caller, winners)
}

func (w *World) SetRunsPaused(ctx context.Context, caller chain.Address, paused bool) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Runs.SetPaused(ctx, caller, paused)
}

func (w *World) SetFeesPaused(ctx context.Context, caller chain.Address, paused bool) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Fees.SetPaused(ctx, caller, paused)
}

func (w *World) WithdrawDevBucket(ctx context.Context, caller, to chain.Address) (uint64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Fees.WithdrawDevBucket(ctx, caller, to)
}

func (w *World) WithdrawMarketing(ctx context.Context, caller, to chain.Address) (uint64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Fees.WithdrawMarketing(ctx, caller, to)
}

// Faucet credits units to an account. Development deployments only.
func (w *World) Faucet(to chain.Address, amount uint64) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if err := w.Bank.Mint(to, amount); err != nil {
		return err
	}
	w.logger.Printf("faucet: to=%s amount=%d", to, amount)
	return nil
}

// MintAdventurer mints a stat token to owner and approves the run engine
// to take custody of it.
func (w *World) MintAdventurer(owner chain.Address, seed engine.Hash) (uint64, token.Stats, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, err := w.Tokens.MintRandom(owner, seed)
	if err != nil {
		return 0, token.Stats{}, err
	}
	if err := w.Tokens.SetApprovalForAll(owner, w.Addresses.RunEngine, true); err != nil {
		return 0, token.Stats{}, err
	}
	stats, err := w.Tokens.StatsOf(id)
	if err != nil {
		return 0, token.Stats{}, err
	}
	w.logger.Printf("adventurer minted: owner=%s token=%d atk=%d def=%d hp=%d", owner, id, stats.Atk, stats.Def, stats.HP)
	return id, stats, nil
}
