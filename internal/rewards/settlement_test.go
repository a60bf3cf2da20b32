package rewards

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/events"
	"github.com/afurourrego/dungeonflip/internal/fees"
	"github.com/afurourrego/dungeonflip/internal/progress"
)

var (
	owner      = chain.MustAddress("0x0000000000000000000000000000000000000001")
	feesAddr   = chain.MustAddress("0x00000000000000000000000000000000000000f1")
	ledgerAddr = chain.MustAddress("0x00000000000000000000000000000000000000c1")
	runAddr    = chain.MustAddress("0x00000000000000000000000000000000000000e1")
	rewAddr    = chain.MustAddress("0x00000000000000000000000000000000000000d1")
	payer      = chain.MustAddress("0x00000000000000000000000000000000000000b1")
)

func player(n int) chain.Address {
	return chain.MustAddress(fmt.Sprintf("0x%040x", 0xa000+n))
}

type fixture struct {
	bank     *chain.Bank
	clock    *chain.ManualClock
	fees     *fees.Settlement
	ledger   *progress.Ledger
	rewards  *Settlement
	rec      *events.Recorder
	recorded []WeekHistory
}

func (f *fixture) RecordWeek(_ context.Context, h WeekHistory) error {
	f.recorded = append(f.recorded, h)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		bank:  chain.NewBank(),
		clock: chain.NewManualClock(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)),
		rec:   &events.Recorder{},
	}
	var err error
	f.fees, err = fees.New(fees.Config{Address: feesAddr, Owner: owner}, f.bank, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.fees.SetCollaborators(ctx, owner, runAddr, rewAddr))

	f.ledger, err = progress.New(progress.Config{Address: ledgerAddr, Owner: owner}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.ledger.SetCollaborators(ctx, owner, runAddr, rewAddr))

	f.rewards, err = New(
		Config{Address: rewAddr, Owner: owner, RunEngine: runAddr, Ledger: ledgerAddr},
		Deps{Ledger: f.ledger, Fees: f.fees, Bank: f.bank, Clock: f.clock, Emitter: f.rec, History: f},
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) collectFees(t *testing.T, n int, amount uint64) {
	t.Helper()
	require.NoError(t, f.bank.Mint(payer, uint64(n)*amount))
	for i := 0; i < n; i++ {
		require.NoError(t, f.fees.DistributeEntryFee(context.Background(), runAddr, payer, amount))
	}
}

func tenPlayers() [Slots]chain.Address {
	var w [Slots]chain.Address
	for i := range w {
		w[i] = player(i + 1)
	}
	return w
}

func TestPayoutSchedule(t *testing.T) {
	amounts, carried := Payout(700, tenPlayers())
	assert.Equal(t, [Slots]uint64{210, 140, 105, 70, 56, 42, 28, 21, 14, 14}, amounts)
	assert.Equal(t, uint64(0), carried)
}

func TestPayoutRemainderToFirst(t *testing.T) {
	for _, total := range []uint64{1, 7, 99, 101, 1234, 999_999_999} {
		amounts, carried := Payout(total, tenPlayers())
		var sum uint64
		for _, a := range amounts {
			sum += a
		}
		assert.Equal(t, total, sum+carried, "total=%d", total)
		assert.GreaterOrEqual(t, amounts[0], total/100*30+total%100*30/100)
	}
	amounts, _ := Payout(7, tenPlayers())
	assert.Equal(t, uint64(5), amounts[0])
}

func TestPayoutCarriesSentinelSlots(t *testing.T) {
	w := WinnersFrom([]progress.Entry{{Rank: 1, Player: player(1)}, {Rank: 2, Player: player(2)}})
	assert.Equal(t, NoWinner, w[2])
	amounts, carried := Payout(1000, w)
	assert.Equal(t, uint64(300), amounts[0])
	assert.Equal(t, uint64(200), amounts[1])
	assert.Equal(t, uint64(500), carried)
}

func TestAdvanceWeekPaysRanking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.collectFees(t, 10, 100)
	for i := 1; i <= 10; i++ {
		require.NoError(t, f.ledger.RecordScore(ctx, runAddr, player(i), uint64(200-i)))
	}

	_, err := f.rewards.AdvanceWeek(ctx, player(1))
	assert.ErrorIs(t, err, ErrTooEarly)
	assert.Equal(t, uint64(1), f.ledger.CurrentWeek())

	f.clock.Advance(DefaultMinWeekInterval)
	ev, err := f.rewards.AdvanceWeek(ctx, player(1))
	require.NoError(t, err)
	assert.Equal(t, events.WeekAdvanced{OldWeek: 1, NewWeek: 2, CarriedBalance: 0}, ev)
	assert.Equal(t, uint64(2), f.ledger.CurrentWeek())
	assert.Equal(t, uint64(2), f.rewards.CurrentWeek())

	want := []uint64{210, 140, 105, 70, 56, 42, 28, 21, 14, 14}
	for i, amt := range want {
		assert.Equal(t, amt, f.bank.BalanceOf(player(i+1)), "rank %d", i+1)
	}
	assert.Equal(t, uint64(0), f.bank.BalanceOf(rewAddr))

	h, err := f.rewards.History(1)
	require.NoError(t, err)
	assert.True(t, h.Distributed)
	assert.Equal(t, uint64(700), h.TotalPrize)
	require.Len(t, f.recorded, 1)
	assert.Equal(t, h, f.recorded[0])

	_, err = f.rewards.DistributeRewards(ctx, owner, tenPlayers())
	assert.ErrorIs(t, err, ErrAlreadyDistributed)
	assert.Equal(t, chain.KindInvalidState, chain.KindOf(err))
}

func TestAdvanceWeekWithoutPlayersCarriesBucket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.collectFees(t, 3, 100)

	f.clock.Advance(DefaultMinWeekInterval)
	ev, err := f.rewards.AdvanceWeek(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(210), ev.CarriedBalance)
	assert.Equal(t, uint64(210), f.fees.Balances().Rewards)
	assert.Empty(t, f.rewards.Weeks())

	// the interval restarts from the last advance
	_, err = f.rewards.AdvanceWeek(ctx, owner)
	assert.ErrorIs(t, err, ErrTooEarly)
	assert.Equal(t, f.clock.Now().Add(DefaultMinWeekInterval), f.rewards.NextAdvanceAt())
}

func TestDistributeRewardsManual(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.collectFees(t, 10, 100)

	_, err := f.rewards.DistributeRewards(ctx, owner, tenPlayers())
	assert.ErrorIs(t, err, ErrNoClosedWeek)

	f.clock.Advance(DefaultMinWeekInterval)
	_, err = f.rewards.AdvanceWeek(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, uint64(700), f.fees.Balances().Rewards)

	_, err = f.rewards.DistributeRewards(ctx, player(1), tenPlayers())
	assert.ErrorIs(t, err, chain.ErrUnauthorized)

	h, err := f.rewards.DistributeRewards(ctx, owner, tenPlayers())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.WeekNumber)
	assert.Equal(t, []uint64{210, 140, 105, 70, 56, 42, 28, 21, 14, 14}, h.Amounts)

	before := f.bank.Accounts()
	_, err = f.rewards.DistributeRewards(ctx, owner, tenPlayers())
	assert.ErrorIs(t, err, ErrAlreadyDistributed)
	assert.Equal(t, before, f.bank.Accounts())

	last := f.rec.Last().(events.RewardsDistributed)
	assert.Equal(t, uint64(700), last.Total)
}

func TestDistributeRewardsValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.collectFees(t, 1, 100)
	f.clock.Advance(DefaultMinWeekInterval)
	_, err := f.rewards.AdvanceWeek(ctx, owner)
	require.NoError(t, err)

	withZero := tenPlayers()
	withZero[4] = chain.ZeroAddress
	_, err = f.rewards.DistributeRewards(ctx, owner, withZero)
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)

	var empty [Slots]chain.Address
	for i := range empty {
		empty[i] = NoWinner
	}
	_, err = f.rewards.DistributeRewards(ctx, owner, empty)
	assert.ErrorIs(t, err, ErrNoWinners)

	dup := tenPlayers()
	dup[9] = dup[0]
	_, err = f.rewards.DistributeRewards(ctx, owner, dup)
	assert.ErrorIs(t, err, ErrDuplicateWinner)
	assert.Equal(t, uint64(70), f.fees.Balances().Rewards)

	partial := empty
	partial[0] = player(1)
	h, err := f.rewards.DistributeRewards(ctx, owner, partial)
	require.NoError(t, err)
	// shares of 70 floor to 67; the 3 units of dust go to first place
	assert.Equal(t, uint64(24), h.Amounts[0])
	assert.Equal(t, uint64(46), h.CarriedOver)
	assert.Equal(t, uint64(46), f.fees.Balances().Rewards)
	assert.Equal(t, uint64(46), f.bank.BalanceOf(feesAddr)-f.fees.Balances().Dev-f.fees.Balances().Marketing)
}

func TestDistributeRewardsEmptyBucketFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.clock.Advance(DefaultMinWeekInterval)
	_, err := f.rewards.AdvanceWeek(ctx, owner)
	require.NoError(t, err)

	_, err = f.rewards.DistributeRewards(ctx, owner, tenPlayers())
	assert.ErrorIs(t, err, fees.ErrNoBalance)
	_, err = f.rewards.History(1)
	assert.ErrorIs(t, err, ErrUnknownWeek)
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.collectFees(t, 1, 100)
	require.NoError(t, f.ledger.RecordScore(ctx, runAddr, player(1), 10))
	f.clock.Advance(DefaultMinWeekInterval)
	_, err := f.rewards.AdvanceWeek(ctx, owner)
	require.NoError(t, err)

	other, err := New(Config{Address: rewAddr, Owner: owner}, Deps{Ledger: f.ledger, Fees: f.fees, Bank: f.bank, Clock: f.clock})
	require.NoError(t, err)
	other.Restore(f.rewards.Snapshot())
	assert.Equal(t, f.rewards.Snapshot(), other.Snapshot())
	assert.Equal(t, []uint64{1}, other.Weeks())
}
