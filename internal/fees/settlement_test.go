package fees

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/events"
)

var (
	owner    = chain.MustAddress("0x0000000000000000000000000000000000000001")
	feesAddr = chain.MustAddress("0x00000000000000000000000000000000000000f1")
	runAddr  = chain.MustAddress("0x00000000000000000000000000000000000000e1")
	rewAddr  = chain.MustAddress("0x00000000000000000000000000000000000000d1")
	player   = chain.MustAddress("0x00000000000000000000000000000000000000a1")
	treasury = chain.MustAddress("0x00000000000000000000000000000000000000c1")
)

func newSettlement(t *testing.T) (*Settlement, *chain.Bank, *events.Recorder) {
	t.Helper()
	bank := chain.NewBank()
	rec := &events.Recorder{}
	s, err := New(Config{Address: feesAddr, Owner: owner}, bank, rec, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetCollaborators(context.Background(), owner, runAddr, rewAddr))
	return s, bank, rec
}

func TestSplitNeverLosesDust(t *testing.T) {
	amounts := []uint64{1, 2, 3, 7, 9, 10, 11, 99, 100, 101, 333, 999, 1_000_003, math.MaxUint64, math.MaxUint64 - 1}
	for _, a := range amounts {
		r, d, m := DefaultSplit.Apply(a)
		assert.Equal(t, a, r+d+m, "amount=%d", a)
		assert.Equal(t, a/100*70+a%100*70/100, r)
		assert.Equal(t, a/100*20+a%100*20/100, d)
		// marketing is the 10% share plus at most one unit of dust per bucket
		ideal := a/100*10 + a%100*10/100
		assert.LessOrEqual(t, m-ideal, uint64(2), "amount=%d", a)
	}
}

func TestDistributeEntryFeeScenario(t *testing.T) {
	ctx := context.Background()
	s, bank, rec := newSettlement(t)
	require.NoError(t, bank.Mint(player, 1000))

	for i := 0; i < 10; i++ {
		require.NoError(t, s.DistributeEntryFee(ctx, runAddr, player, 100))
	}
	bal := s.Balances()
	assert.Equal(t, Balances{Rewards: 700, Dev: 200, Marketing: 100, TotalFeesReceived: 1000}, bal)
	assert.Equal(t, bal.Held(), bank.BalanceOf(feesAddr))
	assert.Equal(t, uint64(0), bank.BalanceOf(player))
	assert.Len(t, rec.OfType(events.TypeFeeDistributed), 10)

	got, err := s.WithdrawRewardsBucket(ctx, rewAddr, rewAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), got)
	assert.Equal(t, uint64(700), bank.BalanceOf(rewAddr))
	assert.Equal(t, uint64(0), s.Balances().Rewards)
	assert.Equal(t, s.Balances().Held(), bank.BalanceOf(feesAddr))
}

func TestDistributeEntryFeeRejections(t *testing.T) {
	ctx := context.Background()
	s, bank, _ := newSettlement(t)
	require.NoError(t, bank.Mint(player, 50))

	tests := []struct {
		name   string
		caller chain.Address
		amount uint64
		want   error
	}{
		{"stranger", player, 10, chain.ErrUnauthorized},
		{"zero amount", runAddr, 0, chain.ErrInvalidAmount},
		{"underfunded payer", runAddr, 51, chain.ErrInsufficient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.DistributeEntryFee(ctx, tt.caller, player, tt.amount)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, Balances{}, s.Balances())
			assert.Equal(t, uint64(50), bank.BalanceOf(player))
		})
	}

	require.NoError(t, s.SetPaused(ctx, owner, true))
	err := s.DistributeEntryFee(ctx, runAddr, player, 10)
	assert.Equal(t, chain.KindPaused, chain.KindOf(err))
	assert.ErrorIs(t, s.SetPaused(ctx, player, false), chain.ErrUnauthorized)
}

func TestWithdrawRoles(t *testing.T) {
	ctx := context.Background()
	s, bank, _ := newSettlement(t)
	require.NoError(t, bank.Mint(player, 1000))
	require.NoError(t, s.DistributeEntryFee(ctx, runAddr, player, 1000))

	_, err := s.WithdrawRewardsBucket(ctx, owner, owner)
	assert.ErrorIs(t, err, chain.ErrUnauthorized)
	_, err = s.WithdrawDevBucket(ctx, rewAddr, rewAddr)
	assert.ErrorIs(t, err, chain.ErrUnauthorized)
	_, err = s.WithdrawDevBucket(ctx, owner, chain.ZeroAddress)
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)

	dev, err := s.WithdrawDevBucket(ctx, owner, treasury)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), dev)
	mkt, err := s.WithdrawMarketing(ctx, owner, treasury)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), mkt)
	assert.Equal(t, uint64(300), bank.BalanceOf(treasury))

	_, err = s.WithdrawDevBucket(ctx, owner, treasury)
	assert.ErrorIs(t, err, ErrNoBalance)
	assert.Equal(t, uint64(700), s.Balances().Rewards)
	assert.Equal(t, uint64(700), bank.BalanceOf(feesAddr))
}

func TestCarryOverRewards(t *testing.T) {
	ctx := context.Background()
	s, bank, _ := newSettlement(t)
	require.NoError(t, bank.Mint(rewAddr, 40))

	assert.ErrorIs(t, s.CarryOverRewards(ctx, runAddr, 10), chain.ErrUnauthorized)
	require.NoError(t, s.CarryOverRewards(ctx, rewAddr, 40))
	assert.Equal(t, uint64(40), s.Balances().Rewards)
	assert.Equal(t, uint64(0), s.Balances().TotalFeesReceived)
	assert.Equal(t, uint64(40), bank.BalanceOf(feesAddr))
	assert.NoError(t, s.CarryOverRewards(ctx, rewAddr, 0))
}

func TestNewRejectsBadSplit(t *testing.T) {
	_, err := New(Config{Address: feesAddr, Owner: owner, Split: Split{Rewards: 50, Dev: 20, Marketing: 20}}, chain.NewBank(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSplit)
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	s, bank, _ := newSettlement(t)
	require.NoError(t, bank.Mint(player, 300))
	require.NoError(t, s.DistributeEntryFee(ctx, runAddr, player, 300))

	other, err := New(Config{Address: feesAddr, Owner: owner}, bank, nil, nil)
	require.NoError(t, err)
	other.Restore(s.Snapshot())
	assert.Equal(t, s.Balances(), other.Balances())
	require.NoError(t, bank.Mint(player, 100))
	assert.NoError(t, other.DistributeEntryFee(ctx, runAddr, player, 100))
}
