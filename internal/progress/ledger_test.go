package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/events"
)

var (
	owner      = chain.MustAddress("0x0000000000000000000000000000000000000001")
	ledgerAddr = chain.MustAddress("0x00000000000000000000000000000000000000c1")
	runAddr    = chain.MustAddress("0x00000000000000000000000000000000000000e1")
	rewAddr    = chain.MustAddress("0x00000000000000000000000000000000000000d1")
)

func addr(n int) chain.Address {
	return chain.MustAddress(fmt.Sprintf("0x%040x", 0xa000+n))
}

func newLedger(t *testing.T) (*Ledger, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	l, err := New(Config{Address: ledgerAddr, Owner: owner}, rec, nil)
	require.NoError(t, err)
	require.NoError(t, l.SetCollaborators(context.Background(), owner, runAddr, rewAddr))
	return l, rec
}

func TestRecordScore(t *testing.T) {
	ctx := context.Background()
	l, rec := newLedger(t)
	p := addr(1)

	require.NoError(t, l.RecordScore(ctx, runAddr, p, 30))
	require.NoError(t, l.RecordScore(ctx, runAddr, p, 12))

	got, err := l.Player(p)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.TotalScore)
	assert.Equal(t, uint64(42), got.WeeklyScore)
	assert.Equal(t, uint64(2), got.GamesPlayed)
	assert.Equal(t, uint64(1), got.LastPlayedWeek)
	assert.True(t, got.IsActive)
	assert.Equal(t, uint64(1), l.TotalPlayers())

	last := rec.Last().(events.ScoreUpdated)
	assert.Equal(t, events.ScoreUpdated{Player: p, Delta: 12, TotalScore: 42, WeeklyScore: 42, Week: 1}, last)
}

func TestRecordScoreRejections(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	assert.ErrorIs(t, l.RecordScore(ctx, owner, addr(1), 5), chain.ErrUnauthorized)
	assert.ErrorIs(t, l.RecordScore(ctx, runAddr, addr(1), 0), chain.ErrInvalidAmount)
	assert.ErrorIs(t, l.RecordScore(ctx, runAddr, chain.ZeroAddress, 5), chain.ErrInvalidAddress)
	assert.Equal(t, uint64(0), l.TotalPlayers())

	_, err := l.Player(addr(1))
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestLazyWeeklyReset(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	p := addr(1)

	require.NoError(t, l.RecordScore(ctx, runAddr, p, 50))
	week, err := l.AdvanceEpoch(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), week)

	// stored weekly score is stale but reads as zero
	got, err := l.Player(p)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.WeeklyScore)
	assert.Equal(t, uint64(50), got.TotalScore)

	require.NoError(t, l.RecordScore(ctx, runAddr, p, 7))
	got, _ = l.Player(p)
	assert.Equal(t, uint64(7), got.WeeklyScore)
	assert.Equal(t, uint64(57), got.TotalScore)
	assert.Equal(t, uint64(1), l.TotalPlayers())
}

func TestRankingIsStaleAware(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	require.NoError(t, l.RecordScore(ctx, runAddr, addr(1), 500))
	_, err := l.AdvanceEpoch(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, l.RecordScore(ctx, runAddr, addr(2), 10))

	top, err := l.TopPlayers(ctx, rewAddr, 2)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, Entry{Rank: 1, Player: addr(2), Score: 10}, top[0])
}

func TestTopPlayersOrderingAndTies(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	// addr(5) reaches 20 before addr(3); equal scores keep first-come order.
	require.NoError(t, l.RecordScore(ctx, runAddr, addr(5), 20))
	require.NoError(t, l.RecordScore(ctx, runAddr, addr(3), 20))
	require.NoError(t, l.RecordScore(ctx, runAddr, addr(4), 90))
	for i := 10; i < 22; i++ {
		require.NoError(t, l.RecordScore(ctx, runAddr, addr(i), uint64(i)))
	}

	top, err := l.TopPlayers(ctx, rewAddr, 1)
	require.NoError(t, err)
	require.Len(t, top, TopN)
	assert.Equal(t, addr(4), top[0].Player)
	assert.Equal(t, addr(21), top[1].Player)
	assert.Equal(t, addr(5), top[2].Player)
	assert.Equal(t, uint64(20), top[2].Score)
	assert.Equal(t, addr(3), top[3].Player)
	for i, e := range top {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.False(t, l.Finalized(1), "open week is not cached")
}

func TestTopPlayersFinalizedIsStable(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	require.NoError(t, l.RecordScore(ctx, runAddr, addr(1), 30))
	require.NoError(t, l.RecordScore(ctx, runAddr, addr(2), 40))

	closed, top, err := l.CloseEpoch(ctx, rewAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), closed)
	assert.Equal(t, uint64(2), l.CurrentWeek())
	assert.True(t, l.Finalized(1))

	// later writes can not move the closed week
	require.NoError(t, l.RecordScore(ctx, runAddr, addr(1), 100))

	first, err := l.TopPlayers(ctx, rewAddr, 1)
	require.NoError(t, err)
	second, err := l.TopPlayers(ctx, rewAddr, 1)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, a, b)
	assert.Equal(t, top, first)
	assert.Equal(t, addr(2), first[0].Player)

	board, err := l.Leaderboard(1)
	require.NoError(t, err)
	assert.Equal(t, first, board)
}

func TestTopPlayersAccessAndBounds(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	_, err := l.TopPlayers(ctx, runAddr, 1)
	assert.ErrorIs(t, err, chain.ErrUnauthorized)
	_, err = l.TopPlayers(ctx, rewAddr, 2)
	assert.ErrorIs(t, err, ErrUnknownWeek)
	_, err = l.TopPlayers(ctx, rewAddr, 0)
	assert.ErrorIs(t, err, ErrUnknownWeek)
	_, err = l.AdvanceEpoch(ctx, addr(9))
	assert.ErrorIs(t, err, chain.ErrUnauthorized)
	_, _, err = l.CloseEpoch(ctx, addr(9))
	assert.ErrorIs(t, err, chain.ErrUnauthorized)

	top, err := l.TopPlayers(ctx, rewAddr, 1)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestLeaderboardDoesNotFinalize(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	require.NoError(t, l.RecordScore(ctx, runAddr, addr(1), 30))
	_, err := l.AdvanceEpoch(ctx, owner)
	require.NoError(t, err)

	_, err = l.Leaderboard(1)
	require.NoError(t, err)
	assert.False(t, l.Finalized(1))
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	require.NoError(t, l.RecordScore(ctx, runAddr, addr(1), 30))
	_, _, err := l.CloseEpoch(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, l.RecordScore(ctx, runAddr, addr(2), 10))

	other, err := New(Config{Address: ledgerAddr, Owner: owner}, nil, nil)
	require.NoError(t, err)
	other.Restore(l.Snapshot())
	assert.Equal(t, l.Snapshot(), other.Snapshot())

	require.NoError(t, other.RecordScore(ctx, runAddr, addr(3), 10))
	board, err := other.Leaderboard(2)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, addr(2), board[0].Player, "restored sequence keeps first-come order")
}
