package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/fees"
	"github.com/afurourrego/dungeonflip/internal/progress"
	"github.com/afurourrego/dungeonflip/internal/rewards"
	"github.com/afurourrego/dungeonflip/internal/run"
	"github.com/afurourrego/dungeonflip/internal/token"
)

var (
	alice = chain.MustAddress("0x00000000000000000000000000000000000a11ce")
	bob   = chain.MustAddress("0x0000000000000000000000000000000000000b0b")
)

func sampleWorld(seq uint64) World {
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	return World{
		Header:   Header{Seq: seq, Week: 3, TakenAt: at},
		Accounts: []chain.Account{{Address: alice, Balance: 900}, {Address: bob, Balance: 40}},
		Tokens: token.State{
			NextID: 2,
			Tokens: []token.Holding{{ID: 1, Owner: alice, Stats: token.Stats{Atk: 2, Def: 1, HP: 5}}},
		},
		Fees: fees.State{Balances: fees.Balances{Rewards: 70, Dev: 20, Marketing: 10, TotalFeesReceived: 100}},
		Ledger: progress.State{
			CurrentWeek:  3,
			TotalPlayers: 1,
			Players:      []progress.Progress{{Player: alice, TotalScore: 32, WeeklyScore: 32, GamesPlayed: 1, LastPlayedWeek: 3, IsActive: true, Seq: 1}},
			Finalized:    map[uint64][]progress.Entry{2: {{Rank: 1, Player: bob, Score: 11}}},
		},
		Rewards: rewards.State{CurrentWeek: 3, LastAdvance: at},
		Runs: run.State{Sessions: []run.Session{{
			TokenID:         1,
			Status:          run.StatusPaused,
			NFTDeposited:    true,
			LastKnownOwner:  alice,
			OccupyingWallet: alice,
			CurrentRoom:     4,
			CurrentHP:       3,
			MaxHP:           5,
		}}},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(17))
	want := sampleWorld(17)

	require.NoError(t, Write(path, want))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, Version, got.Header.Version)
	assert.Equal(t, want.Accounts, got.Accounts)
	assert.Equal(t, want.Ledger.Finalized, got.Ledger.Finalized)
	require.Len(t, got.Runs.Sessions, 1)
	assert.Equal(t, run.StatusPaused, got.Runs.Sessions[0].Status)
	assert.True(t, got.Rewards.LastAdvance.Equal(want.Rewards.LastAdvance))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), h.Seq)
	assert.Equal(t, uint64(3), h.Week)
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(1))
	w := sampleWorld(1)
	w.Header.Version = Version + 1
	require.NoError(t, Write(path, w))

	_, err := Read(path)
	assert.ErrorContains(t, err, "unsupported version")
}

func TestLatestAndPrune(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Latest(dir)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	for _, seq := range []uint64{5, 120, 30} {
		require.NoError(t, Write(filepath.Join(dir, FileName(seq)), sampleWorld(seq)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	paths, err := List(dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, FileName(5), filepath.Base(paths[0]))

	path, w, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, FileName(120), filepath.Base(path))
	assert.Equal(t, uint64(120), w.Header.Seq)

	removed, err := Prune(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	paths, err = List(dir)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestListMissingDir(t *testing.T) {
	paths, err := List(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestArchiveWeek(t *testing.T) {
	a := NewArchiver(t.TempDir())
	a.now = func() time.Time { return time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) }
	h := rewards.WeekHistory{
		WeekNumber:    4,
		TotalPrize:    700,
		Winners:       []chain.Address{alice, bob},
		Amounts:       []uint64{420, 280},
		Distributed:   true,
		DistributedAt: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, a.ArchiveWeek(context.Background(), h))
	assert.DirExists(t, filepath.Join(a.Dir(), "week_004"))
	assert.FileExists(t, filepath.Join(a.WeekDir(4), "meta.json"))

	got, err := a.ReadWeek(4)
	require.NoError(t, err)
	assert.Equal(t, h.Winners, got.Winners)
	assert.Equal(t, h.Amounts, got.Amounts)
	assert.Equal(t, uint64(700), got.TotalPrize)

	_, err = a.ReadWeek(5)
	assert.Error(t, err)
}

func TestArchiveWeekHonoursContext(t *testing.T) {
	a := NewArchiver(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.ArchiveWeek(ctx, rewards.WeekHistory{WeekNumber: 1}), context.Canceled)
}
