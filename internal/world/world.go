// Package world builds one deployment: the bank, the stat token, and the four
// economy components wired to each other by address.
package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/config"
	"github.com/afurourrego/dungeonflip/internal/engine"
	"github.com/afurourrego/dungeonflip/internal/events"
	"github.com/afurourrego/dungeonflip/internal/fees"
	"github.com/afurourrego/dungeonflip/internal/progress"
	"github.com/afurourrego/dungeonflip/internal/rewards"
	"github.com/afurourrego/dungeonflip/internal/run"
	"github.com/afurourrego/dungeonflip/internal/snapshot"
	"github.com/afurourrego/dungeonflip/internal/token"
	"github.com/afurourrego/dungeonflip/internal/units"
)

// Addresses names every participant the deployment owns.
type Addresses struct {
	Owner     chain.Address
	Fees      chain.Address
	Ledger    chain.Address
	Rewards   chain.Address
	RunEngine chain.Address
}

// Options configure a World. Zero values fall back to production defaults.
type Options struct {
	Addresses       Addresses
	EntryFee        uint64
	MaxRooms        uint64
	CardsPerRoom    uint8
	MinWeekInterval time.Duration
	// Units defaults to DefaultDecimals when nil.
	Units           *units.Converter

	Clock     chain.Clock
	Entropy   engine.EntropySource
	Random    engine.RandomSource
	History   rewards.HistoryRecorder
	Archiver  rewards.Archiver
	Sinks     []events.Sink
	// LogOutput receives every component log; nil discards.
	LogOutput io.Writer
}

// World is a fully wired deployment.
type World struct {
	Addresses Addresses
	Units     units.Converter
	Clock     chain.Clock
	Bank      *chain.Bank
	Tokens    *token.Registry
	Bus       *events.Bus
	Fees      *fees.Settlement
	Ledger    *progress.Ledger
	Rewards   *rewards.Settlement
	Runs      *run.Engine

	// mu is held shared by every mutating operation in ops.go and
	// exclusively by Snapshot and Restore.
	mu     sync.RWMutex
	logger *log.Logger
}

func newLogger(out io.Writer, prefix string) *log.Logger {
	if out == nil {
		out = io.Discard
	}
	return log.New(out, prefix, log.LstdFlags|log.LUTC)
}

// New constructs and wires every component.
func New(opts Options) (*World, error) {
	a := opts.Addresses
	if a.Owner.IsZero() || a.Fees.IsZero() || a.Ledger.IsZero() || a.Rewards.IsZero() || a.RunEngine.IsZero() {
		return nil, fmt.Errorf("world: %w", chain.ErrInvalidAddress)
	}
	if opts.Clock == nil {
		opts.Clock = chain.SystemClock{}
	}
	conv, _ := units.New(units.DefaultDecimals)
	if opts.Units != nil {
		conv = *opts.Units
	}

	w := &World{
		Addresses: a,
		Units:     conv,
		Clock:     opts.Clock,
		Bank:      chain.NewBank(),
		Tokens:    token.NewRegistry(),
		Bus:       events.NewBus(opts.Clock, newLogger(opts.LogOutput, "[EVENTS] ")),
		logger:    newLogger(opts.LogOutput, "[WORLD] "),
	}
	for _, s := range opts.Sinks {
		w.Bus.AddSink(s)
	}

	var err error
	w.Fees, err = fees.New(fees.Config{Address: a.Fees, Owner: a.Owner, Split: fees.DefaultSplit}, w.Bank, w.Bus, newLogger(opts.LogOutput, "[FEES] "))
	if err != nil {
		return nil, fmt.Errorf("fees: %w", err)
	}
	w.Ledger, err = progress.New(progress.Config{Address: a.Ledger, Owner: a.Owner}, w.Bus, newLogger(opts.LogOutput, "[LEDGER] "))
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	w.Rewards, err = rewards.New(rewards.Config{
		Address:         a.Rewards,
		Owner:           a.Owner,
		RunEngine:       a.RunEngine,
		Ledger:          a.Ledger,
		MinWeekInterval: opts.MinWeekInterval,
	}, rewards.Deps{
		Ledger:   w.Ledger,
		Fees:     w.Fees,
		Bank:     w.Bank,
		Clock:    opts.Clock,
		Emitter:  w.Bus,
		Logger:   newLogger(opts.LogOutput, "[REWARDS] "),
		History:  opts.History,
		Archiver: opts.Archiver,
	})
	if err != nil {
		return nil, fmt.Errorf("rewards: %w", err)
	}

	w.Runs, err = run.New(run.Config{
		Address:      a.RunEngine,
		Owner:        a.Owner,
		EntryFee:     opts.EntryFee,
		MaxRooms:     opts.MaxRooms,
		CardsPerRoom: opts.CardsPerRoom,
	}, run.Deps{
		Tokens:  w.Tokens,
		Fees:    w.Fees,
		Ledger:  w.Ledger,
		Entropy: opts.Entropy,
		Random:  opts.Random,
		Clock:   opts.Clock,
		Emitter: w.Bus,
		Logger:  newLogger(opts.LogOutput, "[RUN] "),
	})
	if err != nil {
		return nil, fmt.Errorf("run engine: %w", err)
	}

	ctx := context.Background()
	if err := w.Fees.SetCollaborators(ctx, a.Owner, a.RunEngine, a.Rewards); err != nil {
		return nil, fmt.Errorf("wire fees: %w", err)
	}
	if err := w.Ledger.SetCollaborators(ctx, a.Owner, a.RunEngine, a.Rewards); err != nil {
		return nil, fmt.Errorf("wire ledger: %w", err)
	}
	return w, nil
}

// FromConfig builds Options from a validated configuration.
func FromConfig(cfg config.Config) (Options, error) {
	r, err := cfg.Resolve()
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		Addresses: Addresses{
			Owner:     r.Owner,
			Fees:      r.Fees,
			Ledger:    r.Ledger,
			Rewards:   r.Rewards,
			RunEngine: r.RunEngine,
		},
		EntryFee:        r.EntryFee,
		MaxRooms:        cfg.MaxRooms,
		CardsPerRoom:    cfg.CardsPerRoom,
		MinWeekInterval: cfg.MinWeekInterval,
		Units:           &r.Units,
		LogOutput:       os.Stderr,
	}
	if cfg.EntropySeed != "" {
		seed, err := engine.ParseHash(cfg.EntropySeed)
		if err != nil {
			return Options{}, fmt.Errorf("entropy_seed: %w", err)
		}
		opts.Entropy = engine.NewCounterEntropy(seed)
	}
	if cfg.ArchiveDir != "" {
		opts.Archiver = snapshot.NewArchiver(cfg.ArchiveDir)
	}
	return opts, nil
}

// Snapshot captures the whole deployment at a point between operations.
func (w *World) Snapshot() snapshot.World {
	w.mu.Lock()
	defer w.mu.Unlock()
	return snapshot.World{
		Header: snapshot.Header{
			Version: snapshot.Version,
			Seq:     w.Bus.Seq(),
			Week:    w.Ledger.CurrentWeek(),
			TakenAt: w.Clock.Now(),
		},
		Accounts: w.Bank.Accounts(),
		Tokens:   w.Tokens.Snapshot(),
		Fees:     w.Fees.Snapshot(),
		Ledger:   w.Ledger.Snapshot(),
		Rewards:  w.Rewards.Snapshot(),
		Runs:     w.Runs.Snapshot(),
	}
}

// Restore replaces every component's state with s.
func (w *World) Restore(s snapshot.World) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("restore: unsupported snapshot version %d", s.Header.Version)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if s.Rewards.CurrentWeek != 0 && s.Rewards.CurrentWeek != s.Ledger.CurrentWeek {
		w.logger.Printf("snapshot week counters differ: rewards=%d ledger=%d", s.Rewards.CurrentWeek, s.Ledger.CurrentWeek)
	}
	w.Bank.Restore(s.Accounts)
	w.Tokens.Restore(s.Tokens)
	w.Fees.Restore(s.Fees)
	w.Ledger.Restore(s.Ledger)
	w.Rewards.Restore(s.Rewards)
	w.Runs.Restore(s.Runs)
	w.Bus.SetSeq(s.Header.Seq)
	w.logger.Printf("restored: seq=%d week=%d sessions=%d", s.Header.Seq, s.Header.Week, len(s.Runs.Sessions))
	return nil
}

// SaveSnapshot writes the current state into dir and prunes old files.
func (w *World) SaveSnapshot(dir string, keep int) (string, error) {
	s := w.Snapshot()
	path := filepath.Join(dir, snapshot.FileName(s.Header.Seq))
	if err := snapshot.Write(path, s); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if keep > 0 {
		if _, err := snapshot.Prune(dir, keep); err != nil {
			w.logger.Printf("snapshot prune failed: dir=%s err=%v", dir, err)
		}
	}
	return path, nil
}

// LoadLatest restores from the newest snapshot in dir. It reports false
// when the directory holds none.
func (w *World) LoadLatest(dir string) (bool, error) {
	path, s, err := snapshot.Latest(dir)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if err := w.Restore(s); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	return true, nil
}
