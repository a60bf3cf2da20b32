// Package run implements the RunEngine: custody of the adventurer token,
// entry-fee collection, room-by-room card resolution, pause and resume,
// death, exit and the recovery paths.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/dungeon"
	"github.com/afurourrego/dungeonflip/internal/engine"
	"github.com/afurourrego/dungeonflip/internal/events"
	"github.com/afurourrego/dungeonflip/internal/token"
)

// Defaults.
const (
	DefaultMaxRooms     = 100
	DefaultCardsPerRoom = 4
)

// FeeCollector is the slice of the fee settlement the engine pays into.
type FeeCollector interface {
	DistributeEntryFee(ctx context.Context, caller, payer chain.Address, amount uint64) error
}

// ScoreRecorder is the slice of the progress ledger the engine reports to.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, caller, player chain.Address, amount uint64) error
}

// Config fixes the engine's identity and game constants.
type Config struct {
	Address      chain.Address
	Owner        chain.Address
	EntryFee     uint64
	MaxRooms     uint64
	CardsPerRoom uint8
}

// Deps are the collaborators, injected at construction.
type Deps struct {
	Tokens  token.StatToken
	Fees    FeeCollector
	Ledger  ScoreRecorder
	Entropy engine.EntropySource
	Random  engine.RandomSource
	Clock   chain.Clock
	Emitter events.Emitter
	Logger  *log.Logger
}

// Engine is the RunEngine component.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	paused   bool
	sessions map[uint64]*Session
	active   map[chain.Address]uint64

	tokens  token.StatToken
	fees    FeeCollector
	ledger  ScoreRecorder
	entropy engine.EntropySource
	random  engine.RandomSource
	clock   chain.Clock
	emit    events.Emitter
	logger  *log.Logger
}

// New creates an engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Address.IsZero() || cfg.Owner.IsZero() {
		return nil, chain.ErrInvalidAddress
	}
	if cfg.EntryFee == 0 {
		return nil, chain.ErrInvalidAmount.With("entry fee must be greater than zero")
	}
	if deps.Tokens == nil || deps.Fees == nil || deps.Ledger == nil {
		return nil, errors.New("run: tokens, fees and ledger are required")
	}
	if cfg.MaxRooms == 0 {
		cfg.MaxRooms = DefaultMaxRooms
	}
	if cfg.CardsPerRoom == 0 {
		cfg.CardsPerRoom = DefaultCardsPerRoom
	}
	if deps.Entropy == nil {
		deps.Entropy = engine.CryptoEntropy{}
	}
	if deps.Random == nil {
		deps.Random = engine.HMACSource{}
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
	return &Engine{
		cfg:      cfg,
		sessions: make(map[uint64]*Session),
		active:   make(map[chain.Address]uint64),
		tokens:   deps.Tokens,
		fees:     deps.Fees,
		ledger:   deps.Ledger,
		entropy:  deps.Entropy,
		random:   deps.Random,
		clock:    deps.Clock,
		emit:     deps.Emitter,
		logger:   deps.Logger,
	}, nil
}

func (e *Engine) Address() chain.Address { return e.cfg.Address }

// Constants are the game parameters that form the compatibility surface.
type Constants struct {
	EntryFee         uint64           `json:"entry_fee"`
	MaxRooms         uint64           `json:"max_rooms"`
	CardsPerRoom     uint8            `json:"cards_per_room"`
	CardTable        []dungeon.Weight `json:"card_table"`
	CardTableVersion int              `json:"card_table_version"`
	RoomWeight       uint64           `json:"room_weight"`
	GemWeight        uint64           `json:"gem_weight"`
	PlayerHitChance  float64          `json:"player_hit_chance"`
	EnemyHitChance   float64          `json:"enemy_hit_chance"`
	MaxCombatRounds  int              `json:"max_combat_rounds"`
}

func (e *Engine) Constants() Constants {
	return Constants{
		EntryFee:         e.cfg.EntryFee,
		MaxRooms:         e.cfg.MaxRooms,
		CardsPerRoom:     e.cfg.CardsPerRoom,
		CardTable:        dungeon.Table(),
		CardTableVersion: dungeon.CardTableVersion,
		RoomWeight:       RoomWeight,
		GemWeight:        GemWeight,
		PlayerHitChance:  dungeon.PlayerHitChance,
		EnemyHitChance:   dungeon.EnemyHitChance,
		MaxCombatRounds:  dungeon.MaxCombatRounds,
	}
}

// SetPaused halts or resumes entering and card draws. Exit, pause, claim
// and force-withdraw stay open so custody can always be recovered.
func (e *Engine) SetPaused(_ context.Context, caller chain.Address, paused bool) error {
	if caller != e.cfg.Owner {
		return chain.ErrUnauthorized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = paused
	e.logger.Printf("paused=%t", paused)
	return nil
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Session returns a copy of the token's run record.
func (e *Engine) Session(tokenID uint64) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[tokenID]
	if !ok {
		return Session{}, ErrUnknownRun.With("token %d has never entered", tokenID)
	}
	return *s, nil
}

// ActiveTokenOf returns the token a wallet has active or paused.
func (e *Engine) ActiveTokenOf(wallet chain.Address) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.active[wallet]
	return id, ok
}

// EnterDungeon starts a fresh run (payment must equal the entry fee) or
// resumes a paused one (payment must be zero). Either way the token moves
// into the engine's custody.
func (e *Engine) EnterDungeon(ctx context.Context, caller chain.Address, tokenID uint64, payment uint64) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return Session{}, chain.ErrHalted
	}
	sess := e.sessions[tokenID]
	if sess != nil {
		switch sess.Status {
		case StatusActive:
			return Session{}, ErrAlreadyActive.With("token %d is already in the dungeon", tokenID)
		case StatusDead:
			return Session{}, ErrClaimRequired
		}
	}

	owner, err := e.tokens.OwnerOf(tokenID)
	if err != nil {
		return Session{}, err
	}
	if caller.IsZero() || owner != caller {
		return Session{}, ErrNotOwner
	}

	if sess != nil && sess.Status == StatusPaused {
		return e.resume(ctx, caller, sess, payment)
	}
	return e.start(ctx, caller, tokenID, payment)
}

func (e *Engine) resume(ctx context.Context, caller chain.Address, sess *Session, payment uint64) (Session, error) {
	if sess.OccupyingWallet != caller {
		return Session{}, ErrInvalidResumeState.With("token %d was paused by %s; force-withdraw it first", sess.TokenID, sess.OccupyingWallet)
	}
	if payment != 0 {
		return Session{}, ErrIncorrectFee.With("resume is free, got %d", payment)
	}
	if err := e.tokens.TransferFrom(ctx, e.cfg.Address, caller, e.cfg.Address, sess.TokenID); err != nil {
		return Session{}, err
	}

	sess.Status = StatusActive
	sess.NFTDeposited = true
	sess.LastKnownOwner = caller
	sess.LastCheckpointTime = e.clock.Now()

	e.logger.Printf("run resumed: token=%d wallet=%s room=%d hp=%d gems=%d", sess.TokenID, caller.Short(), sess.CurrentRoom, sess.CurrentHP, sess.GemsCollected)
	e.emit.Emit(events.RunStarted{TokenID: sess.TokenID, Wallet: caller, Room: sess.CurrentRoom, Resumed: true})
	return *sess, nil
}

func (e *Engine) start(ctx context.Context, caller chain.Address, tokenID uint64, payment uint64) (Session, error) {
	if payment == 0 {
		return Session{}, ErrInvalidResumeState.With("token %d has no paused run to resume", tokenID)
	}
	if payment != e.cfg.EntryFee {
		return Session{}, ErrIncorrectFee.With("entry fee is %d, got %d", e.cfg.EntryFee, payment)
	}
	if other, ok := e.active[caller]; ok {
		return Session{}, ErrAlreadyActive.With("%s is already running token %d", caller.Short(), other)
	}
	stats, err := e.tokens.StatsOf(tokenID)
	if err != nil {
		return Session{}, err
	}
	entropy, err := e.entropy.Entropy()
	if err != nil {
		return Session{}, fmt.Errorf("enter dungeon: %w", err)
	}

	if err := e.tokens.TransferFrom(ctx, e.cfg.Address, caller, e.cfg.Address, tokenID); err != nil {
		return Session{}, err
	}
	if err := e.fees.DistributeEntryFee(ctx, e.cfg.Address, caller, payment); err != nil {
		if rerr := e.tokens.TransferFrom(ctx, e.cfg.Address, e.cfg.Address, caller, tokenID); rerr != nil {
			e.logger.Printf("custody rollback failed: token=%d wallet=%s err=%v", tokenID, caller, rerr)
		}
		return Session{}, err
	}

	now := e.clock.Now()
	prev := e.sessions[tokenID]
	sess := &Session{
		TokenID:            tokenID,
		Status:             StatusActive,
		NFTDeposited:       true,
		LastKnownOwner:     caller,
		OccupyingWallet:    caller,
		CurrentRoom:        1,
		CurrentHP:          stats.HP,
		MaxHP:              stats.HP,
		Atk:                stats.Atk,
		Def:                stats.Def,
		Seed:               engine.SessionSeed(tokenID, caller, entropy, now.Unix()),
		LastCheckpointTime: now,
		RunsStarted:        1,
	}
	if prev != nil {
		sess.RunsStarted = prev.RunsStarted + 1
		sess.LastScore = prev.LastScore
	}
	e.sessions[tokenID] = sess
	e.active[caller] = tokenID

	e.logger.Printf("run started: token=%d wallet=%s hp=%d atk=%d def=%d fee=%d", tokenID, caller.Short(), stats.HP, stats.Atk, stats.Def, payment)
	e.emit.Emit(events.RunStarted{TokenID: tokenID, Wallet: caller, Room: 1})
	return *sess, nil
}

// Draw is the result of one ChooseCard call.
type Draw struct {
	Session   Session         `json:"session"`
	Outcome   dungeon.Outcome `json:"outcome"`
	Room      uint64          `json:"room"`
	CardIndex uint8           `json:"card_index"`
	Entropy   engine.Hash     `json:"entropy"`
	Digest    engine.Hash     `json:"digest"`
	Seed      engine.Hash     `json:"seed"`
}

// ChooseCard resolves one card in the current room. The resolution and
// the checkpoint it produces are applied together.
func (e *Engine) ChooseCard(_ context.Context, caller chain.Address, tokenID uint64, cardIndex uint8) (Draw, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return Draw{}, chain.ErrHalted
	}
	sess, ok := e.sessions[tokenID]
	if !ok {
		return Draw{}, ErrUnknownRun
	}
	if sess.Status != StatusActive {
		return Draw{}, ErrNotActive.With("token %d is %s", tokenID, sess.Status)
	}
	if !sess.NFTDeposited {
		return Draw{}, ErrNotDeposited
	}
	if sess.CurrentHP == 0 {
		return Draw{}, ErrZeroHP
	}
	if caller.IsZero() || caller != sess.OccupyingWallet {
		return Draw{}, ErrNotOccupant
	}
	if cardIndex >= e.cfg.CardsPerRoom {
		return Draw{}, ErrInvalidCardIndex.With("card index %d, room has %d cards", cardIndex, e.cfg.CardsPerRoom)
	}
	if sess.CurrentRoom > e.cfg.MaxRooms {
		return Draw{}, ErrDungeonCleared
	}
	entropy, err := e.entropy.Entropy()
	if err != nil {
		return Draw{}, fmt.Errorf("choose card: %w", err)
	}

	room := sess.CurrentRoom
	seed := sess.Seed
	digest := engine.DrawDigest(seed, room, sess.OccupyingWallet, cardIndex, entropy)
	out := dungeon.Resolve(e.random.Stream(digest), sess.adventurer())

	sess.Seed = engine.AdvanceSeed(seed, digest)
	sess.CurrentHP = out.HPAfter
	sess.GemsCollected += out.Gems
	sess.LastCheckpointTime = e.clock.Now()
	if out.Died {
		sess.Status = StatusDead
		delete(e.active, sess.OccupyingWallet)
	} else {
		sess.CurrentRoom++
	}

	e.emit.Emit(events.CardResolved{
		TokenID:   tokenID,
		CardIndex: cardIndex,
		CardType:  out.Card,
		Room:      sess.CurrentRoom,
		HP:        sess.CurrentHP,
		Gems:      sess.GemsCollected,
		Draw:      digest,
	})
	if out.Died {
		e.logger.Printf("adventurer died: token=%d room=%d gems=%d card=%s", tokenID, sess.CurrentRoom, sess.GemsCollected, out.Card)
		e.emit.Emit(events.RunDied{TokenID: tokenID, Room: sess.CurrentRoom, Gems: sess.GemsCollected})
	}
	return Draw{Session: *sess, Outcome: out, Room: room, CardIndex: cardIndex, Entropy: entropy, Digest: digest, Seed: seed}, nil
}

// PauseRun hands the token back and keeps the checkpoint for a free resume.
func (e *Engine) PauseRun(ctx context.Context, caller chain.Address, tokenID uint64) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.activeSession(caller, tokenID)
	if err != nil {
		return Session{}, err
	}
	if err := e.tokens.TransferFrom(ctx, e.cfg.Address, e.cfg.Address, sess.LastKnownOwner, tokenID); err != nil {
		return Session{}, err
	}
	sess.Status = StatusPaused
	sess.NFTDeposited = false
	sess.LastCheckpointTime = e.clock.Now()

	e.logger.Printf("run paused: token=%d room=%d hp=%d gems=%d", tokenID, sess.CurrentRoom, sess.CurrentHP, sess.GemsCollected)
	e.emit.Emit(events.RunPaused{TokenID: tokenID, Room: sess.CurrentRoom, HP: sess.CurrentHP, Gems: sess.GemsCollected})
	return *sess, nil
}

// ExitDungeon banks the run's score and returns the token.
func (e *Engine) ExitDungeon(ctx context.Context, caller chain.Address, tokenID uint64) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.activeSession(caller, tokenID)
	if err != nil {
		return Session{}, err
	}
	if sess.CurrentHP == 0 {
		return Session{}, ErrZeroHP
	}
	if err := e.checkCustody(tokenID); err != nil {
		return Session{}, err
	}

	rooms, gems := sess.RoomsCleared(), sess.GemsCollected
	score := Score(rooms, gems)
	player := sess.OccupyingWallet
	if err := e.report(ctx, player, score); err != nil {
		return Session{}, err
	}
	if err := e.release(ctx, sess); err != nil {
		return Session{}, err
	}
	delete(e.active, player)
	sess.Status = StatusCompleted
	sess.LastScore = score
	sess.clearAccruals()

	e.logger.Printf("run exited: token=%d wallet=%s rooms=%d gems=%d score=%d", tokenID, player.Short(), rooms, gems, score)
	e.emit.Emit(events.RunExited{TokenID: tokenID, RoomsCleared: rooms, Gems: gems, Score: score})
	return *sess, nil
}

// ClaimAfterDeath returns a dead adventurer's token and banks the score
// reached before death.
func (e *Engine) ClaimAfterDeath(ctx context.Context, caller chain.Address, tokenID uint64) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[tokenID]
	if !ok {
		return Session{}, ErrUnknownRun
	}
	if sess.Status != StatusDead {
		return Session{}, ErrNotDead.With("token %d is %s", tokenID, sess.Status)
	}
	if !sess.NFTDeposited {
		return Session{}, ErrNotDeposited
	}
	if !e.mayRecover(caller, sess) {
		return Session{}, ErrNotOwner
	}
	if err := e.checkCustody(tokenID); err != nil {
		return Session{}, err
	}

	score := Score(sess.RoomsCleared(), sess.GemsCollected)
	if err := e.report(ctx, sess.LastKnownOwner, score); err != nil {
		return Session{}, err
	}
	if err := e.release(ctx, sess); err != nil {
		return Session{}, err
	}
	sess.Status = StatusIdle
	sess.LastScore = score
	sess.clearAccruals()

	e.logger.Printf("claimed after death: token=%d to=%s score=%d", tokenID, sess.LastKnownOwner.Short(), score)
	e.emit.Emit(events.RunWithdrawn{TokenID: tokenID, To: sess.LastKnownOwner, Score: score})
	return *sess, nil
}

// ForceWithdraw is the recovery path for a run that is neither active nor
// dead. A paused run is abandoned and its wallet slot freed; a token stuck
// in custody is returned. No score is reported.
func (e *Engine) ForceWithdraw(ctx context.Context, caller chain.Address, tokenID uint64) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[tokenID]
	if !ok {
		return Session{}, ErrUnknownRun
	}
	switch sess.Status {
	case StatusActive:
		return Session{}, ErrInvalidResumeState.With("token %d is active; pause or exit instead", tokenID)
	case StatusDead:
		return Session{}, ErrClaimRequired
	}
	if sess.Status != StatusPaused && !sess.NFTDeposited {
		return Session{}, ErrNotDeposited
	}
	if !e.mayRecover(caller, sess) {
		return Session{}, ErrNotOwner
	}

	var to chain.Address
	if sess.NFTDeposited {
		if err := e.checkCustody(tokenID); err != nil {
			return Session{}, err
		}
		if err := e.release(ctx, sess); err != nil {
			return Session{}, err
		}
		to = sess.LastKnownOwner
	}
	if id, ok := e.active[sess.OccupyingWallet]; ok && id == tokenID {
		delete(e.active, sess.OccupyingWallet)
	}
	from := sess.Status
	sess.Status = StatusIdle
	sess.clearAccruals()

	e.logger.Printf("force withdrawn: token=%d from=%s caller=%s returned=%t", tokenID, from, caller.Short(), !to.IsZero())
	e.emit.Emit(events.RunWithdrawn{TokenID: tokenID, To: to, Forced: true})
	return *sess, nil
}

func (e *Engine) activeSession(caller chain.Address, tokenID uint64) (*Session, error) {
	sess, ok := e.sessions[tokenID]
	if !ok {
		return nil, ErrUnknownRun
	}
	if sess.Status != StatusActive {
		return nil, ErrNotActive.With("token %d is %s", tokenID, sess.Status)
	}
	if !sess.NFTDeposited {
		return nil, ErrNotDeposited
	}
	if caller.IsZero() || caller != sess.OccupyingWallet {
		return nil, ErrNotOccupant
	}
	return sess, nil
}

// mayRecover allows the current token owner or the last wallet that
// deposited it.
func (e *Engine) mayRecover(caller chain.Address, sess *Session) bool {
	if caller.IsZero() {
		return false
	}
	if caller == sess.LastKnownOwner {
		return true
	}
	owner, err := e.tokens.OwnerOf(sess.TokenID)
	return err == nil && owner == caller
}

func (e *Engine) checkCustody(tokenID uint64) error {
	owner, err := e.tokens.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if owner != e.cfg.Address {
		return ErrCustodyMismatch.With("token %d is held by %s", tokenID, owner)
	}
	return nil
}

func (e *Engine) report(ctx context.Context, player chain.Address, score uint64) error {
	if score == 0 {
		return nil
	}
	return e.ledger.RecordScore(ctx, e.cfg.Address, player, score)
}

func (e *Engine) release(ctx context.Context, sess *Session) error {
	if err := e.tokens.TransferFrom(ctx, e.cfg.Address, e.cfg.Address, sess.LastKnownOwner, sess.TokenID); err != nil {
		return err
	}
	sess.NFTDeposited = false
	return nil
}

// State is the serialisable form of an Engine.
type State struct {
	Paused   bool      `json:"paused"`
	Sessions []Session `json:"sessions"`
}

// Snapshot captures every session.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := State{Paused: e.paused}
	for _, s := range e.sessions {
		st.Sessions = append(st.Sessions, *s)
	}
	sort.Slice(st.Sessions, func(i, j int) bool { return st.Sessions[i].TokenID < st.Sessions[j].TokenID })
	return st
}

// Restore replaces every session and rebuilds the wallet index.
func (e *Engine) Restore(st State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = st.Paused
	e.sessions = make(map[uint64]*Session, len(st.Sessions))
	e.active = make(map[chain.Address]uint64)
	for i := range st.Sessions {
		s := st.Sessions[i]
		e.sessions[s.TokenID] = &s
		if (s.Status == StatusActive || s.Status == StatusPaused) && !s.OccupyingWallet.IsZero() {
			e.active[s.OccupyingWallet] = s.TokenID
		}
	}
}
