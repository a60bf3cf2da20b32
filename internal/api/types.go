package api

import (
	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/dungeon"
	"github.com/afurourrego/dungeonflip/internal/engine"
	"github.com/afurourrego/dungeonflip/internal/fees"
	"github.com/afurourrego/dungeonflip/internal/progress"
	"github.com/afurourrego/dungeonflip/internal/rewards"
	"github.com/afurourrego/dungeonflip/internal/run"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidInput = "invalid_input"
	ErrTypeValidation   = "validation_error"

	// Ledger rejections
	ErrTypeUnauthorized = "unauthorized"
	ErrTypeInvalidState = "invalid_state"
	ErrTypeNotFound     = "not_found"
	ErrTypePaused       = "paused"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryLedger     ErrorCategory = "ledger"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidInput, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeUnauthorized, ErrTypeInvalidState, ErrTypeNotFound, ErrTypePaused:
		return CategoryLedger
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// WalletRequest is the body of every run operation after entry.
type WalletRequest struct {
	Wallet chain.Address `json:"wallet"`
}

// EnterRequest starts or resumes a run. Payment is a whole-token decimal
// string; "0" resumes a paused run.
type EnterRequest struct {
	Wallet  chain.Address `json:"wallet"`
	TokenID uint64        `json:"token_id"`
	Payment string        `json:"payment"`
}

// CardRequest picks one of the room's cards.
type CardRequest struct {
	Wallet    chain.Address `json:"wallet"`
	CardIndex uint8         `json:"card_index"`
}

// SessionResponse wraps a run session.
type SessionResponse struct {
	Session       run.Session `json:"session"`
	Score         uint64      `json:"score"`
	EngineVersion string      `json:"engine_version"`
}

// DrawResponse is the result of a card choice.
type DrawResponse struct {
	Draw          run.Draw `json:"draw"`
	EngineVersion string   `json:"engine_version"`
}

// VerifyRequest recomputes one card resolution.
type VerifyRequest struct {
	Seed      engine.Hash   `json:"seed"`
	Room      uint64        `json:"room"`
	Wallet    chain.Address `json:"wallet"`
	CardIndex uint8         `json:"card_index"`
	Entropy   engine.Hash   `json:"entropy"`
	HP        uint64        `json:"hp"`
	MaxHP     uint64        `json:"max_hp"`
	Atk       uint64        `json:"atk"`
	Def       uint64        `json:"def"`
}

// VerifyResponse carries the recomputed digest and outcome.
type VerifyResponse struct {
	Digest        engine.Hash     `json:"digest"`
	Outcome       dungeon.Outcome `json:"outcome"`
	NextSeed      engine.Hash     `json:"next_seed"`
	EngineVersion string          `json:"engine_version"`
	Echo          VerifyRequest   `json:"echo"`
}

// ConstantsResponse exposes the compatibility surface.
type ConstantsResponse struct {
	Run             run.Constants         `json:"run"`
	EntryFeeTokens  string                `json:"entry_fee_tokens"`
	TokenDecimals   int                   `json:"token_decimals"`
	FeeSplit        fees.Split            `json:"fee_split"`
	PrizeSchedule   [rewards.Slots]uint64 `json:"prize_schedule"`
	MinWeekInterval string                `json:"min_week_interval"`
	TopN            int                   `json:"top_n"`
	EngineVersion   string                `json:"engine_version"`
}

// LeaderboardResponse is one week's ranking.
type LeaderboardResponse struct {
	Week          uint64           `json:"week"`
	CurrentWeek   uint64           `json:"current_week"`
	Finalized     bool             `json:"finalized"`
	Entries       []progress.Entry `json:"entries"`
	EngineVersion string           `json:"engine_version"`
}

// PlayerResponse is a player's ledger record plus wallet state.
type PlayerResponse struct {
	Progress      *progress.Progress `json:"progress,omitempty"`
	ActiveToken   uint64             `json:"active_token,omitempty"`
	Balance       uint64             `json:"balance"`
	BalanceTokens string             `json:"balance_tokens"`
	Tokens        []uint64           `json:"tokens"`
	EngineVersion string             `json:"engine_version"`
}

// WeekStatus summarises the reward calendar.
type WeekStatus struct {
	CurrentWeek   uint64                `json:"current_week"`
	NextAdvanceAt string                `json:"next_advance_at"`
	Settled       []rewards.WeekHistory `json:"settled"`
	Buckets       fees.Balances         `json:"buckets"`
	EngineVersion string                `json:"engine_version"`
}

// AdvanceRequest names the caller of a permissionless week advance.
type AdvanceRequest struct {
	Caller chain.Address `json:"caller"`
}

// DistributeRequest pays the last closed week to explicit winners.
type DistributeRequest struct {
	Winners []chain.Address `json:"winners"`
}

// PauseRequest halts or resumes a component.
type PauseRequest struct {
	Component string `json:"component"`
	Paused    bool   `json:"paused"`
}

// WithdrawRequest drains an owner bucket.
type WithdrawRequest struct {
	Bucket string        `json:"bucket"`
	To     chain.Address `json:"to"`
}

// FaucetRequest credits test funds. Amount is a whole-token decimal string.
type FaucetRequest struct {
	To     chain.Address `json:"to"`
	Amount string        `json:"amount"`
}

// MintRequest mints an adventurer. Seed is optional.
type MintRequest struct {
	Owner chain.Address `json:"owner"`
	Seed  string        `json:"seed,omitempty"`
}

// MintResponse reports the minted token.
type MintResponse struct {
	TokenID       uint64 `json:"token_id"`
	Atk           uint64 `json:"atk"`
	Def           uint64 `json:"def"`
	HP            uint64 `json:"hp"`
	EngineVersion string `json:"engine_version"`
}
