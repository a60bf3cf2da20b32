// Package client is a Go client for a dungeon node's HTTP API.
//
// Every request carries an X-Request-Id so a failed call can be matched
// against the node's logs. Reads are retried with exponential backoff on
// server errors; writes are retried only when the node cannot have
// applied them.
//
//	c := client.New(client.Config{BaseURL: "http://127.0.0.1:8787"})
//	sess, err := c.Enter(ctx, wallet, tokenID, "0.00001")
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/afurourrego/dungeonflip/internal/api"
	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/events"
	"github.com/afurourrego/dungeonflip/internal/fees"
	"github.com/afurourrego/dungeonflip/internal/rewards"
	"github.com/afurourrego/dungeonflip/internal/store"
)

// Config holds client settings.
type Config struct {
	// BaseURL is the node's root, e.g. http://127.0.0.1:8787.
	BaseURL string

	// AdminToken is sent as a bearer token on admin routes.
	AdminToken string

	// MaxRetries defaults to 3.
	MaxRetries uint64

	// BaseRetryDelay defaults to 250ms.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the backoff. Defaults to 5s.
	MaxRetryDelay time.Duration

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	UserAgent string
}

// Client talks to one node.
type Client struct {
	config Config
	http   *http.Client
}

// New creates a client.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8787"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 250 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "dungeonctl"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{config: cfg, http: httpClient}
}

// BaseURL returns the node root.
func (c *Client) BaseURL() string { return c.config.BaseURL }

type call struct {
	method string
	path   string
	query  url.Values
	body   any
	admin  bool
}

// do sends c and decodes a 2xx body into out. out may be nil or an
// io.Writer, which receives the raw body.
func (c *Client) do(ctx context.Context, req call, out any) error {
	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("dungeon: marshal request: %w", err)
		}
		payload = b
	}
	target := c.config.BaseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	requestID := uuid.NewString()

	backoff := retry.NewExponential(c.config.BaseRetryDelay)
	backoff = retry.WithCappedDuration(c.config.MaxRetryDelay, backoff)
	backoff = retry.WithMaxRetries(c.config.MaxRetries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.send(ctx, req, target, requestID, payload, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsRetryable(req.method) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) send(ctx context.Context, req call, target, requestID string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("dungeon: create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("X-Request-Id", requestID)
	if req.admin && c.config.AdminToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.AdminToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dungeon: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("dungeon: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, respBody, requestID)
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case io.Writer:
		_, err := dst.Write(respBody)
		return err
	default:
		if err := json.Unmarshal(respBody, dst); err != nil {
			return fmt.Errorf("dungeon: invalid response JSON: %w", err)
		}
		return nil
	}
}

func decodeError(resp *http.Response, body []byte, requestID string) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}
	var ee api.EngineError
	if err := json.Unmarshal(body, &ee); err == nil && ee.Type != "" {
		apiErr.Type = ee.Type
		apiErr.Code = ee.Code
		apiErr.Message = ee.Message
		apiErr.Context = ee.Context
		if ee.RequestID != "" {
			apiErr.RequestID = ee.RequestID
		}
		return apiErr
	}
	apiErr.Type = resp.Header.Get("X-Error-Type")
	apiErr.Code = resp.Header.Get("X-Error-Code")
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func tokenPath(tokenID uint64, op string) string {
	return "/api/v1/runs/" + strconv.FormatUint(tokenID, 10) + "/" + op
}

// --- reads ---

// Health returns the node's health report. An unhealthy node answers 503,
// which surfaces as an *APIError once retries run out.
func (c *Client) Health(ctx context.Context) (api.HealthCheckResponse, error) {
	var out api.HealthCheckResponse
	err := c.do(ctx, call{method: http.MethodGet, path: "/health"}, &out)
	return out, err
}

// Constants returns the run engine's compatibility surface.
func (c *Client) Constants(ctx context.Context) (api.ConstantsResponse, error) {
	var out api.ConstantsResponse
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/v1/constants"}, &out)
	return out, err
}

// Session returns the run session of tokenID.
func (c *Client) Session(ctx context.Context, tokenID uint64) (api.SessionResponse, error) {
	var out api.SessionResponse
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/v1/sessions/" + strconv.FormatUint(tokenID, 10)}, &out)
	return out, err
}

// Player returns a wallet's ledger record and holdings.
func (c *Client) Player(ctx context.Context, wallet chain.Address) (api.PlayerResponse, error) {
	var out api.PlayerResponse
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/v1/players/" + url.PathEscape(wallet.String())}, &out)
	return out, err
}

// Leaderboard returns a week's top players. Week 0 means the current week.
func (c *Client) Leaderboard(ctx context.Context, week uint64) (api.LeaderboardResponse, error) {
	q := url.Values{}
	if week > 0 {
		q.Set("week", strconv.FormatUint(week, 10))
	}
	var out api.LeaderboardResponse
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/v1/leaderboard", query: q}, &out)
	return out, err
}

// FeeState is the fee settlement's public state.
type FeeState struct {
	Balances fees.Balances `json:"balances"`
	Split    fees.Split    `json:"split"`
	Paused   bool          `json:"paused"`
}

// Fees returns the fee buckets.
func (c *Client) Fees(ctx context.Context) (FeeState, error) {
	var out FeeState
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/v1/fees"}, &out)
	return out, err
}

// EventFilter narrows Events. Zero fields match anything.
type EventFilter struct {
	Type    events.Type
	TokenID uint64
	After   uint64
	Limit   int
}

// Events lists journaled events in sequence order.
func (c *Client) Events(ctx context.Context, f EventFilter) ([]store.EventRecord, error) {
	q := url.Values{}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.TokenID > 0 {
		q.Set("token", strconv.FormatUint(f.TokenID, 10))
	}
	if f.After > 0 {
		q.Set("after", strconv.FormatUint(f.After, 10))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var out struct {
		Events []store.EventRecord `json:"events"`
	}
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/v1/events", query: q}, &out)
	return out.Events, err
}

// Verify recomputes a card resolution on the node.
func (c *Client) Verify(ctx context.Context, req api.VerifyRequest) (api.VerifyResponse, error) {
	var out api.VerifyResponse
	err := c.do(ctx, call{method: http.MethodPost, path: "/api/v1/verify", body: req}, &out)
	return out, err
}

// Weeks returns the reward calendar.
func (c *Client) Weeks(ctx context.Context) (api.WeekStatus, error) {
	var out api.WeekStatus
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/v1/weeks"}, &out)
	return out, err
}

// Week returns one settled week.
func (c *Client) Week(ctx context.Context, week uint64) (rewards.WeekHistory, error) {
	var out rewards.WeekHistory
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/v1/weeks/" + strconv.FormatUint(week, 10)}, &out)
	return out, err
}

// PayoutsCSV copies the payouts export into w.
func (c *Client) PayoutsCSV(ctx context.Context, w io.Writer) error {
	return c.do(ctx, call{method: http.MethodGet, path: "/api/v1/weeks/payouts.csv"}, w)
}

// --- runs ---

// Enter starts a run, or resumes a paused one with payment "0".
func (c *Client) Enter(ctx context.Context, wallet chain.Address, tokenID uint64, payment string) (api.SessionResponse, error) {
	var out api.SessionResponse
	err := c.do(ctx, call{method: http.MethodPost, path: "/api/v1/runs/enter", body: api.EnterRequest{
		Wallet: wallet, TokenID: tokenID, Payment: payment,
	}}, &out)
	return out, err
}

// Card picks a card in the current room.
func (c *Client) Card(ctx context.Context, wallet chain.Address, tokenID uint64, index uint8) (api.DrawResponse, error) {
	var out api.DrawResponse
	err := c.do(ctx, call{method: http.MethodPost, path: tokenPath(tokenID, "card"), body: api.CardRequest{
		Wallet: wallet, CardIndex: index,
	}}, &out)
	return out, err
}

func (c *Client) walletOp(ctx context.Context, op string, wallet chain.Address, tokenID uint64) (api.SessionResponse, error) {
	var out api.SessionResponse
	err := c.do(ctx, call{method: http.MethodPost, path: tokenPath(tokenID, op), body: api.WalletRequest{Wallet: wallet}}, &out)
	return out, err
}

// Pause suspends an active run.
func (c *Client) Pause(ctx context.Context, wallet chain.Address, tokenID uint64) (api.SessionResponse, error) {
	return c.walletOp(ctx, "pause", wallet, tokenID)
}

// Exit banks an active or paused run.
func (c *Client) Exit(ctx context.Context, wallet chain.Address, tokenID uint64) (api.SessionResponse, error) {
	return c.walletOp(ctx, "exit", wallet, tokenID)
}

// Claim takes the token back after a death.
func (c *Client) Claim(ctx context.Context, wallet chain.Address, tokenID uint64) (api.SessionResponse, error) {
	return c.walletOp(ctx, "claim", wallet, tokenID)
}

// ForceWithdraw abandons a paused run and returns the token.
func (c *Client) ForceWithdraw(ctx context.Context, wallet chain.Address, tokenID uint64) (api.SessionResponse, error) {
	return c.walletOp(ctx, "withdraw", wallet, tokenID)
}

// --- weeks ---

// Advance closes the current week. Anyone may call it once the interval
// has passed.
func (c *Client) Advance(ctx context.Context, caller chain.Address) (events.WeekAdvanced, error) {
	var out events.WeekAdvanced
	err := c.do(ctx, call{method: http.MethodPost, path: "/api/v1/weeks/advance", body: api.AdvanceRequest{Caller: caller}}, &out)
	return out, err
}

// Distribute pays the last closed week to winners. Admin only.
func (c *Client) Distribute(ctx context.Context, winners []chain.Address) (rewards.WeekHistory, error) {
	var out rewards.WeekHistory
	err := c.do(ctx, call{method: http.MethodPost, path: "/api/v1/weeks/distribute", admin: true,
		body: api.DistributeRequest{Winners: winners}}, &out)
	return out, err
}

// --- admin ---

// SetPaused halts or resumes "fees" or "runs". Admin only.
func (c *Client) SetPaused(ctx context.Context, component string, paused bool) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/api/v1/admin/pause", admin: true,
		body: api.PauseRequest{Component: component, Paused: paused}}, nil)
}

// Withdrawal reports a drained owner bucket.
type Withdrawal struct {
	Bucket       string        `json:"bucket"`
	To           chain.Address `json:"to"`
	Amount       uint64        `json:"amount"`
	AmountTokens string        `json:"amount_tokens"`
}

// WithdrawBucket drains the "dev" or "marketing" bucket to to. Admin only.
func (c *Client) WithdrawBucket(ctx context.Context, bucket string, to chain.Address) (Withdrawal, error) {
	var out Withdrawal
	err := c.do(ctx, call{method: http.MethodPost, path: "/api/v1/admin/withdraw", admin: true,
		body: api.WithdrawRequest{Bucket: bucket, To: to}}, &out)
	return out, err
}

// --- dev ---

// Credit is a faucet result.
type Credit struct {
	To            chain.Address `json:"to"`
	Balance       uint64        `json:"balance"`
	BalanceTokens string        `json:"balance_tokens"`
}

// Faucet credits amount whole tokens to to. Development nodes only.
func (c *Client) Faucet(ctx context.Context, to chain.Address, amount string) (Credit, error) {
	var out Credit
	err := c.do(ctx, call{method: http.MethodPost, path: "/api/v1/dev/faucet",
		body: api.FaucetRequest{To: to, Amount: amount}}, &out)
	return out, err
}

// Mint mints an adventurer to owner. Development nodes only.
func (c *Client) Mint(ctx context.Context, owner chain.Address, seed string) (api.MintResponse, error) {
	var out api.MintResponse
	err := c.do(ctx, call{method: http.MethodPost, path: "/api/v1/dev/tokens",
		body: api.MintRequest{Owner: owner, Seed: seed}}, &out)
	return out, err
}
