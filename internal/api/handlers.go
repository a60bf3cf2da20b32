package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/dungeon"
	"github.com/afurourrego/dungeonflip/internal/engine"
	"github.com/afurourrego/dungeonflip/internal/events"
	"github.com/afurourrego/dungeonflip/internal/progress"
	"github.com/afurourrego/dungeonflip/internal/rewards"
	"github.com/afurourrego/dungeonflip/internal/run"
	"github.com/afurourrego/dungeonflip/internal/store"
)

// decode validates the body against schema. It writes the error response
// itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	if err := s.validator.Decode(r, schema, dst); err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			s.errorHandler.HandleValidationError(w, r, fe.Field, fe.Message)
			return false
		}
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return false
	}
	return true
}

func (s *Server) pathUint(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, name, "must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func (s *Server) sessionResponse(sess run.Session) SessionResponse {
	return SessionResponse{
		Session:       sess,
		Score:         run.Score(sess.RoomsCleared(), sess.GemsCollected),
		EngineVersion: EngineVersion,
	}
}

// ---------- reads ----------

func (s *Server) handleConstants(w http.ResponseWriter, r *http.Request) {
	c := s.world.Runs.Constants()
	s.writeJSON(w, http.StatusOK, ConstantsResponse{
		Run:             c,
		EntryFeeTokens:  s.world.Units.Format(c.EntryFee),
		TokenDecimals:   s.world.Units.Decimals(),
		FeeSplit:        s.world.Fees.Split(),
		PrizeSchedule:   s.world.Rewards.Schedule(),
		MinWeekInterval: s.world.Rewards.MinWeekInterval().String(),
		TopN:            progress.TopN,
		EngineVersion:   EngineVersion,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUint(w, r, "tokenID")
	if !ok {
		return
	}
	sess, err := s.world.Runs.Session(id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessionResponse(sess))
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	addr, err := chain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "address", err.Error())
		return
	}
	resp := PlayerResponse{
		Balance:       s.world.Bank.BalanceOf(addr),
		Tokens:        s.world.Tokens.TokensOf(addr),
		EngineVersion: EngineVersion,
	}
	resp.BalanceTokens = s.world.Units.Format(resp.Balance)
	if p, err := s.world.Ledger.Player(addr); err == nil {
		resp.Progress = &p
	} else if !errors.Is(err, progress.ErrUnknownPlayer) {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	if id, ok := s.world.Runs.ActiveTokenOf(addr); ok {
		resp.ActiveToken = id
	}
	if resp.Tokens == nil {
		resp.Tokens = []uint64{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	current := s.world.Ledger.CurrentWeek()
	week := current
	if q := r.URL.Query().Get("week"); q != "" {
		v, err := strconv.ParseUint(q, 10, 64)
		if err != nil || v == 0 {
			s.errorHandler.HandleValidationError(w, r, "week", "must be a positive integer")
			return
		}
		week = v
	}
	entries, err := s.world.Ledger.Leaderboard(week)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []progress.Entry{}
	}
	s.writeJSON(w, http.StatusOK, LeaderboardResponse{
		Week:          week,
		CurrentWeek:   current,
		Finalized:     s.world.Ledger.Finalized(week),
		Entries:       entries,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"balances":       s.world.Fees.Balances(),
		"split":          s.world.Fees.Split(),
		"paused":         s.world.Fees.Paused(),
		"engine_version": EngineVersion,
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.errorHandler.HandleError(w, r, NewError(ErrTypeServiceUnavailable, "event journal is not configured").Build(), http.StatusServiceUnavailable)
		return
	}
	q := store.EventsQuery{Type: events.Type(r.URL.Query().Get("type"))}
	for _, p := range []struct {
		name string
		dst  *uint64
	}{{"token", &q.TokenID}, {"after", &q.AfterSeq}} {
		if raw := r.URL.Query().Get(p.name); raw != "" {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				s.errorHandler.HandleValidationError(w, r, p.name, "must be a non-negative integer")
				return
			}
			*p.dst = v
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 1000 {
			s.errorHandler.HandleValidationError(w, r, "limit", "must be between 1 and 1000")
			return
		}
		q.Limit = v
	}
	recs, err := s.journal.ListEvents(r.Context(), q)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []store.EventRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"events":         recs,
		"count":          len(recs),
		"engine_version": EngineVersion,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !s.decode(w, r, "verify", &req) {
		return
	}
	if req.HP > req.MaxHP {
		s.errorHandler.HandleValidationError(w, r, "hp", "hp must not exceed max_hp")
		return
	}
	digest, outcome := run.Replay(run.ReplayInput{
		Seed:       req.Seed,
		Room:       req.Room,
		Wallet:     req.Wallet,
		CardIndex:  req.CardIndex,
		Entropy:    req.Entropy,
		Adventurer: dungeon.Adventurer{Atk: req.Atk, Def: req.Def, HP: req.HP, MaxHP: req.MaxHP},
	})
	s.writeJSON(w, http.StatusOK, VerifyResponse{
		Digest:        digest,
		Outcome:       outcome,
		NextSeed:      engine.AdvanceSeed(req.Seed, digest),
		EngineVersion: EngineVersion,
		Echo:          req,
	})
}

// ---------- run operations ----------

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	var req EnterRequest
	if !s.decode(w, r, "enter", &req) {
		return
	}
	payment, err := s.world.Units.Parse(req.Payment)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "payment", err.Error())
		return
	}
	sess, err := s.world.EnterDungeon(r.Context(), req.Wallet, req.TokenID, payment)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessionResponse(sess))
}

func (s *Server) handleChooseCard(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUint(w, r, "tokenID")
	if !ok {
		return
	}
	var req CardRequest
	if !s.decode(w, r, "card", &req) {
		return
	}
	draw, err := s.world.ChooseCard(r.Context(), req.Wallet, id, req.CardIndex)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, DrawResponse{Draw: draw, EngineVersion: EngineVersion})
}

type walletOp func(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error)

func (s *Server) walletHandler(op walletOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.pathUint(w, r, "tokenID")
		if !ok {
			return
		}
		var req WalletRequest
		if !s.decode(w, r, "wallet", &req) {
			return
		}
		sess, err := op(r.Context(), req.Wallet, id)
		if err != nil {
			s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, s.sessionResponse(sess))
	}
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.walletHandler(s.world.PauseRun)(w, r)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	s.walletHandler(s.world.ExitDungeon)(w, r)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.walletHandler(s.world.ClaimAfterDeath)(w, r)
}

func (s *Server) handleForceWithdraw(w http.ResponseWriter, r *http.Request) {
	s.walletHandler(s.world.ForceWithdraw)(w, r)
}

// ---------- weeks ----------

func (s *Server) weekHistory(ctx context.Context, week uint64) (rewards.WeekHistory, bool, error) {
	if h, err := s.world.Rewards.History(week); err == nil {
		return h, true, nil
	} else if !errors.Is(err, rewards.ErrUnknownWeek) {
		return rewards.WeekHistory{}, false, err
	}
	if s.journal == nil {
		return rewards.WeekHistory{}, false, nil
	}
	return s.journal.GetWeek(ctx, week)
}

func (s *Server) handleWeeks(w http.ResponseWriter, r *http.Request) {
	var settled []rewards.WeekHistory
	for _, week := range s.world.Rewards.Weeks() {
		if h, err := s.world.Rewards.History(week); err == nil {
			settled = append(settled, h)
		}
	}
	if settled == nil {
		settled = []rewards.WeekHistory{}
	}
	s.writeJSON(w, http.StatusOK, WeekStatus{
		CurrentWeek:   s.world.Rewards.CurrentWeek(),
		NextAdvanceAt: s.world.Rewards.NextAdvanceAt().UTC().Format(time.RFC3339),
		Settled:       settled,
		Buckets:       s.world.Fees.Balances(),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleGetWeek(w http.ResponseWriter, r *http.Request) {
	week, ok := s.pathUint(w, r, "week")
	if !ok {
		return
	}
	h, found, err := s.weekHistory(r.Context(), week)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	if !found {
		s.errorHandler.HandleError(w, r, rewards.ErrUnknownWeek.With("week %d has no distribution", week), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, h)
}

func (s *Server) handlePayoutsCSV(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.errorHandler.HandleError(w, r, NewError(ErrTypeServiceUnavailable, "event journal is not configured").Build(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="payouts.csv"`)
	w.Header().Set("X-Engine-Version", EngineVersion)
	if err := s.journal.ExportPayoutsCSV(r.Context(), w); err != nil {
		s.logger.Printf("csv_export_failed err=%v", err)
	}
}

func (s *Server) handleAdvanceWeek(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if !s.decode(w, r, "advance", &req) {
		return
	}
	ev, err := s.world.AdvanceWeek(r.Context(), req.Caller)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	if s.opts.OnWeekAdvanced != nil {
		s.opts.OnWeekAdvanced(ev.NewWeek)
	}
	s.writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if !s.decode(w, r, "distribute", &req) {
		return
	}
	var winners [rewards.Slots]chain.Address
	for i := range winners {
		winners[i] = rewards.NoWinner
		if i < len(req.Winners) {
			winners[i] = req.Winners[i]
		}
	}
	h, err := s.world.DistributeRewards(r.Context(), s.world.Addresses.Owner, winners)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, h)
}

// ---------- admin ----------

func (s *Server) handleAdminPause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if !s.decode(w, r, "pause", &req) {
		return
	}
	owner := s.world.Addresses.Owner
	var err error
	switch req.Component {
	case "fees":
		err = s.world.SetFeesPaused(r.Context(), owner, req.Paused)
	case "runs":
		err = s.world.SetRunsPaused(r.Context(), owner, req.Paused)
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"component": req.Component, "paused": req.Paused})
}

func (s *Server) handleAdminWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !s.decode(w, r, "withdraw", &req) {
		return
	}
	owner := s.world.Addresses.Owner
	var (
		amount uint64
		err    error
	)
	switch req.Bucket {
	case "dev":
		amount, err = s.world.WithdrawDevBucket(r.Context(), owner, req.To)
	case "marketing":
		amount, err = s.world.WithdrawMarketing(r.Context(), owner, req.To)
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"bucket":        req.Bucket,
		"to":            req.To,
		"amount":        amount,
		"amount_tokens": s.world.Units.Format(amount),
	})
}

// ---------- dev ----------

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if !s.decode(w, r, "faucet", &req) {
		return
	}
	amount, err := s.world.Units.Parse(req.Amount)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "amount", err.Error())
		return
	}
	if err := s.world.Faucet(req.To, amount); err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	bal := s.world.Bank.BalanceOf(req.To)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"to":             req.To,
		"balance":        bal,
		"balance_tokens": s.world.Units.Format(bal),
	})
}

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !s.decode(w, r, "mint", &req) {
		return
	}
	seed := req.Seed
	if seed == "" {
		seed = strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	id, stats, err := s.world.MintAdventurer(req.Owner, engine.Keccak256([]byte(req.Owner), []byte(seed)))
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, MintResponse{TokenID: id, Atk: stats.Atk, Def: stats.Def, HP: stats.HP, EngineVersion: EngineVersion})
}
