package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/afurourrego/dungeonflip/internal/rewards"
	"github.com/afurourrego/dungeonflip/internal/store"
	"github.com/afurourrego/dungeonflip/internal/world"
)

// Journal is the read side of the event store.
type Journal interface {
	ListEvents(ctx context.Context, q store.EventsQuery) ([]store.EventRecord, error)
	LastSeq(ctx context.Context) (uint64, error)
	ListWeeks(ctx context.Context, limit int) ([]rewards.WeekHistory, error)
	GetWeek(ctx context.Context, week uint64) (rewards.WeekHistory, bool, error)
	ExportPayoutsCSV(ctx context.Context, w io.Writer) error
}

// Options configure a Server.
type Options struct {
	// Journal may be nil; event and history queries then fall back to
	// in-memory state or report unavailable.
	Journal        Journal
	AdminToken     string
	DevFaucet      bool
	CORSOrigin     string
	RequestTimeout time.Duration
	Logger         *log.Logger
	// OnWeekAdvanced runs after every successful week advance.
	OnWeekAdvanced func(newWeek uint64)
}

// Server handles HTTP requests
type Server struct {
	world        *world.World
	journal      Journal
	validator    *Validator
	errorHandler *ErrorHandler
	logger       *log.Logger
	opts         Options
	startTime    time.Time
}

// NewServer creates a new API server
func NewServer(w *world.World, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "[API] ", log.LstdFlags)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	s := &Server{
		world:        w,
		journal:      opts.Journal,
		validator:    validator,
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		opts:         opts,
		startTime:    time.Now(),
	}
	logger.Printf("api_ready admin=%t dev_faucet=%t journal=%t", opts.AdminToken != "", opts.DevFaucet, opts.Journal != nil)
	return s, nil
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		// The stream outlives any request timeout.
		r.Get("/events/ws", s.handleEventStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.opts.RequestTimeout))

			r.Get("/constants", s.handleConstants)
			r.Post("/verify", s.handleVerify)
			r.Get("/events", s.handleListEvents)

			r.Get("/sessions/{tokenID}", s.handleGetSession)
			r.Get("/players/{address}", s.handleGetPlayer)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/fees", s.handleFees)

			r.Post("/runs/enter", s.handleEnter)
			r.Post("/runs/{tokenID}/card", s.handleChooseCard)
			r.Post("/runs/{tokenID}/pause", s.handlePause)
			r.Post("/runs/{tokenID}/exit", s.handleExit)
			r.Post("/runs/{tokenID}/claim", s.handleClaim)
			r.Post("/runs/{tokenID}/withdraw", s.handleForceWithdraw)

			r.Get("/weeks", s.handleWeeks)
			r.Get("/weeks/payouts.csv", s.handlePayoutsCSV)
			r.Get("/weeks/{week}", s.handleGetWeek)
			r.Post("/weeks/advance", s.handleAdvanceWeek)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/weeks/distribute", s.handleDistribute)
				r.Post("/admin/pause", s.handleAdminPause)
				r.Post("/admin/withdraw", s.handleAdminWithdraw)
			})

			if s.opts.DevFaucet {
				r.Route("/dev", func(r chi.Router) {
					r.Post("/faucet", s.handleFaucet)
					r.Post("/tokens", s.handleMintToken)
				})
			}
		})
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_write_failed status=%d err=%v", status, err)
	}
}

// CORSMiddleware answers preflight requests and tags responses with the
// configured origin.
func (s *Server) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.opts.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin gates owner operations behind the bearer admin token. With
// no token configured the admin surface is closed.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.opts.AdminToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.AdminToken)) != 1 {
			s.errorHandler.HandleUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("request method=%s path=%s status=%d bytes=%d duration=%s request_id=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}
