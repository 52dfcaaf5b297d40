// Package server exposes the pool engine over a JSON HTTP API with a websocket
// feed per pool. Every route except the health check requires a bearer token
// whose sub and name claims identify the caller.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"poolbet/application"
	"poolbet/domain/entities"
	"poolbet/domain/interfaces"
	"poolbet/domain/services"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
	historyLimit        = 20
)

// PoolGateway is the caller-facing surface of the pool client
type PoolGateway interface {
	JoinPool(ctx context.Context, principal entities.Principal, poolID int64) entities.Result
	LeavePool(ctx context.Context, principal entities.Principal, poolID int64) entities.Result
	LockInNumber(ctx context.Context, principal entities.Principal, poolID int64, number int) entities.Result
	SendMessage(ctx context.Context, principal entities.Principal, poolID int64, body string) entities.Result
	RequestTransaction(ctx context.Context, principal entities.Principal, kind entities.TransactionKind, amount int64) entities.Result
	GetPool(ctx context.Context, poolID int64) (*entities.Pool, bool, error)
	ListPools(ctx context.Context) ([]*entities.Pool, bool, error)
	GetMessages(ctx context.Context, poolID int64, limit int) ([]*entities.ChatMessage, error)
	OnPoolUpdate(poolID int64, handler func(*entities.Pool)) (func(), error)
	OnChatUpdate(poolID int64, handler func([]*entities.ChatMessage)) (func(), error)
}

// HealthCheck reports whether one dependency is reachable
type HealthCheck struct {
	Name  string
	Check func() bool
}

// Deps are the collaborators the HTTP handlers call into
type Deps struct {
	Pools    PoolGateway
	Ledger   interfaces.WalletLedger
	Recorder interfaces.TransactionRecorder
	Stats    interfaces.StatsService
	Bonus    *services.BonusCalculator
	Winners  interfaces.WinnerRepository
	Sync     application.SyncReconciler
	Health   []HealthCheck

	TokenAuth      *jwtauth.JWTAuth
	AllowedOrigins []string
	RateLimit      int
}

// Server holds the HTTP handlers
type Server struct {
	deps     Deps
	upgrader websocket.Upgrader
}

// New creates a new server
func New(deps Deps) *Server {
	if deps.Bonus == nil {
		deps.Bonus = services.NewBonusCalculator(nil)
	}
	s := &Server{deps: deps}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router builds the chi router with middleware and routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger())
	r.Use(middleware.Recoverer)
	r.Use(CORS(s.deps.AllowedOrigins).Handler)
	if s.deps.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.deps.RateLimit, 1*time.Minute))
	}

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(Verifier(s.deps.TokenAuth))
		r.Use(jwtauth.Authenticator)
		r.Use(Principal(s.deps.Ledger))

		// the websocket lives outside the timeout middleware
		r.Get("/pools/{id}/ws", s.handlePoolSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/pools", func(r chi.Router) {
				r.Get("/", s.handleListPools)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetPool)
					r.Post("/join", s.handleJoin)
					r.Post("/leave", s.handleLeave)
					r.Post("/lock", s.handleLock)
					r.Get("/messages", s.handleGetMessages)
					r.Post("/messages", s.handleSendMessage)
					r.Get("/winners", s.handleWinners)
				})
			})

			r.Route("/me", func(r chi.Router) {
				r.Get("/wallet", s.handleWallet)
				r.Get("/stats", s.handleStats)
				r.Get("/bonus", s.handleBonus)
				r.Post("/transactions", s.handleTransaction)
			})

			r.Route("/sync", func(r chi.Router) {
				r.Get("/failures", s.handleSyncFailures)
				r.Post("/intents/{id}/retry", s.handleRetryIntent)
				r.Delete("/intents/{id}", s.handleDismissIntent)
			})
		})
	})

	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.deps.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.deps.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func poolIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func invalidRequest(w http.ResponseWriter, message string) {
	result := entities.NewResult(entities.OutcomeInvalidRequest)
	result.Message = message
	writeResult(w, result)
}

// handleHealth always answers 200 since the API keeps serving from the offline queue
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]bool, len(s.deps.Health))
	for _, check := range s.deps.Health {
		components[check.Name] = check.Check()
	}
	writeJSON(w, Response{Message: "poolbet is running", Code: http.StatusOK, Data: components})
}

type poolListResponse struct {
	Pools  []*PoolDTO `json:"pools"`
	Cached bool       `json:"cached"`
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools, cached, err := s.deps.Pools.ListPools(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to list pools")
		writeError(w, http.StatusServiceUnavailable, "Pools are unavailable right now.")
		return
	}
	rsp := poolListResponse{Pools: make([]*PoolDTO, 0, len(pools)), Cached: cached}
	for _, pool := range pools {
		rsp.Pools = append(rsp.Pools, ToPoolDTO(pool))
	}
	writeData(w, rsp)
}

type poolResponse struct {
	Pool   *PoolDTO `json:"pool"`
	Cached bool     `json:"cached"`
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(r)
	if !ok {
		invalidRequest(w, "Pool id must be a positive integer.")
		return
	}
	pool, cached, err := s.deps.Pools.GetPool(r.Context(), poolID)
	switch {
	case errors.Is(err, entities.ErrPoolNotFound), err == nil && pool == nil:
		writeResult(w, entities.NewResult(entities.OutcomePoolNotFound))
		return
	case err != nil:
		log.WithError(err).WithField("pool_id", poolID).Error("Failed to get pool")
		writeError(w, http.StatusServiceUnavailable, "This pool is unavailable right now.")
		return
	}
	writeData(w, poolResponse{Pool: ToPoolDTO(pool), Cached: cached})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(r)
	if !ok {
		invalidRequest(w, "Pool id must be a positive integer.")
		return
	}
	writeResult(w, s.deps.Pools.JoinPool(r.Context(), PrincipalFrom(r.Context()), poolID))
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(r)
	if !ok {
		invalidRequest(w, "Pool id must be a positive integer.")
		return
	}
	writeResult(w, s.deps.Pools.LeavePool(r.Context(), PrincipalFrom(r.Context()), poolID))
}

type lockRequest struct {
	Number *int `json:"number"`
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(r)
	if !ok {
		invalidRequest(w, "Pool id must be a positive integer.")
		return
	}
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Number == nil {
		invalidRequest(w, "Body must be {\"number\": <int>}.")
		return
	}
	writeResult(w, s.deps.Pools.LockInNumber(r.Context(), PrincipalFrom(r.Context()), poolID, *req.Number))
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(r)
	if !ok {
		invalidRequest(w, "Pool id must be a positive integer.")
		return
	}
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			invalidRequest(w, "limit must be a positive integer.")
			return
		}
		if n > maxMessageLimit {
			n = maxMessageLimit
		}
		limit = n
	}
	messages, err := s.deps.Pools.GetMessages(r.Context(), poolID, limit)
	if err != nil {
		log.WithError(err).WithField("pool_id", poolID).Error("Failed to get messages")
		writeError(w, http.StatusServiceUnavailable, "Chat is unavailable right now.")
		return
	}
	if messages == nil {
		messages = []*entities.ChatMessage{}
	}
	writeData(w, messages)
}

type messageRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(r)
	if !ok {
		invalidRequest(w, "Pool id must be a positive integer.")
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		invalidRequest(w, "Body must be {\"body\": <text>}.")
		return
	}
	writeResult(w, s.deps.Pools.SendMessage(r.Context(), PrincipalFrom(r.Context()), poolID, req.Body))
}

func (s *Server) handleWinners(w http.ResponseWriter, r *http.Request) {
	poolID, ok := poolIDParam(r)
	if !ok {
		invalidRequest(w, "Pool id must be a positive integer.")
		return
	}
	winners, err := s.deps.Winners.GetByPool(r.Context(), poolID)
	if err != nil {
		log.WithError(err).WithField("pool_id", poolID).Error("Failed to get winners")
		writeError(w, http.StatusServiceUnavailable, "Winners are unavailable right now.")
		return
	}
	if winners == nil {
		winners = []*entities.WinnerEntry{}
	}
	writeData(w, winners)
}

type walletResponse struct {
	UserID  string            `json:"user_id"`
	Balance int64             `json:"balance"`
	History []*TransactionDTO `json:"history"`
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFrom(r.Context())
	balance, err := s.deps.Ledger.GetBalance(r.Context(), principal.UserID)
	if err != nil {
		log.WithError(err).WithField("user_id", principal.UserID).Error("Failed to get balance")
		writeError(w, http.StatusServiceUnavailable, "Your wallet is unavailable right now.")
		return
	}
	history, err := s.deps.Recorder.History(r.Context(), principal.UserID, historyLimit)
	if err != nil {
		log.WithError(err).WithField("user_id", principal.UserID).Warn("Failed to get transaction history")
	}
	rsp := walletResponse{UserID: principal.UserID, Balance: balance, History: make([]*TransactionDTO, 0, len(history))}
	for _, tx := range history {
		rsp.History = append(rsp.History, ToTransactionDTO(tx))
	}
	writeData(w, rsp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFrom(r.Context())
	stats, err := s.deps.Stats.GetPlayerStats(r.Context(), principal.UserID)
	if err != nil {
		log.WithError(err).WithField("user_id", principal.UserID).Error("Failed to get stats")
		writeError(w, http.StatusServiceUnavailable, "Stats are unavailable right now.")
		return
	}
	writeData(w, stats)
}

type bonusResponse struct {
	Progress entities.MilestoneProgress `json:"progress"`
	Tiers    []entities.MilestoneTier   `json:"tiers"`
}

func (s *Server) handleBonus(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFrom(r.Context())
	stats, err := s.deps.Stats.GetPlayerStats(r.Context(), principal.UserID)
	if err != nil {
		log.WithError(err).WithField("user_id", principal.UserID).Error("Failed to get stats")
		writeError(w, http.StatusServiceUnavailable, "Bonus progress is unavailable right now.")
		return
	}
	writeData(w, bonusResponse{
		Progress: s.deps.Bonus.MilestoneProgress(stats.TotalPlayed),
		Tiers:    s.deps.Bonus.Tiers(),
	})
}

type transactionRequest struct {
	Kind   entities.TransactionKind `json:"kind"`
	Amount int64                    `json:"amount"`
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		invalidRequest(w, "Body must be {\"kind\": <deposit|withdrawal>, \"amount\": <int>}.")
		return
	}
	writeResult(w, s.deps.Pools.RequestTransaction(r.Context(), PrincipalFrom(r.Context()), req.Kind, req.Amount))
}

func (s *Server) handleSyncFailures(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFrom(r.Context())
	failures, err := s.deps.Sync.Failures(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to list sync failures")
		writeError(w, http.StatusInternalServerError, "Could not read the offline queue.")
		return
	}
	out := make([]IntentDTO, 0, len(failures))
	for _, intent := range failures {
		if intent.OwnerID() == principal.UserID {
			out = append(out, ToIntentDTO(intent))
		}
	}
	writeData(w, out)
}

// ownsFailedIntent reports whether id is one of the caller's exhausted intents.
// It writes the error response itself when the answer is no.
func (s *Server) ownsFailedIntent(w http.ResponseWriter, r *http.Request, id string) bool {
	principal := PrincipalFrom(r.Context())

	failures, err := s.deps.Sync.Failures(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to list sync failures")
		writeError(w, http.StatusInternalServerError, "Could not read the offline queue.")
		return false
	}
	for _, intent := range failures {
		if intent.ID == id && intent.OwnerID() == principal.UserID {
			return true
		}
	}
	writeError(w, http.StatusNotFound, "No failed request with that id.")
	return false
}

func (s *Server) handleRetryIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.ownsFailedIntent(w, r, id) {
		return
	}

	if err := s.deps.Sync.RetryIntent(r.Context(), id); err != nil {
		if errors.Is(err, entities.ErrIntentNotFound) {
			writeError(w, http.StatusNotFound, "No failed request with that id.")
			return
		}
		log.WithError(err).WithField("intent_id", id).Error("Failed to retry intent")
		writeError(w, http.StatusInternalServerError, "Could not schedule the retry.")
		return
	}
	writeJSON(w, Response{Message: "Retry scheduled.", Code: http.StatusOK, Data: map[string]string{"intent_id": id}})
}

func (s *Server) handleDismissIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.ownsFailedIntent(w, r, id) {
		return
	}

	if err := s.deps.Sync.DismissIntent(r.Context(), id); err != nil {
		if errors.Is(err, entities.ErrIntentNotFound) {
			writeError(w, http.StatusNotFound, "No failed request with that id.")
			return
		}
		log.WithError(err).WithField("intent_id", id).Error("Failed to dismiss intent")
		writeError(w, http.StatusInternalServerError, "Could not dismiss the request.")
		return
	}
	writeJSON(w, Response{Message: "Request dismissed.", Code: http.StatusOK, Data: map[string]string{"intent_id": id}})
}
