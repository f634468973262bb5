package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/perpledger/pkg/core"
	"github.com/uhyunpark/perpledger/pkg/core/funding"
	"github.com/uhyunpark/perpledger/pkg/core/gateway"
	"github.com/uhyunpark/perpledger/pkg/core/guard"
	"github.com/uhyunpark/perpledger/pkg/core/ledger"
	"github.com/uhyunpark/perpledger/pkg/core/oracle"
	"github.com/uhyunpark/perpledger/pkg/events"
	"github.com/uhyunpark/perpledger/pkg/metrics"
	"github.com/uhyunpark/perpledger/pkg/util"
)

// Server exposes the ledger over REST and WebSocket. Caller identity
// arrives in the X-Caller header; a registered relay may speak for
// another account via X-Forwarded-Caller, resolved once at entry.
type Server struct {
	ledger   *ledger.Ledger
	funding  *funding.Controller
	source   *oracle.PostedSource
	vault    *gateway.Vault
	roles    guard.Roles
	pause    *guard.Pause
	resolver *guard.Resolver
	emitter  events.Emitter
	metrics  *metrics.Metrics
	clock    util.Clock

	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

// Deps wires the server.
type Deps struct {
	Ledger   *ledger.Ledger
	Funding  *funding.Controller
	Source   *oracle.PostedSource
	Vault    *gateway.Vault
	Roles    guard.Roles
	Pause    *guard.Pause
	Resolver *guard.Resolver
	Emitter  events.Emitter
	Metrics  *metrics.Metrics
	Clock    util.Clock
	Hub      *Hub
	Logger   *zap.SugaredLogger
}

// NewServer creates the API server and registers its routes.
func NewServer(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = util.RealClock{}
	}
	if deps.Emitter == nil {
		deps.Emitter = events.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	s := &Server{
		ledger:   deps.Ledger,
		funding:  deps.Funding,
		source:   deps.Source,
		vault:    deps.Vault,
		roles:    deps.Roles,
		pause:    deps.Pause,
		resolver: deps.Resolver,
		emitter:  deps.Emitter,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		router:   mux.NewRouter(),
		hub:      deps.Hub,
		log:      deps.Logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market + audit
	api.HandleFunc("/market", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/state/digest", s.handleGetDigest).Methods("GET")

	// Accounts
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/positions", s.handleGetPositions).Methods("GET")
	api.HandleFunc("/vault/{address}", s.handleGetBalance).Methods("GET")

	// Position lifecycle
	api.HandleFunc("/positions/open", s.handleOpen).Methods("POST")
	api.HandleFunc("/positions/close", s.handleClose).Methods("POST")
	api.HandleFunc("/positions/liquidate", s.handleLiquidate).Methods("POST")
	api.HandleFunc("/payouts/claim", s.handleClaim).Methods("POST")
	api.HandleFunc("/fees/withdraw", s.handleWithdrawFees).Methods("POST")

	// Admin
	api.HandleFunc("/oracle/price", s.handlePostPrice).Methods("POST")
	api.HandleFunc("/admin/pause", s.handlePause).Methods("POST")
	api.HandleFunc("/vault/credit", s.handleCredit).Methods("POST")

	// WebSocket + health + metrics
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}

// Start runs the hub and serves HTTP.
func (s *Server) Start(addr string) error {
	if s.hub != nil {
		go s.hub.Run()
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Caller", "X-Forwarded-Caller"},
		AllowCredentials: true,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// callerFrom resolves the logical caller for a request. The raw caller
// comes from X-Caller; a trusted forwarder's X-Forwarded-Caller tag wins.
func (s *Server) callerFrom(r *http.Request) (common.Address, bool) {
	raw := r.Header.Get("X-Caller")
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	var appended common.Address
	if fwd := r.Header.Get("X-Forwarded-Caller"); common.IsHexAddress(fwd) {
		appended = common.HexToAddress(fwd)
	}
	return s.resolver.Resolve(common.HexToAddress(raw), appended), true
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	state := s.funding.Snapshot()
	respondJSON(w, MarketInfo{
		TotalLongs:        state.TotalLongs,
		TotalShorts:       state.TotalShorts,
		FundingRate:       strconv.FormatUint(state.FundingRate, 10),
		LastFundingUpdate: state.LastUpdate,
		Paused:            s.pause.IsPaused(),
	})
}

func (s *Server) handleGetDigest(w http.ResponseWriter, r *http.Request) {
	digest, err := s.ledger.StateDigest()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "digest failed", err.Error())
		return
	}
	respondJSON(w, DigestResponse{Digest: common.Bytes2Hex(digest[:])})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r)
	if !ok {
		return
	}
	acc, found := s.ledger.GetAccount(addr)
	if !found {
		respondError(w, http.StatusNotFound, "account not found", "")
		return
	}
	respondJSON(w, accountInfo(acc))
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r)
	if !ok {
		return
	}
	acc, found := s.ledger.GetAccount(addr)
	if !found {
		respondJSON(w, []PositionInfo{})
		return
	}
	respondJSON(w, accountInfo(acc).Positions)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r)
	if !ok {
		return
	}
	respondJSON(w, BalanceResponse{Account: addr.Hex(), Balance: s.vault.BalanceOf(addr)})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "missing or invalid X-Caller", "")
		return
	}
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	id, err := s.ledger.Open(caller, req.Size, req.Collateral, req.IsLong, req.Leverage)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, OpenResponse{PositionID: id})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "missing or invalid X-Caller", "")
		return
	}
	var req CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	pnl, payout, err := s.ledger.Close(caller, req.PositionID)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, CloseResponse{Pnl: pnl, Payout: payout})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "missing or invalid X-Caller", "")
		return
	}
	var req LiquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Account) {
		respondError(w, http.StatusBadRequest, "invalid account address", "")
		return
	}
	fee, err := s.ledger.Liquidate(caller, common.HexToAddress(req.Account), req.PositionID)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, LiquidateResponse{Fee: fee})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "missing or invalid X-Caller", "")
		return
	}
	amount, err := s.ledger.ClaimPayout(caller)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, ClaimResponse{Amount: amount})
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "missing or invalid X-Caller", "")
		return
	}
	amount, err := s.ledger.WithdrawFees(caller)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, ClaimResponse{Amount: amount})
}

func (s *Server) handlePostPrice(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Price <= 0 {
		respondError(w, http.StatusBadRequest, "price must be positive", "")
		return
	}
	now := s.clock.Now().Unix()
	updatedAt := req.UpdatedAt
	if updatedAt == 0 {
		updatedAt = now
	}
	s.source.Post(req.Price, updatedAt)
	s.emitter.Emit(events.Event{
		Type:      events.TypePricePosted,
		Caller:    caller.Hex(),
		Price:     req.Price,
		Timestamp: now,
	})
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	s.pause.SetPaused(req.Paused)
	s.emitter.Emit(events.Event{
		Type:      events.TypePauseToggled,
		Caller:    caller.Hex(),
		Paused:    req.Paused,
		Timestamp: s.clock.Now().Unix(),
	})
	respondJSON(w, map[string]bool{"paused": req.Paused})
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Account) {
		respondError(w, http.StatusBadRequest, "invalid account address", "")
		return
	}
	s.vault.Credit(common.HexToAddress(req.Account), req.Amount)
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// requireAdmin resolves the caller and checks the admin role.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := s.callerFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "missing or invalid X-Caller", "")
		return common.Address{}, false
	}
	if !s.roles.HasRole(caller, guard.RoleAdmin) {
		respondError(w, http.StatusForbidden, "admin role required", "")
		return common.Address{}, false
	}
	return caller, true
}

// ==============================
// Helpers
// ==============================

func addressVar(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func accountInfo(acc ledger.Account) AccountInfo {
	positions := make([]PositionInfo, len(acc.Positions))
	for i, pos := range acc.Positions {
		positions[i] = PositionInfo{
			ID:         uint64(i),
			Size:       pos.Size,
			Collateral: pos.Collateral,
			EntryPrice: pos.EntryPrice,
			IsLong:     pos.IsLong,
			Leverage:   pos.Leverage,
			OpenedAt:   pos.OpenedAt,
			Status:     pos.Status.String(),
		}
	}
	return AccountInfo{
		Address:           acc.Address.Hex(),
		FeeReserve:        acc.FeeReserve,
		PendingWithdrawal: acc.PendingWithdrawal,
		Positions:         positions,
	}
}

// respondLedgerError maps rejection kinds to HTTP statuses.
func respondLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, core.ErrPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, core.ErrStalePrice):
		status = http.StatusServiceUnavailable
	case errors.Is(err, core.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrInvalidPosition):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrPositionSafe):
		status = http.StatusConflict
	case errors.Is(err, core.ErrTransferFailed):
		status = http.StatusConflict
	case errors.Is(err, core.ErrDegenerateMarket):
		status = http.StatusConflict
	case errors.Is(err, core.ErrUnderflow):
		status = http.StatusInternalServerError
	}
	respondError(w, status, "operation rejected", err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
