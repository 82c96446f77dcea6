// Package api is the REST/WebSocket surface over the encrypted ledger.
// Everything it returns for unrevealed records is ciphertext or public
// metadata; plaintext appears only in shadows the reveal protocol has
// populated.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/veildex/darkbook/pkg/app/core"
	"github.com/veildex/darkbook/pkg/app/core/ledger"
	"github.com/veildex/darkbook/pkg/app/core/matching"
	"github.com/veildex/darkbook/pkg/app/core/reveal"
	dbcrypto "github.com/veildex/darkbook/pkg/crypto"
	"github.com/veildex/darkbook/pkg/oracle"
)

type Server struct {
	core   *core.Core
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

func NewServer(c *core.Core, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		core:   c,
		router: mux.NewRouter(),
		hub:    NewHub(log.Named("ws")),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/reveal", s.handleRevealOrder).Methods("POST")

	api.HandleFunc("/book/best", s.handleBestBidAsk).Methods("GET")
	api.HandleFunc("/matches/can", s.handleCanMatch).Methods("GET")

	api.HandleFunc("/matches", s.handleCommitMatch).Methods("POST")
	api.HandleFunc("/matches/{id}", s.handleGetMatch).Methods("GET")
	api.HandleFunc("/matches/{id}/reveal", s.handleRevealMatch).Methods("POST")

	api.HandleFunc("/oracle/callback", s.handleOracleCallback).Methods("POST")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start runs the hub, bridges ledger notifications onto it, and serves
// HTTP. Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	go s.bridgeEvents()

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)

	s.log.Info("api listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, handler)
}

func (s *Server) bridgeEvents() {
	sub, cancel := s.core.Bus.Subscribe(256)
	defer cancel()
	for e := range sub {
		if ch := channelFor(e.EventType()); ch != "" {
			s.hub.BroadcastToChannel(ch, WSEvent{
				Channel: ch,
				Type:    e.EventType().String(),
				Data:    e,
			})
		}
	}
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if !common.IsHexAddress(req.Trader) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid trader address %q", req.Trader))
		return
	}
	if len(req.EncPrice) == 0 || len(req.EncAmount) == 0 || len(req.EncSide) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing ciphertext field"))
		return
	}

	id, err := s.core.Ledger.Submit(
		common.HexToAddress(req.Trader), req.EncPrice, req.EncAmount, req.EncSide)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, SubmitOrderResponse{OrderID: id})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	o, found := s.core.Ledger.Order(id)
	if !found {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("order %d: %w", id, ledger.ErrNotFound))
		return
	}
	resp := OrderResponse{
		OrderID:   o.ID,
		Trader:    o.Trader.Hex(),
		CreatedAt: o.CreatedAt,
		Active:    o.Active,
	}
	if sh, found := s.core.Ledger.Shadow(id); found && sh.Revealed {
		resp.Revealed = true
		resp.Price, resp.Amount, resp.Side = &sh.Price, &sh.Amount, &sh.Side
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	caller, ok := s.authedCaller(w, r, fmt.Sprintf("darkbook/cancel/%d", id))
	if !ok {
		return
	}
	if err := s.core.Ledger.Cancel(id, caller); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevealOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	caller, ok := s.authedCaller(w, r, fmt.Sprintf("darkbook/reveal/order/%d", id))
	if !ok {
		return
	}
	reqID, err := s.core.Coordinator.RequestRevealOrder(id, caller)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, RevealResponse{RequestID: reqID})
}

func (s *Server) handleBestBidAsk(w http.ResponseWriter, r *http.Request) {
	bid, ask, err := s.core.Evaluator.BestBidAsk()
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, BestBidAskResponse{EncBestBid: bid, EncBestAsk: ask})
}

func (s *Server) handleCanMatch(w http.ResponseWriter, r *http.Request) {
	buyID, err := strconv.ParseUint(r.URL.Query().Get("buy"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid buy id"))
		return
	}
	sellID, err := strconv.ParseUint(r.URL.Query().Get("sell"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid sell id"))
		return
	}
	enc, err := s.core.Evaluator.CanMatch(buyID, sellID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, CanMatchResponse{
		BuyOrderID: buyID, SellOrderID: sellID, EncCanMatch: enc,
	})
}

// handleCommitMatch computes the encrypted execution terms and commits the
// match. The caller carries the compatibility contract: nothing here
// checks canMatch first, and a commit against inactive orders is the
// matching process's mistake.
func (s *Server) handleCommitMatch(w http.ResponseWriter, r *http.Request) {
	var req CommitMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	encPrice, err := s.core.Evaluator.ExecutionPrice(req.BuyOrderID, req.SellOrderID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	encAmount, err := s.core.Evaluator.ExecutionAmount(req.BuyOrderID, req.SellOrderID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	matchID, err := s.core.Matches.Commit(req.BuyOrderID, req.SellOrderID, encPrice, encAmount)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, CommitMatchResponse{MatchID: matchID.Hex()})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := s.pathHash(w, r)
	if !ok {
		return
	}
	m, found := s.core.Matches.Get(matchID)
	if !found {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("match %s: %w", matchID.Hex(), ledger.ErrNotFound))
		return
	}
	resp := MatchResponse{
		MatchID:     m.ID.Hex(),
		BuyOrderID:  m.BuyOrderID,
		SellOrderID: m.SellOrderID,
		Complete:    m.Complete,
		CommittedAt: m.CommittedAt,
	}
	if sh, found := s.core.Matches.Shadow(matchID); found && sh.Revealed {
		resp.Revealed = true
		resp.Price, resp.Amount = &sh.Price, &sh.Amount
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevealMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := s.pathHash(w, r)
	if !ok {
		return
	}
	caller, ok := s.authedCaller(w, r, fmt.Sprintf("darkbook/reveal/match/%s", matchID.Hex()))
	if !ok {
		return
	}
	reqID, err := s.core.Coordinator.RequestRevealMatch(matchID, caller)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, RevealResponse{RequestID: reqID})
}

func (s *Server) handleOracleCallback(w http.ResponseWriter, r *http.Request) {
	var req OracleCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if !common.IsHexAddress(req.Caller) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid caller address %q", req.Caller))
		return
	}
	err := s.core.Coordinator.OnCallback(common.HexToAddress(req.Caller), oracle.Callback{
		RequestID:  req.RequestID,
		Cleartexts: req.Cleartexts,
		Proof:      req.Proof,
	})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"orders": s.core.Ledger.Len(),
		"time":   time.Now().UTC(),
	})
}

// ==============================
// Helpers
// ==============================

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid order id"))
		return 0, false
	}
	return id, true
}

func (s *Server) pathHash(w http.ResponseWriter, r *http.Request) (common.Hash, bool) {
	raw := mux.Vars(r)["id"]
	if len(raw) != 2+64 || raw[:2] != "0x" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid match id %q", raw))
		return common.Hash{}, false
	}
	return common.HexToHash(raw), true
}

// authedCaller extracts the caller address and, when a signature is
// supplied, verifies it over the operation's canonical message. Unsigned
// requests are accepted on this development transport; ownership checks in
// the core still apply either way.
func (s *Server) authedCaller(w http.ResponseWriter, r *http.Request, message string) (common.Address, bool) {
	var req AuthedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return common.Address{}, false
	}
	if !common.IsHexAddress(req.Caller) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid caller address %q", req.Caller))
		return common.Address{}, false
	}
	caller := common.HexToAddress(req.Caller)

	if req.Signature != "" {
		sig := common.FromHex(req.Signature)
		hash := ethcrypto.Keccak256Hash([]byte(message))
		if !dbcrypto.VerifySignature(caller, hash.Bytes(), sig) {
			s.writeError(w, http.StatusForbidden,
				fmt.Errorf("signature check for %s: %w", caller.Hex(), ledger.ErrUnauthorized))
			return common.Address{}, false
		}
	}
	return caller, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kindFor(err)})
}

// statusFor maps core error kinds to HTTP statuses so callers can tell
// "not yours" from "already done" from "bad proof".
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, reveal.ErrInvalidRequestID):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNotActive),
		errors.Is(err, ledger.ErrAlreadyRevealed),
		errors.Is(err, matching.ErrInactiveOrder):
		return http.StatusConflict
	case errors.Is(err, reveal.ErrProofVerification),
		errors.Is(err, reveal.ErrMalformedCleartexts):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(err error) string {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrNotActive):
		return "not_active"
	case errors.Is(err, ledger.ErrAlreadyRevealed):
		return "already_revealed"
	case errors.Is(err, matching.ErrInactiveOrder):
		return "inactive_order"
	case errors.Is(err, reveal.ErrInvalidRequestID):
		return "invalid_request_id"
	case errors.Is(err, reveal.ErrProofVerification):
		return "proof_verification_failed"
	case errors.Is(err, reveal.ErrMalformedCleartexts):
		return "malformed_cleartexts"
	default:
		return ""
	}
}
