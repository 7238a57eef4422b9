package rewardsd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rewardvault/crypto"
	"rewardvault/native/bank"
	"rewardvault/native/common"
	"rewardvault/native/rewards"
	sdk "rewardvault/sdk/rewards"
	"rewardvault/services/rewardsd/middleware"
)

const maxBodyBytes = 1 << 20

// ServerOptions configures the HTTP surface of the ledger.
type ServerOptions struct {
	Auth      middleware.AuthConfig
	Public    middleware.RateLimit
	Admin     middleware.RateLimit
	Logger    *slog.Logger
	RateLimit bool
}

// Server exposes the ledger over HTTP.
type Server struct {
	ledger *Ledger
	logger *slog.Logger
	auth   *middleware.Authenticator
	limits *middleware.RateLimiter
	router http.Handler
}

func NewServer(ledger *Ledger, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limits := map[string]middleware.RateLimit{}
	if opts.RateLimit {
		limits["public"] = opts.Public
		limits["admin"] = opts.Admin
	}
	s := &Server{
		ledger: ledger,
		logger: logger,
		auth:   middleware.NewAuthenticator(opts.Auth, logger),
		limits: middleware.NewRateLimiter(limits),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "rewardsd")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Observability("rewardsd", s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(s.limits.Middleware("public"))
			public.Post("/pools", s.handleInitialize)
			public.Get("/pools/{pool}", s.handlePool)
			public.Post("/pools/{pool}/deposits", s.handleDeposit)
			public.Post("/pools/{pool}/claims", s.handleClaim)
			public.Get("/pools/{pool}/entries/{user}", s.handleEntry)
			public.Get("/pools/{pool}/audit", s.handleAudit)
			public.Get("/holders/{addr}", s.handleHolder)
			public.Get("/derive/{pool}", s.handleDerive)
		})
		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.limits.Middleware("admin"))
			admin.Use(s.auth.Middleware(middleware.ScopeOperator))
			admin.Post("/holders", s.handleOpenHolder)
			admin.Post("/holders/{addr}/mint", s.handleMint)
			admin.Post("/holders/{addr}/freeze", s.handleFreeze)
			admin.Post("/pause", s.handlePause)
			admin.Post("/resume", s.handleResume)
			admin.Get("/status", s.handleStatus)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req sdk.InitializeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params := rewards.InitializeParams{}
	if !parseKeys(w, map[string]*solana.PublicKey{
		"pool":      &params.Pool,
		"payer":     &params.Payer,
		"vault":     &params.Vault,
		"authority": &params.Authority,
	}, map[string]string{
		"pool":      req.Pool,
		"payer":     req.Payer,
		"vault":     req.Vault,
		"authority": req.Authority,
	}) {
		return
	}
	msg := req.SigningMessage()
	if err := sdk.VerifySignature(req.Pool, msg, req.PoolSignature); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := sdk.VerifySignature(req.Authority, msg, req.AuthoritySignature); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := sdk.VerifySignature(req.Payer, msg, req.PayerSignature); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	pool, err := s.ledger.Initialize(r.Context(), params, proofFor(params.Authority, req.Nonce, req.Timestamp))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	derived, _, _ := s.ledger.Derive(pool.Address)
	writeJSON(w, http.StatusCreated, poolResponse(pool, derived, 0))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req sdk.DepositRequest
	if !decodeBody(w, r, &req) || !matchPool(w, r, &req.Pool) {
		return
	}
	params := rewards.DepositParams{Amount: req.Amount}
	if !parseKeys(w, map[string]*solana.PublicKey{
		"pool":       &params.Pool,
		"user":       &params.User,
		"source":     &params.Source,
		"authorizer": &params.Authorizer,
		"vault":      &params.Vault,
	}, map[string]string{
		"pool":       req.Pool,
		"user":       req.User,
		"source":     req.Source,
		"authorizer": req.Authorizer,
		"vault":      req.Vault,
	}) {
		return
	}
	if err := sdk.VerifySignature(req.Authorizer, req.SigningMessage(), req.Signature); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	entry, err := s.ledger.Deposit(r.Context(), params, proofFor(params.Authorizer, req.Nonce, req.Timestamp))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse(entry))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req sdk.ClaimRequest
	if !decodeBody(w, r, &req) || !matchPool(w, r, &req.Pool) {
		return
	}
	if req.All && req.Amount != 0 {
		writeError(w, http.StatusBadRequest, rewards.CodeInvalidArgument.String(), "amount must be zero when claiming all")
		return
	}
	params := rewards.ClaimParams{Amount: req.Amount}
	if !parseKeys(w, map[string]*solana.PublicKey{
		"pool":        &params.Pool,
		"user":        &params.User,
		"vault":       &params.Vault,
		"destination": &params.Destination,
		"signer":      &params.Signer,
	}, map[string]string{
		"pool":        req.Pool,
		"user":        req.User,
		"vault":       req.Vault,
		"destination": req.Destination,
		"signer":      req.Signer,
	}) {
		return
	}
	if err := sdk.VerifySignature(req.Signer, req.SigningMessage(), req.Signature); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	proof := proofFor(params.Signer, req.Nonce, req.Timestamp)
	var (
		entry   *rewards.Entry
		claimed = req.Amount
		err     error
	)
	if req.All {
		entry, claimed, err = s.ledger.ClaimAll(r.Context(), params, proof)
	} else {
		entry, err = s.ledger.Claim(r.Context(), params, proof)
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sdk.ClaimResponse{EntryResponse: entryResponse(entry), Claimed: claimed})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r, "pool")
	if !ok {
		return
	}
	pool, vault, err := s.ledger.Pool(r.Context(), addr)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, poolResponse(pool, vault.Controller, vault.Held))
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	pool, ok := pathKey(w, r, "pool")
	if !ok {
		return
	}
	user, ok := pathKey(w, r, "user")
	if !ok {
		return
	}
	entry, err := s.ledger.Entry(r.Context(), pool, user)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse(entry))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	pool, ok := pathKey(w, r, "pool")
	if !ok {
		return
	}
	report, err := s.ledger.Audit(r.Context(), pool)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sdk.AuditResponse{
		Pool:       report.Pool.String(),
		Vault:      report.Vault.String(),
		VaultHeld:  report.VaultHeld,
		EntryTotal: report.EntryTotal.Dec(),
		Entries:    report.Entries,
		NonZero:    report.NonZero,
		Consistent: report.Consistent(),
	})
}

func (s *Server) handleHolder(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r, "addr")
	if !ok {
		return
	}
	holder, err := s.ledger.Holder(r.Context(), addr)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, holderResponse(holder))
}

func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	pool, ok := pathKey(w, r, "pool")
	if !ok {
		return
	}
	authority, bump, err := s.ledger.Derive(pool)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sdk.DeriveResponse{
		Pool:      pool.String(),
		Program:   s.ledger.Program().String(),
		Authority: authority.String(),
		Bump:      bump,
	})
}

func (s *Server) handleOpenHolder(w http.ResponseWriter, r *http.Request) {
	var req sdk.OpenHolderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var addr, mint, controller solana.PublicKey
	if !parseKeys(w, map[string]*solana.PublicKey{
		"address":    &addr,
		"mint":       &mint,
		"controller": &controller,
	}, map[string]string{
		"address":    req.Address,
		"mint":       req.Mint,
		"controller": req.Controller,
	}) {
		return
	}
	holder, err := s.ledger.OpenHolder(r.Context(), addr, mint, controller)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.audit(r, "holder opened", addr)
	writeJSON(w, http.StatusCreated, holderResponse(holder))
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r, "addr")
	if !ok {
		return
	}
	var req sdk.MintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	holder, err := s.ledger.Mint(r.Context(), addr, req.Amount)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.audit(r, "holder minted", addr)
	writeJSON(w, http.StatusOK, holderResponse(holder))
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r, "addr")
	if !ok {
		return
	}
	var req sdk.FreezeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	holder, err := s.ledger.Freeze(r.Context(), addr, req.Frozen)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.audit(r, "holder freeze updated", addr)
	writeJSON(w, http.StatusOK, holderResponse(holder))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.ledger.Pause()
	s.audit(r, "ledger paused", solana.PublicKey{})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.ledger.Resume()
	s.audit(r, "ledger resumed", solana.PublicKey{})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ledger.Status(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	paused := status.Paused
	if paused == nil {
		paused = []string{}
	}
	writeJSON(w, http.StatusOK, sdk.StatusResponse{
		Paused:   paused,
		Pools:    status.Pools,
		MinClaim: s.ledger.MinClaim(),
		Program:  s.ledger.Program().String(),
	})
}

func (s *Server) audit(r *http.Request, msg string, target solana.PublicKey) {
	attrs := []any{
		slog.String("request_id", middleware.RequestIDFrom(r.Context())),
		slog.String("operator", middleware.Subject(r.Context())),
	}
	if !target.IsZero() {
		attrs = append(attrs, slog.String("holder", target.String()))
	}
	s.logger.Info(msg, attrs...)
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed",
			slog.String("request_id", middleware.RequestIDFrom(r.Context())),
			slog.Any("error", err))
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}

// statusFor maps an operation error onto an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, sdk.ErrBadSignature):
		return http.StatusUnauthorized, "BadSignature"
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable, "Paused"
	case errors.Is(err, ErrReplay):
		return http.StatusConflict, "Replay"
	case errors.Is(err, ErrStaleRequest):
		return http.StatusUnauthorized, "StaleRequest"
	}
	switch code := rewards.CodeOf(err); code {
	case rewards.CodeUnauthorized:
		return http.StatusForbidden, code.String()
	case rewards.CodeInsufficientRewards, rewards.CodeAlreadyInitialized:
		return http.StatusConflict, code.String()
	case rewards.CodeInvalidVault, rewards.CodeInvalidArgument:
		return http.StatusBadRequest, code.String()
	case rewards.CodeOverflow, rewards.CodeTransferRejected:
		return http.StatusUnprocessableEntity, code.String()
	case rewards.CodeNotFound:
		return http.StatusNotFound, code.String()
	}
	switch {
	case errors.Is(err, bank.ErrHolderNotFound):
		return http.StatusNotFound, rewards.CodeNotFound.String()
	case errors.Is(err, bank.ErrHolderExists):
		return http.StatusConflict, "HolderExists"
	case isBankError(err):
		return http.StatusUnprocessableEntity, "BankRejected"
	}
	return http.StatusInternalServerError, "Internal"
}

func proofFor(signer solana.PublicKey, nonce string, timestamp int64) *Proof {
	return &Proof{Signer: signer, Nonce: strings.TrimSpace(nonce), Timestamp: time.Unix(timestamp, 0)}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, rewards.CodeInvalidArgument.String(), "invalid request body")
		return false
	}
	return true
}

// matchPool fills an empty body pool from the path and rejects a mismatch.
func matchPool(w http.ResponseWriter, r *http.Request, pool *string) bool {
	fromPath := chi.URLParam(r, "pool")
	if strings.TrimSpace(*pool) == "" {
		*pool = fromPath
		return true
	}
	if *pool != fromPath {
		writeError(w, http.StatusBadRequest, rewards.CodeInvalidArgument.String(), "pool in body does not match path")
		return false
	}
	return true
}

func parseKeys(w http.ResponseWriter, dst map[string]*solana.PublicKey, raw map[string]string) bool {
	for name, target := range dst {
		key, err := crypto.ParsePublicKey(raw[name])
		if err != nil {
			writeError(w, http.StatusBadRequest, rewards.CodeInvalidArgument.String(), "invalid "+name+": "+err.Error())
			return false
		}
		*target = key
	}
	return true
}

func pathKey(w http.ResponseWriter, r *http.Request, name string) (solana.PublicKey, bool) {
	key, err := crypto.ParsePublicKey(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, rewards.CodeInvalidArgument.String(), "invalid "+name+": "+err.Error())
		return solana.PublicKey{}, false
	}
	return key, true
}

func poolResponse(pool *rewards.RewardPool, vaultAuthority solana.PublicKey, held uint64) sdk.PoolResponse {
	return sdk.PoolResponse{
		Address:        pool.Address.String(),
		Vault:          pool.Vault.String(),
		Authority:      pool.Authority.String(),
		FundedBy:       pool.FundedBy.String(),
		VaultAuthority: vaultAuthority.String(),
		SignerBump:     pool.SignerBump,
		VaultHeld:      held,
	}
}

func entryResponse(entry *rewards.Entry) sdk.EntryResponse {
	return sdk.EntryResponse{Pool: entry.Pool.String(), User: entry.User.String(), Amount: entry.Amount}
}

func holderResponse(holder *bank.Holder) sdk.HolderResponse {
	return sdk.HolderResponse{
		Address:    holder.Address.String(),
		Mint:       holder.Mint.String(),
		Controller: holder.Controller.String(),
		Balance:    holder.Balance,
		Frozen:     holder.Frozen,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, sdk.ErrorResponse{Error: sdk.ErrorBody{Code: code, Message: message}})
}
