package rpc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablecore/engine"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 32
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020

	codeInvariantViolation = -32030
	codeExternalFailure    = -32031
	codeLiquidation        = -32032
	codeInsufficient       = -32033
	codePaused             = -32034
)

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the collateral engine over JSON-RPC 2.0. Mutating methods
// are serialized behind a single mutex: the engine expects the host
// environment to rule out concurrent mutations, and this server is that
// host.
type Server struct {
	engine *engine.Engine

	mutate sync.Mutex

	mu           sync.Mutex
	httpServer   *http.Server
	rateLimiters map[string]*rateLimiter
	authToken    string
}

// NewServer wraps the engine. The bearer token for mutating methods is read
// from STABLECORE_RPC_TOKEN; when unset, mutating methods are open (local
// development mode).
func NewServer(eng *engine.Engine) *Server {
	token := strings.TrimSpace(os.Getenv("STABLECORE_RPC_TOKEN"))
	return &Server{
		engine:       eng,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    token,
	}
}

// Router builds the HTTP routing table: JSON-RPC at /, liveness at /healthz
// and prometheus metrics at /metrics.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start binds addr and serves the router, blocking until the listener fails
// or Shutdown drains it.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()
	return srv.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by ctx. A server that never started shuts down trivially.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request too large", nil)
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	handler, mutating := s.route(req.Method)
	if handler == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	if mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allowRequest(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		s.mutate.Lock()
		defer s.mutate.Unlock()
	}

	handler(w, r, &req)
}

func (s *Server) route(method string) (func(http.ResponseWriter, *http.Request, *RPCRequest), bool) {
	switch method {
	case "collateral_deposit":
		return s.handleDeposit, true
	case "collateral_redeem":
		return s.handleRedeem, true
	case "debt_mint":
		return s.handleMint, true
	case "debt_burn":
		return s.handleBurn, true
	case "engine_depositAndMint":
		return s.handleDepositAndMint, true
	case "engine_redeemAndBurn":
		return s.handleRedeemAndBurn, true
	case "engine_liquidate":
		return s.handleLiquidate, true
	case "engine_getHealthFactor":
		return s.handleGetHealthFactor, false
	case "engine_getAccountInfo":
		return s.handleGetAccountInfo, false
	case "engine_getUsdValue":
		return s.handleGetUsdValue, false
	case "engine_getTokenAmountFromUsd":
		return s.handleGetTokenAmountFromUsd, false
	case "engine_totals":
		return s.handleTotals, false
	}
	return nil, false
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	provided := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allowRequest(key string) bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.rateLimiters[key]
	if !ok || now.Sub(limiter.windowStart) > rateLimitWindow {
		s.rateLimiters[key] = &rateLimiter{count: 1, windowStart: now}
		return true
	}
	if limiter.count >= maxTxPerWindow {
		return false
	}
	limiter.count++
	return true
}

// errorStatus maps an engine failure onto a JSON-RPC code and HTTP status.
func errorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrAssetNotApproved),
		errors.Is(err, engine.ErrLengthMismatch):
		return codeInvalidParams, http.StatusBadRequest
	case errors.Is(err, engine.ErrHealthFactorBroken):
		return codeInvariantViolation, http.StatusConflict
	case errors.Is(err, engine.ErrStalePrice),
		errors.Is(err, engine.ErrInvalidPrice),
		errors.Is(err, engine.ErrTransferFailed),
		errors.Is(err, engine.ErrMintFailed),
		errors.Is(err, engine.ErrBurnFailed):
		return codeExternalFailure, http.StatusBadGateway
	case errors.Is(err, engine.ErrHealthFactorOk),
		errors.Is(err, engine.ErrHealthFactorNotImproved):
		return codeLiquidation, http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientCollateral),
		errors.Is(err, engine.ErrInsufficientDebt):
		return codeInsufficient, http.StatusConflict
	case errors.Is(err, engine.ErrActionPaused):
		return codePaused, http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrReentrantCall):
		return codeServerError, http.StatusConflict
	}
	return codeServerError, http.StatusInternalServerError
}

func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	code, status := errorStatus(err)
	writeError(w, status, id, code, err.Error(), nil)
}
