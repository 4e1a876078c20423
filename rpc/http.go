package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"phoenixescrow/core"
	"phoenixescrow/native/auction"
	"phoenixescrow/native/kyc"
	"phoenixescrow/observability"
	"phoenixescrow/observability/logging"
	"phoenixescrow/storage/auditdb"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeRateLimited    = -32020

	codeAuctionInvalid   = -32021
	codeAuctionNotFound  = -32022
	codeAuctionForbidden = -32023
	codeAuctionConflict  = -32024
	codeAuctionInternal  = -32025
	codeAuctionGate      = -32026
)

// Backend is the command and query surface served over RPC.
type Backend interface {
	CreateAuction(ctx context.Context, cmd core.CreateAuction) (*core.Receipt, error)
	PlaceBid(ctx context.Context, cmd core.PlaceBid) (*core.Receipt, error)
	BuyNow(ctx context.Context, cmd core.BuyNow) (*core.Receipt, error)
	Close(ctx context.Context, cmd core.Close) (*core.Receipt, error)
	CancelAuction(ctx context.Context, cmd core.CancelAuction) (*core.Receipt, error)
	ReleaseFunds(ctx context.Context, cmd core.ReleaseFunds) (*core.Receipt, error)
	VerifyUser(ctx context.Context, cmd core.VerifyUser) (*core.Receipt, error)
	RevokeVerification(ctx context.Context, cmd core.RevokeVerification) (*core.Receipt, error)
	Blacklist(ctx context.Context, cmd core.Blacklist) (*core.Receipt, error)
	UpdateConfig(ctx context.Context, cmd core.UpdateConfig) (*core.Receipt, error)

	Auction(id uint64) (*auction.Auction, error)
	ListAuctions(status *auction.Status, cursor uint64, limit int) (*auction.Page, error)
	ListCompleted(cursor uint64, limit int) (*auction.Page, error)
	Config() (*auction.Config, error)
	IsVerified(addr [20]byte) (bool, error)
	KYCRecord(addr [20]byte) (*kyc.Record, bool, error)
	Balance(addr [20]byte, denom string) (*big.Int, error)
	Initialized() (bool, error)
}

// History serves the audit journal.
type History interface {
	AuctionHistory(ctx context.Context, id uint64) ([]auditdb.Entry, error)
}

// ServerConfig controls authentication and admission.
type ServerConfig struct {
	JWTSecret          []byte
	JWTIssuer          string
	JWTAudience        string
	ClockSkew          time.Duration
	RateLimitPerSecond float64
	RateLimitBurst     int
	MaxBodyBytes       int64
	TrustProxyHeaders  bool
}

type Server struct {
	backend Backend
	history History
	cfg     ServerConfig
	logger  *slog.Logger
	auth    *authenticator
	limiter *rateLimiter
	methods map[string]method
}

// NewServer builds the RPC server. history may be nil, in which case
// auction_history reports method not found.
func NewServer(backend Backend, history History, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("rpc: backend required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxRequestBytes
	}
	auth, err := newAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.ClockSkew)
	if err != nil {
		return nil, err
	}
	s := &Server{
		backend: backend,
		history: history,
		cfg:     cfg,
		logger:  logger,
		auth:    auth,
		limiter: newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
	}
	s.methods = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving JSON-RPC on "/", plus /healthz and
// /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.cfg.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Method(http.MethodPost, "/", otelhttp.NewHandler(http.HandlerFunc(s.handle), "jsonrpc"))
	return r
}

type requestIDKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ok, err := s.backend.Initialized()
	if err != nil || !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "uninitialised"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
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

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// statusWriter remembers the HTTP status for metrics and logs.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
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

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(rw http.ResponseWriter, r *http.Request) {
	started := time.Now()
	w := &statusWriter{ResponseWriter: rw, status: http.StatusOK}
	w.Header().Set("Content-Type", "application/json")
	methodName := "unknown"
	defer func() {
		module, name := splitMethod(methodName)
		observability.ModuleMetrics().Observe(module, name, w.status, time.Since(started))
		s.logger.Info("rpc request",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("method", methodName),
			slog.Int("status", w.status),
			slog.Duration("duration", time.Since(started)))
	}()

	if !s.limiter.allow(clientID(r)) {
		observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()
	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	methodName = req.Method

	var caller [20]byte
	if m.auth {
		addr, rpcErr := s.auth.caller(r)
		if rpcErr != nil {
			s.logger.Warn("rpc auth rejected",
				slog.String("request_id", RequestID(r.Context())),
				slog.String("method", req.Method),
				slog.String("reason", rpcErr.Message),
				logging.MaskField("authorization", r.Header.Get("Authorization")))
			writeError(w, http.StatusUnauthorized, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
		caller = addr
	}
	result, status, rpcErr := m.fn(r.Context(), caller, req.Params)
	if rpcErr != nil {
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func splitMethod(name string) (string, string) {
	module, method, found := strings.Cut(name, "_")
	if !found {
		return "rpc", name
	}
	return module, method
}
