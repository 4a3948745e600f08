package claimd

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"airdrop/gateway/middleware"
	"airdrop/native/claims"
)

const (
	defaultMaxBodyBytes = 1 << 16 // 64 KiB
	claimsRateLimitKey  = "claims"
	adminScope          = "claims:admin"
)

// ServerConfig wires the HTTP façade to its middleware.
type ServerConfig struct {
	Mint          string
	MaxBodyBytes  int64
	CORS          middleware.CORSConfig
	RateLimit     middleware.RateLimit
	Observability *middleware.Observability
	// Authenticator guards the /admin routes. A nil authenticator leaves them unmounted.
	Authenticator *middleware.Authenticator

	// TrustedProxies may name the client through X-Forwarded-For.
	TrustedProxies []string
}

// Server implements the public claim endpoints and the operator API.
type Server struct {
	issuer       *claims.Issuer
	logger       *slog.Logger
	mint         string
	maxBodyBytes int64
	router       chi.Router
}

// NewServer constructs the router for the provided issuer.
func NewServer(issuer *claims.Issuer, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if issuer == nil {
		return nil, errors.New("issuer required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		issuer:       issuer,
		logger:       logger.With(slog.String("component", "http")),
		mint:         strings.TrimSpace(cfg.Mint),
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = defaultMaxBodyBytes
	}

	obs := cfg.Observability
	observe := func(route string) func(http.Handler) http.Handler {
		if obs == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return obs.Middleware(route)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	claimRoutes := chi.Chain(observe("generate_claim"))
	confirmRoutes := chi.Chain(observe("confirm_claim"))
	if cfg.RateLimit.RatePerSecond > 0 {
		proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
		if err != nil {
			return nil, err
		}
		limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
			claimsRateLimitKey: cfg.RateLimit,
		}, logger).WithErrorWriter(writeError).WithTrustedProxies(proxies)
		claimRoutes = append(claimRoutes, limiter.Middleware(claimsRateLimitKey))
		confirmRoutes = append(confirmRoutes, limiter.Middleware(claimsRateLimitKey))
	}
	r.With(claimRoutes...).Post("/generate-claim-tx", s.handleGenerate)
	r.With(confirmRoutes...).Post("/confirm-claim", s.handleConfirm)
	r.With(observe("health")).Get("/health", s.handleHealth)
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	if cfg.Authenticator != nil {
		auth := cfg.Authenticator.WithErrorWriter(writeError)
		r.Route("/admin", func(ar chi.Router) {
			ar.Use(observe("admin"))
			ar.Use(auth.Middleware(adminScope))
			s.mountAdmin(ar)
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type claimRequest struct {
	UserAddress string `json:"userAddress"`
}

type generateResponse struct {
	Tx     string      `json:"tx"`
	Amount json.Number `json:"amount"`
}

type confirmResponse struct {
	Success bool `json:"success"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	Consumed  int    `json:"consumed"`
	Mint      string `json:"mint,omitempty"`
	Authority string `json:"authority"`
	Paused    bool   `json:"paused"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeClaimRequest(w, r)
	if !ok {
		return
	}
	artifact, entry, err := s.issuer.RequestClaim(r.Context(), req.UserAddress)
	if err != nil {
		s.writeClaimError(w, r, "generate", err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Tx:     base64.StdEncoding.EncodeToString(artifact.Tx),
		Amount: json.Number(entry.Amount.Format(s.issuer.Store().Decimals())),
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeClaimRequest(w, r)
	if !ok {
		return
	}
	if _, err := s.issuer.ConfirmClaim(r.Context(), req.UserAddress); err != nil {
		s.writeClaimError(w, r, "confirm", err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Success: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.issuer.Status()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Available: status.Available,
		Reserved:  status.Reserved,
		Consumed:  status.Consumed,
		Mint:      s.mint,
		Authority: status.Payer,
		Paused:    status.Paused,
	})
}

func (s *Server) decodeClaimRequest(w http.ResponseWriter, r *http.Request) (claimRequest, bool) {
	var req claimRequest
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func (s *Server) writeClaimError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := claimErrorStatus(op, err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("claim request failed",
			slog.String("operation", op),
			slog.String("reason", claims.Outcome(err)),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.Any("error", err))
	}
	writeError(w, status, message)
}

// claimErrorStatus maps protocol errors onto HTTP statuses. Internal causes are never
// echoed to clients.
func claimErrorStatus(op string, err error) (int, string) {
	switch {
	case errors.Is(err, claims.ErrInvalidIdentity):
		return http.StatusBadRequest, "invalid wallet address"
	case errors.Is(err, claims.ErrNotEligible):
		return http.StatusForbidden, "not eligible for this airdrop"
	case errors.Is(err, claims.ErrAlreadyClaimed):
		return http.StatusForbidden, "airdrop already claimed"
	case errors.Is(err, claims.ErrNotReserved):
		return http.StatusBadRequest, "no pending claim for this address"
	case errors.Is(err, claims.ErrPaused):
		return http.StatusServiceUnavailable, "claims are temporarily paused"
	case op == "generate":
		return http.StatusInternalServerError, "failed to generate transaction"
	default:
		return http.StatusInternalServerError, "failed to record claim"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError renders the service error body. It doubles as the middleware ErrorWriter.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: fmt.Sprintf("CLAIM-%d", status)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response","code":"CLAIM-500"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
