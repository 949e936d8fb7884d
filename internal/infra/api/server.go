package api

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/usecase"
)

//go:embed openapi.yaml
var openapiDoc []byte

// Deps are the use cases behind the HTTP surface. Auth may be nil, which closes the admin routes.
type Deps struct {
	Mandates usecase.MandateUseCase
	Webhooks usecase.WebhookUseCase
	Billing  usecase.BillingUseCase
	Payments usecase.PaymentUseCase
	Users    usecase.UserUseCase
	Admin    usecase.AdminUseCase
	Auth     *AuthManager
	// Health reports store reachability for /health.
	Health func(ctx context.Context) error
}

type Options struct {
	FrontendURL    string
	AllowedOrigins []string
	RequestTimeout time.Duration
	Dev            bool
}

type Server struct {
	deps Deps
	opts Options
	log  *zerolog.Logger
	srv  *http.Server
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	l := logger.With().Str("component", "HTTP").Logger()
	return &Server{deps: deps, opts: opts, log: &l}
}

// Routes builds the router. It is also what tests drive through httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		TraceID(),
		RequestLog(s.log),
		Recover(s.log),
		cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           600,
		}),
		Timeout(s.opts.RequestTimeout),
	)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapiDoc)
	})

	r.Route("/api/upi-mandates", func(r chi.Router) {
		r.Post("/create-mandate", s.handleCreateMandate)
		r.Get("/status/{userId}", s.handleMandateStatus)
		r.Post("/cancel-mandate", s.handleCancelMandate)
		r.Get("/history/{userId}", s.handleMandateHistory)
		r.Get("/callback", s.handleCallback)
		r.Post("/webhook", s.handleWebhook)
		r.With(AdminOnly(s.deps.Auth, s.log)).Post("/process-charges", s.handleProcessCharges)
	})

	r.Route("/api/payments", func(r chi.Router) {
		r.Post("/verify-payment", s.handleVerifyPayment)
		r.Get("/history/{userId}", s.handlePaymentHistory)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Get("/{userId}/entitlement", s.handleEntitlement)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(AdminOnly(s.deps.Auth, s.log))
		r.Get("/users", s.handleAdminListUsers)
		r.Post("/users/{userId}/block", s.handleAdminBlockUser)
		r.Post("/users/{userId}/unblock", s.handleAdminUnblockUser)
		r.Post("/devices/block", s.handleAdminBlockDevice)
		r.Post("/mandates/cancel", s.handleAdminCancelMandate)
		r.Delete("/mandates/{mandateId}", s.handleAdminPurgeMandate)
	})

	return r
}

func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health(ctx); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Message: "store unavailable"})
			return
		}
	}
	ok(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}
