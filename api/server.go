// Package api provides the HTTP REST API server for the OpeNSE risk engine.
//
// It exposes portfolio bookkeeping, risk metrics, optimization, stress
// testing, Prometheus metrics and a WebSocket feed of portfolio events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/seenimoa/openseai-risk/internal/config"
	"github.com/seenimoa/openseai-risk/internal/logger"
	"github.com/seenimoa/openseai-risk/internal/metrics"
	"github.com/seenimoa/openseai-risk/internal/store"
	"github.com/seenimoa/openseai-risk/pkg/models"
	"github.com/seenimoa/openseai-risk/pkg/utils"
)

// Version is reported by /health; set by the binary at start-up.
var Version = "dev"

// Service is the engine API the handlers call.
type Service interface {
	CreatePortfolio(ctx context.Context, in store.CreatePortfolioInput) (string, error)
	AddHolding(ctx context.Context, portfolioID string, in store.AddHoldingInput) (string, error)
	SellHolding(ctx context.Context, portfolioID string, in store.SellInput) (string, error)
	RecordDividend(ctx context.Context, portfolioID string, in store.DividendInput) (string, error)
	RefreshPrices(ctx context.Context, portfolioID string) (map[string]float64, error)
	GetSummary(ctx context.Context, portfolioID string) (*models.PortfolioSummary, error)
	ListPortfolios(ctx context.Context) ([]models.PortfolioListing, error)
	Transactions(ctx context.Context, portfolioID string) ([]models.Transaction, error)
	TakeSnapshot(ctx context.Context, portfolioID string) (*models.Snapshot, error)
	Snapshots(ctx context.Context, portfolioID string) ([]models.Snapshot, error)
	ComputeRisk(ctx context.Context, portfolioID string) (*models.RiskMetrics, error)
	Optimize(ctx context.Context, portfolioID string, targetReturn *float64) (*models.OptimizationResult, error)
	StressTest(ctx context.Context, portfolioID string) ([]models.StressResult, error)
	CorrelationMatrix(ctx context.Context, portfolioID string) (*models.CorrelationMatrix, error)
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	svc      Service
	hub      *WSHub
	validate *validator.Validate
	log      *zap.Logger
}

// NewServer creates a configured API server with all routes and middleware.
// hub may be nil; pass the same hub to engine.WithPublisher to stream
// portfolio events.
func NewServer(cfg *config.Config, svc Service, hub *WSHub, log *zap.Logger) *Server {
	if hub == nil {
		hub = NewWSHub()
	}
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		hub:      hub,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger.OrNop(log),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run()
	defer s.hub.Close()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/config", s.handleGetConfig)

		// WebSocket is long-lived: no request timeout.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(120 * time.Second))

			r.Post("/portfolios", s.handleCreatePortfolio)
			r.Get("/portfolios", s.handleListPortfolios)

			r.Route("/portfolios/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPortfolio)
				r.Post("/holdings", s.handleAddHolding)
				r.Post("/sell", s.handleSell)
				r.Post("/dividends", s.handleDividend)
				r.Post("/refresh", s.handleRefresh)
				r.Get("/transactions", s.handleTransactions)
				r.Get("/risk", s.handleRisk)
				r.Post("/optimize", s.handleOptimize)
				r.Get("/stress", s.handleStress)
				r.Get("/correlation", s.handleCorrelation)
				r.Post("/snapshots", s.handleTakeSnapshot)
				r.Get("/snapshots", s.handleSnapshots)
			})
		})
	})

	return r
}

// requestLogger logs one line per request at INFO, or WARN for 5xx.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.log.Warn("http request", fields...)
			return
		}
		s.log.Info("http request", fields...)
	})
}

// ============================================================
// Envelope
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, APIResponse{Success: true, Data: data})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, models.ErrEmptyPortfolio), errors.Is(err, models.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrDataUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status; unexpected errors are logged and
// hidden from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		msg = "internal error"
	}
	writeError(w, status, msg)
}

// ============================================================
// Health
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    Version,
		"time_ist":   utils.FormatDateIST(utils.NowIST()),
		"ws_clients": s.hub.ClientCount(),
	})
}
