// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/portfolio-rebalancer/internal/logging"
	"github.com/portfolio-rebalancer/internal/models"
	"github.com/portfolio-rebalancer/internal/service"
)

// Service interfaces for dependency injection and testing

// PortfolioServiceInterface defines the portfolio service operations the API uses
type PortfolioServiceInterface interface {
	ConnectWallet(ctx context.Context, publicKey string) (*models.PortfolioSnapshot, error)
	GetSnapshot(ctx context.Context, publicKey string) (*models.PortfolioSnapshot, error)
	SetTargets(ctx context.Context, publicKey string, targets []models.TargetAllocation) ([]models.TargetAllocation, error)
	GetTargets(ctx context.Context, publicKey string) ([]models.TargetAllocation, error)
}

// RebalanceServiceInterface defines the rebalance service operations the API uses
type RebalanceServiceInterface interface {
	CheckRebalance(ctx context.Context, publicKey string) (*service.CheckResult, error)
	CreatePlan(ctx context.Context, publicKey string) (*service.PlanResult, error)
}

// ExecutionServiceInterface defines the execution service operations the API uses
type ExecutionServiceInterface interface {
	PrepareExecution(ctx context.Context, planID string) (*service.PreparedExecution, error)
	ConfirmSwap(ctx context.Context, planID, signature string) (*service.ConfirmResult, error)
	AbortPlan(ctx context.Context, planID string) (*models.RebalancePlan, error)
}

// Server represents the HTTP API server
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	portfolioService PortfolioServiceInterface
	rebalanceService RebalanceServiceInterface
	executionService ExecutionServiceInterface
	config           *ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance
func NewServer(
	config *ServerConfig,
	portfolioService PortfolioServiceInterface,
	rebalanceService RebalanceServiceInterface,
	executionService ExecutionServiceInterface,
) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		portfolioService: portfolioService,
		rebalanceService: rebalanceService,
		executionService: executionService,
		config:           config,
	}

	s.setupRouter()

	return s
}

func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Portfolio endpoints
	api.HandleFunc("/portfolio/connect", s.handleConnectWallet).Methods("POST")
	api.HandleFunc("/portfolio/target", s.handleSetTargets).Methods("POST")
	api.HandleFunc("/portfolio/target/{publicKey}", s.handleGetTargets).Methods("GET")
	api.HandleFunc("/portfolio/{publicKey}", s.handleGetPortfolio).Methods("GET")

	// Rebalance endpoints
	api.HandleFunc("/rebalance/check/{publicKey}", s.handleCheckRebalance).Methods("GET")
	api.HandleFunc("/rebalance/plan", s.handleCreatePlan).Methods("POST")
	api.HandleFunc("/rebalance/execute", s.handleExecutePlan).Methods("POST")
	api.HandleFunc("/rebalance/confirm", s.handleConfirmSwap).Methods("POST")
	api.HandleFunc("/rebalance/abort", s.handleAbortPlan).Methods("POST")
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-rebalancer",
	})
}

// Handler returns the root handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// decodeTargets converts the wire target shape into model allocations
func decodeTargets(raw []targetRequest) []models.TargetAllocation {
	targets := make([]models.TargetAllocation, 0, len(raw))
	for _, t := range raw {
		targets = append(targets, models.TargetAllocation{
			TokenMint:           t.TokenMint,
			TokenSymbol:         t.TokenSymbol,
			TargetPercentage:    t.TargetPercentage,
			ThresholdPercentage: t.ThresholdPercentage,
		})
	}
	return targets
}

// targetRequest is the wire shape of one target allocation
type targetRequest struct {
	TokenMint           string  `json:"tokenMint"`
	TokenSymbol         string  `json:"tokenSymbol,omitempty"`
	TargetPercentage    float64 `json:"targetPercentage"`
	ThresholdPercentage float64 `json:"thresholdPercentage,omitempty"`
}
