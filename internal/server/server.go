// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/transferguard/internal/account"
	"github.com/mbd888/transferguard/internal/auth"
	"github.com/mbd888/transferguard/internal/config"
	"github.com/mbd888/transferguard/internal/fraudlog"
	"github.com/mbd888/transferguard/internal/health"
	"github.com/mbd888/transferguard/internal/logging"
	"github.com/mbd888/transferguard/internal/metrics"
	"github.com/mbd888/transferguard/internal/risk"
	"github.com/mbd888/transferguard/internal/security"
	"github.com/mbd888/transferguard/internal/traces"
	"github.com/mbd888/transferguard/internal/transfer"
	"github.com/mbd888/transferguard/internal/validation"
)

// Version is reported by the health and info endpoints.
const Version = "0.1.0"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg       *config.Config
	accounts  account.Store
	fraud     fraudlog.Sink
	model     risk.Model
	assessor  *risk.Assessor
	transfers *transfer.Service
	authMgr   *auth.Manager
	health    *health.Registry
	db        *sql.DB // nil if using in-memory
	router    *gin.Engine
	httpSrv   *http.Server
	logger    *slog.Logger

	cancelRunCtx    context.CancelFunc // cancels background goroutines started in Run
	shutdownTracing func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStores injects account and fraud log stores (for testing)
func WithStores(accounts account.Store, fraud fraudlog.Sink) Option {
	return func(s *Server) {
		s.accounts = accounts
		s.fraud = fraud
	}
}

// WithModel injects a risk model instead of loading one from config
func WithModel(m risk.Model) Option {
	return func(s *Server) {
		s.model = m
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set stores/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTracing = shutdownTracing
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	seed := false
	switch {
	case s.accounts != nil:
		// injected
	case cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		accountStore := account.NewPostgresStore(db)
		if err := accountStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate account store", "error", err)
		}
		s.accounts = accountStore

		fraudStore := fraudlog.NewPostgresStore(db)
		if err := fraudStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate fraud log store", "error", err)
		}
		s.fraud = fraudStore
	default:
		s.accounts = account.NewMemoryStore()
		s.fraud = fraudlog.NewMemoryStore()
		seed = cfg.IsDevelopment()
		s.logger.Info("using in-memory storage (data will not persist)")
	}
	if s.fraud == nil {
		s.fraud = fraudlog.NewMemoryStore()
	}

	// Risk model is optional; without one the rule table scores alone
	if s.model == nil {
		s.model = loadModel(cfg, s.logger)
	}
	s.assessor = risk.NewAssessor(s.model, cfg.ModelTimeout)

	s.transfers = transfer.NewService(s.accounts, s.fraud, s.assessor, transfer.Config{
		BlockThreshold: cfg.RiskBlockThreshold,
		OTPTTL:         cfg.TransferOTPTTL,
		OTPLength:      cfg.OTPLength,
		StoreTimeout:   cfg.StoreTimeout,
		LockTimeout:    cfg.LockTimeout,
	}).WithLogger(s.logger)
	s.logger.Info("transfer workflow enabled",
		"block_threshold", s.transfers.Config().BlockThreshold,
		"otp_ttl", s.transfers.Config().OTPTTL.String(),
		"model", s.assessor.ModelName(),
	)

	s.authMgr = auth.NewManager(cfg.JWTSecret, cfg.SessionTTL)

	s.health = health.NewRegistry()
	if s.db != nil {
		s.health.Register("database", health.DBChecker(s.db))
	}
	modelDetail := "rule-only"
	if s.assessor.ModelLoaded() {
		modelDetail = s.assessor.ModelName()
	}
	s.health.Register("risk_model", health.Static("risk_model", true, modelDetail))

	if seed {
		if err := s.seedDemoAccount(ctx); err != nil {
			s.logger.Warn("failed to seed demo account", "error", err)
		}
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// loadModel returns the configured risk model, or nil when none is
// configured or it fails to load.
func loadModel(cfg *config.Config, logger *slog.Logger) risk.Model {
	switch {
	case cfg.ModelArtifactPath != "":
		m, err := risk.LoadForest(cfg.ModelArtifactPath)
		if err != nil {
			logger.Warn("risk model not loaded, scoring with rules only",
				"path", cfg.ModelArtifactPath,
				"error", err,
			)
			return nil
		}
		logger.Info("risk model loaded", "path", cfg.ModelArtifactPath)
		return m
	case cfg.ModelURL != "":
		m, err := risk.NewRemoteModel(cfg.ModelURL, &http.Client{Timeout: cfg.ModelTimeout})
		if err != nil {
			logger.Warn("remote risk model disabled", "error", err)
			return nil
		}
		logger.Info("remote risk model enabled", "url", cfg.ModelURL)
		return m
	default:
		logger.Info("no risk model configured, scoring with rules only")
		return nil
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())
		if id := auth.AccountID(c); id != "" {
			logger = logger.With("account_id", id)
		}

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info endpoint
	s.router.GET("/api", s.infoHandler)

	// V1 API group, every route requires a session token
	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.authMgr), auth.RequireAuth())

	account.NewHandler(s.accounts).RegisterProtectedRoutes(v1)
	transfer.NewHandler(s.transfers).RegisterProtectedRoutes(v1)
	fraudlog.NewHandler(s.fraud).RegisterProtectedRoutes(v1)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	tc := s.transfers.Config()
	c.JSON(http.StatusOK, gin.H{
		"name":             "transferguard",
		"version":          Version,
		"riskModel":        s.assessor.ModelName(),
		"blockThreshold":   tc.BlockThreshold,
		"otpTtlSeconds":    int(tc.OTPTTL / time.Second),
		"allowedLocations": account.AllowedLocations,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Sample connection pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Flush pending spans
	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Auth returns the session token manager
func (s *Server) Auth() *auth.Manager {
	return s.authMgr
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
