package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/factory"
	"github.com/lychee-technology/crm/internal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server over the four record services
type Server struct {
	services    *crm.Services
	backend     crm.StoreBackend
	collections map[string]collectionHandler
	mux         *http.ServeMux
	now         func() time.Time
}

// NewServer creates a new Server instance
func NewServer(services *crm.Services, backend crm.StoreBackend) (*Server, error) {
	validator, err := internal.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load entity schemas: %w", err)
	}
	return &Server{
		services: services,
		backend:  backend,
		collections: map[string]collectionHandler{
			"contacts":   newRecordHandler(crm.EntityContact, "contacts", services.Contacts, validator, contactDefaults),
			"deals":      newRecordHandler(crm.EntityDeal, "deals", services.Deals, validator, dealDefaults),
			"activities": newRecordHandler(crm.EntityActivity, "activities", services.Activities, validator, nil),
			"tasks":      newRecordHandler(crm.EntityTask, "tasks", services.Tasks, validator, taskDefaults),
		},
		mux: http.NewServeMux(),
		now: time.Now,
	}, nil
}

// RegisterRoutes registers all API routes. metrics may be nil.
func (s *Server) RegisterRoutes(metrics http.Handler) {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if metrics != nil {
		s.mux.Handle("/metrics", metrics)
	}
	// API routes - use custom path matching in handlers
	s.mux.HandleFunc("/api/v1/", s.apiHandler)
}

// Handler returns the routed handler wrapped with request ids and access logs.
func (s *Server) Handler() http.Handler {
	return withRequestID(s.mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestID echoes or assigns X-Request-Id and logs each request.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		zap.S().Debugw("request handled",
			"requestId", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func main() {
	cfg, err := crm.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyEnv(cfg)

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := factory.NewServices(ctx, cfg)
	if err != nil {
		sugar.Fatalf("failed to create record services: %v", err)
	}
	defer func() {
		if err := services.Shutdown(); err != nil {
			sugar.Warnw("failed to close record store", "error", err)
		}
	}()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := internal.NewMetrics(cfg.Metrics.Namespace, reg)
		if err != nil {
			sugar.Fatalf("failed to register metrics: %v", err)
		}
		internal.RegisterTelemetryEmitter(metrics.Emit)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	server, err := NewServer(services, cfg.Store.Backend)
	if err != nil {
		sugar.Fatalf("failed to create server: %v", err)
	}
	server.RegisterRoutes(metricsHandler)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("server shutdown failed", "error", err)
		}
	}()

	sugar.Infow("starting server", "port", cfg.Server.Port, "backend", cfg.Store.Backend)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Fatalf("server error: %v", err)
	}
}

// newLogger builds a zap logger for level and format ("json" or "console").
func newLogger(cfg crm.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// applyEnv overrides config values from the environment.
func applyEnv(cfg *crm.Config) {
	cfg.Store.Backend = crm.StoreBackend(getEnv("STORE_BACKEND", string(cfg.Store.Backend)))
	cfg.Store.MockLatency.Enabled = getEnvBool("MOCK_LATENCY", cfg.Store.MockLatency.Enabled)

	cfg.Remote.BaseURL = getEnv("REMOTE_BASE_URL", cfg.Remote.BaseURL)
	cfg.Remote.ProjectID = getEnv("REMOTE_PROJECT_ID", cfg.Remote.ProjectID)
	cfg.Remote.PublicKey = getEnv("REMOTE_PUBLIC_KEY", cfg.Remote.PublicKey)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.Username = getEnv("DB_USER", cfg.Database.Username)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", cfg.Database.SSLMode)
	cfg.Database.UseIAM = getEnvBool("DB_USE_IAM", cfg.Database.UseIAM)
	cfg.Database.Region = getEnv("AWS_REGION", cfg.Database.Region)
	cfg.Database.MaxConnections = getEnvInt("DB_MAX_CONNECTIONS", cfg.Database.MaxConnections)

	cfg.SQLite.Path = getEnv("SQLITE_PATH", cfg.SQLite.Path)
	cfg.Fixtures.Source = getEnv("FIXTURES_SOURCE", cfg.Fixtures.Source)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
