/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize structured logging (zap)
  3. Initialize SQLite store
  4. Load limit policies
  5. Wire domain services and API handler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: ledger.db)
           Use ":memory:" for in-memory database
  -limits  Optional limits YAML file

ENVIRONMENT:
  PORT           Overrides -port
  DATABASE_PATH  Overrides -db
  LIMITS_FILE    Overrides -limits
  JWT_SECRET     HMAC signing key (required)
  JWT_ISSUER     Token issuer claim (default: ledger-core)
  JWT_TTL        Token lifetime, Go duration (default: 24h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/meridian/ledger-core/api"
	"github.com/meridian/ledger-core/auth"
	"github.com/meridian/ledger-core/ledger"
	"github.com/meridian/ledger-core/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	limitsFile := flag.String("limits", "", "limits YAML file (optional)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if v := os.Getenv("PORT"); v != "" {
		fmt.Sscanf(v, "%d", port)
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		*dbPath = v
	}
	if v := os.Getenv("LIMITS_FILE"); v != "" {
		*limitsFile = v
	}

	tokenCfg, err := tokenConfigFromEnv()
	if err != nil {
		logger.Fatal("invalid token configuration", zap.Error(err))
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Limit policies
	policies := ledger.DefaultLimitPolicies()
	if *limitsFile != "" {
		policies, err = ledger.LoadLimitPolicies(*limitsFile)
		if err != nil {
			logger.Fatal("failed to load limits file", zap.Error(err), zap.String("path", *limitsFile))
		}
		logger.Info("loaded limit policies", zap.String("path", *limitsFile))
	}

	// Domain services
	accounts := ledger.NewAccountManager(store)
	processor := ledger.NewProcessor(store, accounts, policies)
	reversals := ledger.NewReversalEngine(store, accounts)
	stats := ledger.NewAggregator(store, accounts)
	authSvc := auth.NewService(store, auth.NewIssuer(tokenCfg))

	handler := api.NewHandler(store, accounts, processor, reversals, stats, authSvc)
	router := api.NewRouter(handler, auth.NewVerifier(tokenCfg))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func tokenConfigFromEnv() (auth.TokenConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return auth.TokenConfig{}, fmt.Errorf("JWT_SECRET is required")
	}

	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "ledger-core"
	}

	ttl := 24 * time.Hour
	if v := os.Getenv("JWT_TTL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return auth.TokenConfig{}, fmt.Errorf("JWT_TTL must be a positive duration: %q", v)
		}
		ttl = parsed
	}

	return auth.TokenConfig{
		Secret: []byte(secret),
		Issuer: issuer,
		TTL:    ttl,
	}, nil
}
