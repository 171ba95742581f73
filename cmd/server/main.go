/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire engine, validator, confirmation service, metrics
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -db          SQLite database path (default: ledger.db)
               Use ":memory:" for an in-memory database
  -single-ttl  Confirmation window for single mutations (default: 15m)
  -batch-ttl   Confirmation window for batches (default: 5m)
  -import-ttl  Confirmation window for bulk imports (default: 10m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/finbot/ledger-engine/api"
	"github.com/finbot/ledger-engine/ledger"
	"github.com/finbot/ledger-engine/logging"
	"github.com/finbot/ledger-engine/metrics"
	"github.com/finbot/ledger-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	singleTTL := flag.Duration("single-ttl", ledger.DefaultSingleTTL, "confirmation window for single mutations")
	batchTTL := flag.Duration("batch-ttl", ledger.DefaultBatchTTL, "confirmation window for batches")
	importTTL := flag.Duration("import-ttl", ledger.DefaultImportTTL, "confirmation window for bulk imports")
	flag.Parse()

	log := logging.New()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Wire domain services
	engine := ledger.NewEngine(store, log)
	validator := ledger.NewValidator(store, ledger.FuzzyResolver{})
	recorder := metrics.New(prometheus.DefaultRegisterer)
	service := ledger.NewConfirmationService(store, engine, validator, recorder, log)
	service.SetTTLConfig(ledger.TTLConfig{
		Single: *singleTTL,
		Batch:  *batchTTL,
		Import: *importTTL,
	})

	// Create router
	handler := api.NewHandler(engine, service, validator, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
