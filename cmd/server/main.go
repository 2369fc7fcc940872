/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the vacation entitlement engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Build the vacation-type registry and engine service
  4. Start the daily cron scheduler
  5. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: vacation.db)
              Use ":memory:" for in-memory database
  -scheduler  Enable the daily cron scheduler (default: true)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the cron scheduler (in-flight run finishes)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/vacation.db"

  # Run without the scheduler (e.g. a read replica)
  ./server -scheduler=false

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Cron loop around the daily jobs
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/vacation-engine/api"
	"github.com/warp/vacation-engine/engine"
	"github.com/warp/vacation-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "vacation.db", "SQLite database path")
	withScheduler := flag.Bool("scheduler", true, "run the daily cron scheduler")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// The type registry is built once here and passed by reference;
	// deployments swap DefaultTypes for their own category list.
	registry := engine.NewTypeRegistry(engine.DefaultTypes()...)
	clock := engine.SystemClock{}
	service := engine.NewService(store, store, clock, registry)

	// Initialize handler and router
	handler := api.NewHandler(service, store)
	if *withScheduler {
		jobs := api.NewDailyScheduler(store, engine.NewScheduler(store, clock, registry))
		if err := jobs.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		defer jobs.Stop()
		handler.Jobs = jobs
	}
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
