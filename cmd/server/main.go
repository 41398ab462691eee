/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store (TxStore + Registry on one database)
  3. Build the exchange-rate table
  4. Wire the ledger service and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: ledger.db)
                   Use ":memory:" for an in-memory database
  -base-currency   Fallback currency for rows with no account (default: USD)
  -rates           Comma-separated exchange rates, e.g.
                   "KRW/PHP=0.041,USD/PHP=56.5"
  -enforce-entity  Also enforce non-negative entity balances
  -entity-cover    Let a solvent entity cover a single-account dip

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run in-memory with a KRW/PHP rate
  ./server -db=":memory:" -rates="KRW/PHP=0.041"

SEE ALSO:
  - api/server.go: Router configuration
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
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cenfin/ledger-engine/api"
	"github.com/cenfin/ledger-engine/ledger"
	"github.com/cenfin/ledger-engine/rates"
	"github.com/cenfin/ledger-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	baseCurrency := flag.String("base-currency", "USD", "fallback currency")
	rateSpec := flag.String("rates", "", "comma-separated exchange rates, e.g. KRW/PHP=0.041")
	enforceEntity := flag.Bool("enforce-entity", false, "also enforce non-negative entity balances")
	entityCover := flag.Bool("entity-cover", false, "let a solvent entity cover a single-account dip")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	conv, err := buildRates(*rateSpec)
	if err != nil {
		log.Fatalf("Invalid -rates: %v", err)
	}

	cfg := ledger.DefaultConfig()
	cfg.BaseCurrency = *baseCurrency
	cfg.EnforceEntity = *enforceEntity
	cfg.AllowEntityCover = *entityCover

	svc := ledger.NewService(store, store, conv, cfg)
	svc.OnDeleted = func(t ledger.Transaction) {
		log.Printf("deleted transaction %s (%s %s)", t.ID, t.Amount.StringFixed(2), t.Currency)
	}

	handler := api.NewHandler(svc, store)
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		close(done)
	}()

	log.Printf("Ledger engine listening on :%d (db=%s)", *port, *dbPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-done
}

// buildRates parses "KRW/PHP=0.041,USD/PHP=56.5" into a static converter.
func buildRates(spec string) (rates.Converter, error) {
	quotes := make(map[string]decimal.Decimal)
	if spec != "" {
		for _, part := range strings.Split(spec, ",") {
			pair, value, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok {
				return nil, fmt.Errorf("malformed rate %q: want PAIR=VALUE", part)
			}
			rate, err := decimal.NewFromString(value)
			if err != nil {
				return nil, fmt.Errorf("malformed rate value %q: %w", value, err)
			}
			quotes[pair] = rate
		}
	}
	return rates.NewStatic(quotes)
}
