package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/trafficvitals/tvsi/internal/api"
	"github.com/trafficvitals/tvsi/internal/config"
	"github.com/trafficvitals/tvsi/internal/db"
	"github.com/trafficvitals/tvsi/internal/engine"
	"github.com/trafficvitals/tvsi/internal/ingest"
	"github.com/trafficvitals/tvsi/internal/monitoring"
	"github.com/trafficvitals/tvsi/internal/timeutil"
	"github.com/trafficvitals/tvsi/internal/units"
	"github.com/trafficvitals/tvsi/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	udpAddress    = flag.String("udp-addr", ":5600", "UDP bind address for detection ingest")
	dbFile        = flag.String("db", "tvsi.db", "Path to the SQLite database file")
	tuningFile    = flag.String("tuning", "", "Path to a JSON tuning config (defaults apply when empty)")
	speedUnits    = flag.String("units", units.MPS, "Speed units for API responses (mps, mph, kmph, kph)")
	rcvBuf        = flag.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	logInterval   = flag.Int("log-interval", 60, "Ingest statistics logging interval in seconds")
	migrationsDir = flag.String("migrations", "migrations", "Path to the migrations directory")
)

func main() {
	flag.Parse()

	monitoring.Logf("tvsi %s", version.String())

	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		runMigrateCommand(args[1:])
		return
	}

	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid units %q (accepted: %s)", *speedUnits, units.ValidUnitsString())
	}

	cfg := engine.DefaultConfig()
	if *tuningFile != "" {
		tuning, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		cfg = engine.ConfigFromTuning(tuning)
		monitoring.Logf("tuning config loaded from %s", *tuningFile)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := engine.NewManager(cfg, timeutil.RealClock{}, database, nil)
	defer manager.Stop()

	listener := ingest.NewUDPListener(ingest.UDPListenerConfig{
		Address:     *udpAddress,
		RcvBuf:      *rcvBuf,
		LogInterval: time.Duration(*logInterval) * time.Second,
		Router:      manager,
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			monitoring.Warnf("UDP listener exited: %v", err)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(database, manager, *speedUnits).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			monitoring.Logf("HTTP server listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Warnf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	monitoring.Logf("tvsi stopped")
}

// runMigrateCommand handles the 'migrate' subcommand.
func runMigrateCommand(args []string) {
	if len(args) < 1 {
		printMigrateHelp()
		os.Exit(1)
	}

	database, err := db.OpenDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	switch args[0] {
	case "up":
		if err := database.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		log.Println("all migrations applied")

	case "down":
		if err := database.MigrateDown(*migrationsDir); err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		log.Println("rolled back one migration")

	case "status":
		version, dirty, err := database.MigrateVersion(*migrationsDir)
		if err != nil {
			log.Fatalf("failed to get migration status: %v", err)
		}
		fmt.Printf("version: %d dirty: %v\n", version, dirty)

	case "help":
		printMigrateHelp()

	default:
		fmt.Printf("unknown migrate action: %s\n\n", args[0])
		printMigrateHelp()
		os.Exit(1)
	}
}

func printMigrateHelp() {
	fmt.Println(`Usage: tvsi [flags] migrate <action>

Actions:
  up       apply all pending migrations
  down     roll back the most recent migration
  status   show the current migration version
  help     show this help`)
}
