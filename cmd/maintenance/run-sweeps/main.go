package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/config"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/services"
)

// run-sweeps executes lifecycle sweeps once against the database, for
// backfills and for environments that run without the scheduler.
func main() {
	var (
		dbURLFlag string
		sweepFlag string
		nowFlag   string
		tzFlag    string
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&sweepFlag, "sweep", "all", "sweep to run: all, "+strings.Join(services.SweepNames(), ", "))
	flag.StringVar(&nowFlag, "now", "", "evaluate sweeps as of this RFC3339 time instead of the current time")
	flag.StringVar(&tzFlag, "timezone", "", "IANA zone deciding what today is (overrides TIMEZONE)")
	flag.Parse()

	// Optional; avoids passing secrets on the command line
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	tz := tzFlag
	if tz == "" {
		tz = os.Getenv("TIMEZONE")
	}
	loc := time.UTC
	if tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			logger.Fatalf("invalid timezone %q: %v", tz, err)
		}
	}

	now := time.Now()
	if nowFlag != "" {
		parsed, err := time.Parse(time.RFC3339, nowFlag)
		if err != nil {
			logger.Fatalf("invalid -now %q: %v", nowFlag, err)
		}
		now = parsed
	}

	// Minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	store := database.NewPostgresStore(db)
	defer store.Close()

	ledger := services.NewCapacityLedger(logger, 0)
	lifecycle := services.NewLifecycleCoordinator(ledger, logger)
	bookings := services.NewBookingService(store, ledger, lifecycle, services.NewLogNotifier(logger), nil, logger, time.Now, loc)
	sweeps := services.NewSweepService(store, bookings, ledger, lifecycle, logger, loc)

	ctx := context.Background()
	var results []services.SweepResult
	if sweepFlag == "all" {
		results, err = sweeps.RunAll(ctx, now)
	} else {
		var res *services.SweepResult
		res, err = sweeps.Run(ctx, sweepFlag, now)
		if res != nil {
			results = append(results, *res)
		}
	}

	fmt.Printf("Sweeps as of %s:\n", now.In(loc).Format(time.RFC3339))
	for _, r := range results {
		fmt.Printf("  %-20s affected=%d skipped=%d failed=%d (%s)\n", r.Sweep, r.Affected, r.Skipped, r.Failed, r.Duration)
	}

	if err != nil {
		logger.Fatalf("sweep run failed: %v", err)
	}
}
