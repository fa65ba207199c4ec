package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/cache"
	"github.com/tourdesk/excursion-backend/internal/config"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/external"
	"github.com/tourdesk/excursion-backend/internal/handlers"
	"github.com/tourdesk/excursion-backend/internal/messaging"
	"github.com/tourdesk/excursion-backend/internal/metrics"
	"github.com/tourdesk/excursion-backend/internal/middleware"
	"github.com/tourdesk/excursion-backend/internal/services"
	"github.com/tourdesk/excursion-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting excursion availability backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	loc := cfg.Location()
	clock := services.Clock(time.Now)

	// Notifications go to NATS Streaming when configured, otherwise to the log
	var notifier services.Notifier = services.NewLogNotifier(logger)
	if cfg.NATS.URL != "" {
		natsClient, err := messaging.NewNATSClient(messaging.Config{
			URL:           cfg.NATS.URL,
			ClusterID:     cfg.NATS.ClusterID,
			ClientID:      cfg.NATS.ClientID,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer natsClient.Close()
		notifier = services.NewPublishingNotifier(natsClient, logger)
	} else {
		logger.Warn("NATS_URL not set, lifecycle events will only be logged")
	}

	var vouchers services.VoucherLookup
	if cfg.Voucher.APIURL != "" {
		vouchers = external.NewVoucherClient(external.VoucherConfig{
			BaseURL: cfg.Voucher.APIURL,
			Timeout: cfg.Voucher.Timeout,
		})
		logger.WithField("url", cfg.Voucher.APIURL).Info("Reservation lookup enabled")
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	ledger := services.NewCapacityLedger(logger, cfg.Capacity.ReconcileDriftTolerance)
	lifecycle := services.NewLifecycleCoordinator(ledger, logger)
	availabilityService := services.NewAvailabilityService(
		store,
		services.NewConflictDetector(),
		services.NewDayMaterializer(ledger, logger),
		lifecycle,
		logger,
		clock,
		loc,
	)
	bookingService := services.NewBookingService(store, ledger, lifecycle, notifier, vouchers, logger, clock, loc)
	referralService := services.NewReferralService(store, lifecycle, logger, clock)
	dispatchService := services.NewDispatchService(store, lifecycle, notifier, logger, clock, loc)
	sweepService := services.NewSweepService(store, bookingService, ledger, lifecycle, logger, loc)

	// Replicas coordinate sweeps through a Redis lock when one is configured
	var sweepLock services.SweepLocker
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		lock := cache.NewSweepLock(redisClient, cfg.Redis.LockTTL, logger)
		defer lock.Close()
		sweepLock = lock
	}

	cronService := services.NewCronService(sweepService, sweepLock, logger, clock)
	if cfg.Scheduler.Enabled {
		if err := cronService.Start(cfg.Scheduler); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
		logger.Info("✓ Cron service started - lifecycle sweeps enabled")
	} else {
		logger.Warn("Scheduler disabled, sweeps only run on demand")
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(store))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	handlers.RegisterRoutes(router, handlers.Handlers{
		Windows:     handlers.NewWindowHandler(availabilityService, bookingService, logger),
		Bookings:    handlers.NewBookingHandler(bookingService, logger),
		Referrals:   handlers.NewReferralHandler(referralService, logger),
		Dispatch:    handlers.NewDispatchHandler(dispatchService, logger),
		Maintenance: handlers.NewMaintenanceHandler(sweepService, cronService, clock, logger),
	}, jwtService)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// openStore connects the configured storage backend
func openStore(cfg *config.Config, logger *logrus.Logger) (database.Store, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		return database.NewMemoryStore(), nil
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := database.RunMigrations(ctx, db, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return database.NewPostgresStore(db), nil
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(store database.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
