package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/config"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/database"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/logging"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/pricefeed"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/repository"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/service"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/trxtax"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/version"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Init(cfg.Log.Level)

	// Amounts are sent as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.WithFields(log.Fields{"path": cfg.Database.Path, "version": version.Version}).Info("Connected to database")

	// Create repositories
	tradeRepo := repository.NewTradeRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	currencyRepo := repository.NewCurrencyRepository(db)

	// Create services
	systemService := service.NewSystemService(db)
	taxReportService := service.NewTaxReportService(
		tradeRepo,
		movementRepo,
		currencyRepo,
		pricefeed.NewCandlesClient(cfg.PriceFeed),
		service.TaxReportOptions{
			Triangulation: trxtax.TriangulationOptions{
				PageLimit:   cfg.PriceFeed.PageLimit,
				MaxAttempts: cfg.PriceFeed.FetchAttempts,
				RetryDelay:  cfg.PriceFeed.RetryDelay,
				Timeout:     cfg.TaxReport.Timeout,
			},
			PersistBatch: cfg.TaxReport.PersistBatch,
			CacheTTL:     cfg.TaxReport.CacheTTL,
			JobRetention: cfg.TaxReport.JobRetention,
		},
		log.StandardLogger(),
	)

	// Release finished background jobs
	scheduler := cron.New()
	if _, err := taxReportService.Jobs().SchedulePruning(scheduler, "@every 10m"); err != nil {
		log.Fatalf("Failed to schedule job pruning: %v", err)
	}
	scheduler.Start()

	// Create router
	router := api.NewRouter(systemService, taxReportService, cfg)

	// Create HTTP server. Synchronous reports may run as long as the
	// triangulation guard allows.
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TaxReport.Timeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	<-scheduler.Stop().Done()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
