package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"redmatrix/config"
	"redmatrix/ledger"
	"redmatrix/models"
	"redmatrix/notes"
	"redmatrix/observability/logging"
	"redmatrix/server"
	"redmatrix/verification"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("redmatrixd", "").Error("config error", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup("redmatrixd", cfg.Env)
	logger.Info("ledger client configured",
		"baseURL", cfg.Ledger.BaseURL,
		"projectID", logging.MaskValue(cfg.Ledger.ProjectID))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Error("database connection error", "error", err)
		os.Exit(1)
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Error("auto migrate error", "error", err)
		os.Exit(1)
	}

	ledgerClient := ledger.NewClient(ledger.Config{
		BaseURL:   cfg.Ledger.BaseURL,
		ProjectID: cfg.Ledger.ProjectID,
		Timeout:   cfg.LedgerTimeout(),
	})

	verifications, err := verification.NewService(verification.Config{
		DB:              db,
		Ledger:          ledgerClient,
		MaxRetries:      cfg.Worker.MaxRetries,
		ProcessingGrace: cfg.ProcessingGrace(),
		Logger:          logger,
	})
	if err != nil {
		logger.Error("verification service init error", "error", err)
		os.Exit(1)
	}

	noteService, err := notes.NewService(notes.Config{
		DB:            db,
		Verifications: verifications,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("notes service init error", "error", err)
		os.Exit(1)
	}
	verifications.SetNotes(noteService)

	worker := verification.NewWorker(verification.WorkerConfig{
		Service:       verifications,
		Interval:      cfg.WorkerInterval(),
		SweepInterval: cfg.SweepInterval(),
		BatchSize:     cfg.Worker.BatchSize,
		PaceInterval:  cfg.PaceInterval(),
		Logger:        logger,
		Metrics:       verification.WorkerMetrics(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go worker.Start(ctx)

	srv := server.New(server.Config{
		Notes:         noteService,
		Verifications: verifications,
		Worker:        worker,
		Ledger:        ledgerClient,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting redmatrixd", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("redmatrixd stopped")
}
