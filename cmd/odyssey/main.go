package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-invoicing/internal/app"
	"github.com/odyssey-erp/odyssey-invoicing/internal/fiscal"
	"github.com/odyssey-erp/odyssey-invoicing/internal/masterdata"
	"github.com/odyssey-erp/odyssey-invoicing/internal/observability"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/invoices"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/sequence"
	"github.com/odyssey-erp/odyssey-invoicing/internal/shared"
	"github.com/odyssey-erp/odyssey-invoicing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 0)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	docs := docstore.New(dbpool)

	fiscalRegistry := fiscal.NewRegistry(nil)
	fiscalService := fiscal.NewService(fiscal.NewRepository(dbpool), fiscalRegistry, fiscal.ServiceConfig{
		AutoCreateNext: cfg.FiscalAutoCreateNext,
	}, logger)
	if err := fiscalService.Refresh(ctx); err != nil {
		logger.Error("load financial years", slog.Any("error", err))
		os.Exit(1)
	}
	if fy, ok := fiscalRegistry.Current(); ok {
		logger.Info("financial year selected", slog.Int("year", fy.Year))
	} else {
		logger.Warn("no active financial year, invoices cannot be saved until one is opened")
	}

	directory := masterdata.NewDirectory(
		masterdata.NewRepository(docs),
		cache.NewJSONCache(redisClient, "masterdata", cfg.MasterdataCacheTTL),
		logger,
	)

	invoiceRepo := invoices.NewRepository(docs)
	generator := sequence.NewGenerator(
		newSequenceSource(cfg, docs, redisClient, invoiceRepo),
		directory,
		sequence.EntryFormat(cfg.InvoiceEntryFormat),
		logger,
	)
	generator.WithRecorder(metrics)

	var drafts invoices.DraftStore = invoices.NewRedisDraftStore(redisClient, cfg.DraftTTL)
	if cfg.DraftStore == app.DraftStoreMemory {
		drafts = invoices.NewMemoryDraftStore()
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	invoiceService := invoices.NewService(
		invoiceRepo,
		drafts,
		fiscalRegistry,
		generator,
		directory,
		shared.NewLocker(redisClient, cfg.SaveLockTTL),
		invoices.Config{DueDays: cfg.InvoiceDueDays, AutoCorrectDates: cfg.InvoiceAutoCorrectDates},
		logger,
	)
	invoiceService.WithScanner(jobClient)
	invoiceService.WithRecorder(metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		FiscalHandler:     fiscal.NewHandler(logger, fiscalService),
		InvoiceHandler:    invoices.NewHandler(logger, invoiceService, shared.NewIdempotencyStore(dbpool)),
		MasterDataHandler: masterdata.NewHandler(logger, directory),
		JobHandler:        jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func newSequenceSource(cfg *app.Config, docs *docstore.Store, client *redis.Client, counter sequence.DocumentCounter) sequence.Source {
	switch cfg.SequenceSource {
	case app.SequenceSourceCounter:
		return sequence.NewCounterSource(docs, counter)
	case app.SequenceSourceRedis:
		return sequence.NewRedisSource(client, counter)
	default:
		return sequence.NewCountingSource(counter)
	}
}
