package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/opale-crm/opale-crm/internal/app"
	"github.com/opale-crm/opale-crm/internal/billing/invoices"
	"github.com/opale-crm/opale-crm/internal/billing/quotes"
	"github.com/opale-crm/opale-crm/internal/billing/reminders"
	"github.com/opale-crm/opale-crm/internal/crm/clients"
	"github.com/opale-crm/opale-crm/internal/crm/company"
	"github.com/opale-crm/opale-crm/internal/crm/opportunities"
	"github.com/opale-crm/opale-crm/internal/mailer"
	"github.com/opale-crm/opale-crm/internal/numbering"
	"github.com/opale-crm/opale-crm/internal/observability"
	platformcache "github.com/opale-crm/opale-crm/internal/platform/cache"
	platformdb "github.com/opale-crm/opale-crm/internal/platform/db"
	"github.com/opale-crm/opale-crm/internal/platform/storage"
	"github.com/opale-crm/opale-crm/internal/shared"
	"github.com/opale-crm/opale-crm/jobs"
	"github.com/opale-crm/opale-crm/report"
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

	pool, err := platformdb.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, company cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	validate := validator.New()
	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	companyCache := platformcache.NewJSONCache(redisClient, cfg.CompanyCacheTTL)
	companyService := company.NewService(company.NewRepository(pool), companyCache, company.Defaults, logger)

	clientRepo := clients.NewRepository(pool)
	opportunityRepo := opportunities.NewRepository(pool)
	numbers := numbering.NewGenerator(pool)

	gotenberg := report.NewClient(cfg.GotenbergURL, cfg.RenderConcurrency)
	if err := gotenberg.Ping(ctx); err != nil {
		logger.Warn("gotenberg ping", slog.Any("error", err))
	}
	renderer, err := report.NewRenderer(gotenberg, metrics)
	if err != nil {
		logger.Error("parse document templates", slog.Any("error", err))
		os.Exit(1)
	}

	artifacts := storage.NewClient(cfg.StorageURL, cfg.StorageBucket, cfg.StorageKey)

	quoteRepo := quotes.NewRepository(pool)
	invoiceRepo := invoices.NewRepository(pool)

	quoteService := quotes.NewService(quoteRepo, opportunityRepo, companyService, numbers, renderer, artifacts, invoiceRepo, auditLogger, metrics, logger)
	invoiceService := invoices.NewService(invoiceRepo, quoteRepo, opportunityRepo, companyService, numbers, renderer, artifacts, auditLogger, metrics, logger)

	mail := mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	reminderService := reminders.NewService(invoiceRepo, clientRepo, mail, auditLogger, metrics, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		QuoteHandler:    quotes.NewHandler(logger, quoteService, validate),
		InvoiceHandler:  invoices.NewHandler(logger, invoiceService, validate),
		ReminderHandler: reminders.NewHandler(logger, reminderService, validate),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
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
