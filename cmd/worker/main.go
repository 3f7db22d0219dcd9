package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/opale-crm/opale-crm/internal/app"
	"github.com/opale-crm/opale-crm/internal/billing/invoices"
	"github.com/opale-crm/opale-crm/internal/billing/reminders"
	"github.com/opale-crm/opale-crm/internal/crm/clients"
	"github.com/opale-crm/opale-crm/internal/mailer"
	platformdb "github.com/opale-crm/opale-crm/internal/platform/db"
	"github.com/opale-crm/opale-crm/internal/shared"
	"github.com/opale-crm/opale-crm/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	invoiceRepo := invoices.NewRepository(pool)
	clientRepo := clients.NewRepository(pool)
	auditLogger := shared.NewAuditLogger(pool)

	mail := mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	// The worker serves no /metrics endpoint, so reminder counters are only
	// scraped off dispatches that run in the API process.
	reminderService := reminders.NewService(invoiceRepo, clientRepo, mail, auditLogger, nil, logger)

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	scanJob := jobs.NewReminderScanJob(invoiceRepo, queue, logger)
	dispatchJob := jobs.NewReminderDispatchJob(reminderService, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReminderScan, Handler: scanJob.Handle},
			{Type: jobs.TaskReminderDispatch, Handler: dispatchJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReminderCron, Task: jobs.NewReminderScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("cron", cfg.ReminderCron))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
