package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/opale-crm/opale-crm/internal/billing/invoices"
	"github.com/opale-crm/opale-crm/internal/billing/reminders"
	"github.com/opale-crm/opale-crm/internal/platform/httpx"
)

// Escalation ladder: days past due before each reminder level applies.
var escalationLadder = [...]int{7, 21, 45}

// Enqueuer submits follow-up tasks produced by a scan.
type Enqueuer interface {
	EnqueueReminderDispatch(ctx context.Context, payload ReminderDispatchPayload) error
}

// ReminderScanJob raises escalation intent on overdue invoices and enqueues a
// dispatch task for every invoice whose intent exceeds the delivered level.
// Intent and delivery are decoupled on purpose: the scan only decides, the
// dispatch task is the one that talks to the mail relay.
type ReminderScanJob struct {
	Invoices invoices.Repository
	Enqueue  Enqueuer
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewReminderScanJob initialises the scan handler.
func NewReminderScanJob(repo invoices.Repository, enqueue Enqueuer, logger *slog.Logger) *ReminderScanJob {
	return &ReminderScanJob{
		Invoices: repo,
		Enqueue:  enqueue,
		Logger:   logger,
		clock:    time.Now,
	}
}

// Handle executes one scan pass.
func (j *ReminderScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil {
		return errors.New("reminder scan: handler not configured")
	}
	now := j.clock()

	overdue, err := j.Invoices.ListOpenOverdue(ctx, now)
	if err != nil {
		j.Logger.Error("reminder scan failed", slog.Any("error", err))
		return err
	}

	var raised, enqueued int
	for _, inv := range overdue {
		target := targetLevel(now, inv.DueDate)
		if target > inv.ReminderLevel {
			if err := j.Invoices.RaiseReminderIntent(ctx, inv.ID, target); err != nil {
				j.Logger.Error("raise reminder intent",
					slog.String("invoice_id", inv.ID.String()), slog.Any("error", err))
				continue
			}
			inv.ReminderLevel = target
			raised++
		}
		if inv.ReminderLevel > inv.ReminderLevelSent {
			err := j.Enqueue.EnqueueReminderDispatch(ctx, ReminderDispatchPayload{InvoiceID: inv.ID})
			if err != nil {
				j.Logger.Error("enqueue reminder dispatch",
					slog.String("invoice_id", inv.ID.String()), slog.Any("error", err))
				continue
			}
			enqueued++
		}
	}

	j.Logger.Info("reminder scan complete",
		slog.Int("overdue", len(overdue)), slog.Int("raised", raised), slog.Int("enqueued", enqueued))
	return nil
}

// targetLevel maps days past due to the escalation ladder, capped at the
// maximum level.
func targetLevel(now time.Time, dueDate time.Time) int {
	days := int(now.Sub(dueDate).Hours() / 24)
	level := 0
	for i, threshold := range escalationLadder {
		if days >= threshold {
			level = i + 1
		}
	}
	if level > invoices.MaxReminderLevel {
		level = invoices.MaxReminderLevel
	}
	return level
}

// ReminderDispatchJob delivers one reminder through the escalation service.
type ReminderDispatchJob struct {
	Service *reminders.Service
	Logger  *slog.Logger
}

// NewReminderDispatchJob initialises the dispatch handler.
func NewReminderDispatchJob(service *reminders.Service, logger *slog.Logger) *ReminderDispatchJob {
	return &ReminderDispatchJob{Service: service, Logger: logger}
}

// Handle delivers the reminder. Business rejections (already paid, ladder
// exhausted) drop the task instead of retrying; delivery failures retry.
func (j *ReminderDispatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reminder dispatch: handler not configured")
	}
	var payload ReminderDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	result, err := j.Service.Dispatch(ctx, payload.InvoiceID)
	if err != nil {
		if rejected(err) {
			j.Logger.Info("reminder dispatch skipped",
				slog.String("invoice_id", payload.InvoiceID.String()), slog.Any("reason", err))
			return asynq.SkipRetry
		}
		return err
	}

	j.Logger.Info("reminder dispatched",
		slog.String("invoice_id", payload.InvoiceID.String()), slog.Int("level", result.NiveauRelance))
	return nil
}

func rejected(err error) bool {
	return errors.Is(err, httpx.ErrValidation) || errors.Is(err, httpx.ErrNotFound)
}
