// Package reminders escalates collection reminders on open invoices.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/opale-crm/opale-crm/internal/billing/invoices"
	"github.com/opale-crm/opale-crm/internal/crm/clients"
	"github.com/opale-crm/opale-crm/internal/mailer"
	"github.com/opale-crm/opale-crm/internal/observability"
	"github.com/opale-crm/opale-crm/internal/platform/httpx"
	appshared "github.com/opale-crm/opale-crm/internal/shared"
)

// InvoiceStore is the slice of invoice persistence dispatch needs.
type InvoiceStore interface {
	Get(ctx context.Context, id uuid.UUID) (*invoices.Invoice, error)
	RecordReminderSent(ctx context.Context, id uuid.UUID, level int, at time.Time) error
}

// RecipientSource resolves the billed client for delivery.
type RecipientSource interface {
	Get(ctx context.Context, id uuid.UUID) (*clients.Client, error)
}

// DispatchResult is the reminder endpoint response.
type DispatchResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	NiveauRelance int    `json:"niveau_relance"`
	FactureID     string `json:"facture_id"`
}

// Service composes and delivers payment reminders. The delivered counter only
// moves after the mail collaborator confirms acceptance; a failed delivery
// leaves both counters and the last-reminder date untouched.
type Service struct {
	invoices InvoiceStore
	clients  RecipientSource
	mail     mailer.Mailer
	audit    *appshared.AuditLogger
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(invoiceStore InvoiceStore, recipients RecipientSource, mail mailer.Mailer, audit *appshared.AuditLogger, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{invoices: invoiceStore, clients: recipients, mail: mail, audit: audit, metrics: metrics, logger: logger}
}

// Dispatch sends the next reminder for an invoice and advances the delivered
// counter on confirmed delivery.
func (s *Service) Dispatch(ctx context.Context, invoiceID uuid.UUID) (result *DispatchResult, err error) {
	defer func() { s.metrics.ObserveReminder(outcome(err)) }()

	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("resolve invoice", slog.Any("error", err))
		return nil, httpx.NotFound("invoice not found")
	}

	switch inv.Status {
	case invoices.InvoiceStatusPaid:
		return nil, httpx.Validation("invoice already paid")
	case invoices.InvoiceStatusDraft:
		return nil, httpx.Validation("invoice not sent yet")
	}

	if inv.ReminderLevelSent >= invoices.MaxReminderLevel {
		return nil, httpx.Validation("maximum reminder level already sent")
	}
	level := inv.ReminderLevelSent + 1

	client, err := s.clients.Get(ctx, inv.ClientID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("resolve client", slog.Any("error", err))
		return nil, httpx.NotFound("client not found")
	}

	msg := composeReminder(level, inv, client)
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Error("reminder delivery failed",
			slog.String("invoice_id", inv.ID.String()), slog.Int("level", level), slog.Any("error", err))
		return nil, httpx.Database("failed to deliver reminder")
	}

	if err := s.invoices.RecordReminderSent(ctx, inv.ID, level, time.Now()); err != nil {
		// The mail went out; losing the counter update means the next dispatch
		// re-sends the same level. Logged so operators can fix the row.
		s.logger.Error("record reminder sent", slog.String("invoice_id", inv.ID.String()), slog.Any("error", err))
		return nil, httpx.Database("failed to record reminder")
	}

	s.recordAudit(ctx, inv.ID, level)

	return &DispatchResult{
		Success:       true,
		Message:       fmt.Sprintf("Relance niveau %d envoyée pour la facture %s", level, inv.Number),
		NiveauRelance: level,
		FactureID:     inv.ID.String(),
	}, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (s *Service) recordAudit(ctx context.Context, id uuid.UUID, level int) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, appshared.AuditLog{
		Action: "reminder_sent", Entity: "invoice", EntityID: id.String(),
		Meta: map[string]any{"level": level},
	})
	if err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}

var reminderSubjects = map[int]string{
	1: "Rappel : facture %s en attente de règlement",
	2: "Relance : facture %s échue",
	3: "Dernier rappel avant mise en recouvrement : facture %s",
}

var reminderOpenings = map[int]string{
	1: "Sauf erreur de notre part, la facture %s d'un montant de %s TTC reste en attente de règlement.",
	2: "Malgré notre précédent rappel, la facture %s d'un montant de %s TTC demeure impayée.",
	3: "Sans règlement de la facture %s d'un montant de %s TTC sous huit jours, nous transmettrons le dossier au recouvrement.",
}

// composeReminder builds the French reminder mail for the escalation level.
func composeReminder(level int, inv *invoices.Invoice, client *clients.Client) mailer.Message {
	p := message.NewPrinter(language.French)
	amount := p.Sprintf("%.2f €", inv.TotalTTC)

	subject := fmt.Sprintf(reminderSubjects[level], inv.Number)
	opening := fmt.Sprintf(reminderOpenings[level], inv.Number, amount)

	body := fmt.Sprintf(`Bonjour,

%s

Date d'échéance : %s

Nous vous remercions de procéder au règlement dans les meilleurs délais.
Si votre paiement nous est déjà parvenu, veuillez ne pas tenir compte de ce message.

Cordialement`,
		opening, inv.DueDate.Format("02/01/2006"))

	return mailer.Message{To: client.Email, Subject: subject, Body: body}
}
