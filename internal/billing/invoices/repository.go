package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opale-crm/opale-crm/internal/billing/shared"
	"github.com/opale-crm/opale-crm/internal/platform/httpx"
)

const uniqueViolation = "23505"

// Repository persists invoice aggregates.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Invoice, error)
	Create(ctx context.Context, inv Invoice) error
	UpdatePDF(ctx context.Context, id uuid.UUID, url, filename string) error
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error
	ListRefsByQuote(ctx context.Context, quoteID uuid.UUID) ([]shared.InvoiceRef, error)
	// RecordReminderSent advances the delivered counter after a confirmed
	// delivery. Intent never trails behind the delivered level.
	RecordReminderSent(ctx context.Context, id uuid.UUID, level int, at time.Time) error
	// RaiseReminderIntent lifts the escalation intent; it never lowers it.
	RaiseReminderIntent(ctx context.Context, id uuid.UUID, level int) error
	// ListOpenOverdue returns sent invoices past due as of the given time.
	ListOpenOverdue(ctx context.Context, asOf time.Time) ([]Invoice, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const invoiceColumns = `id, number, quote_id, client_id, contact_id, type, status,
	issue_date, due_date, payment_date,
	total_ht, total_vat, total_ttc, vat_rate, payment_terms, notes,
	pdf_url, pdf_filename, reminder_level, reminder_level_sent, last_reminder_date,
	created_at, updated_at`

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM invoices WHERE id = $1`, invoiceColumns), id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httpx.NotFound("invoice not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (r *repository) Create(ctx context.Context, inv Invoice) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoices (id, number, quote_id, client_id, contact_id, type, status,
			issue_date, due_date, total_ht, total_vat, total_ttc, vat_rate,
			payment_terms, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
	`, inv.ID, inv.Number, inv.QuoteID, inv.ClientID, uuidPtr(inv.ContactID),
		string(inv.Type), string(inv.Status), inv.IssueDate, inv.DueDate,
		inv.TotalHT, inv.TotalVAT, inv.TotalTTC, inv.VATRate,
		inv.PaymentTerms, textPtr(inv.Notes), inv.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return httpx.Database("invoice number already taken")
		}
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func (r *repository) UpdatePDF(ctx context.Context, id uuid.UUID, url, filename string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE invoices SET pdf_url = $2, pdf_filename = $3, updated_at = NOW()
		WHERE id = $1
	`, id, url, filename)
	return err
}

func (r *repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE invoices SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, string(InvoiceStatusSent))
	return err
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE invoices SET status = $2, payment_date = $3, updated_at = NOW()
		WHERE id = $1
	`, id, string(InvoiceStatusPaid), at)
	return err
}

func (r *repository) ListRefsByQuote(ctx context.Context, quoteID uuid.UUID) ([]shared.InvoiceRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT number, type, status, total_ht, issue_date
		FROM invoices WHERE quote_id = $1
		ORDER BY issue_date ASC
	`, quoteID)
	if err != nil {
		return nil, fmt.Errorf("list invoices by quote: %w", err)
	}
	defer rows.Close()

	var refs []shared.InvoiceRef
	for rows.Next() {
		var ref shared.InvoiceRef
		var totalHT pgtype.Numeric
		if err := rows.Scan(&ref.Number, &ref.Type, &ref.Status, &totalHT, &ref.IssueDate); err != nil {
			return nil, fmt.Errorf("scan invoice ref: %w", err)
		}
		if totalHT.Valid {
			f, _ := totalHT.Float64Value()
			ref.TotalHT = f.Float64
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *repository) RecordReminderSent(ctx context.Context, id uuid.UUID, level int, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE invoices SET reminder_level_sent = $2,
			reminder_level = GREATEST(reminder_level, $2),
			last_reminder_date = $3, updated_at = NOW()
		WHERE id = $1
	`, id, level, at)
	return err
}

func (r *repository) RaiseReminderIntent(ctx context.Context, id uuid.UUID, level int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE invoices SET reminder_level = GREATEST(reminder_level, $2), updated_at = NOW()
		WHERE id = $1
	`, id, level)
	return err
}

func (r *repository) ListOpenOverdue(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM invoices
		WHERE status = $1 AND due_date < $2
		ORDER BY due_date ASC
	`, invoiceColumns), string(InvoiceStatusSent), asOf)
	if err != nil {
		return nil, fmt.Errorf("list overdue invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan overdue invoice: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// scanInvoice maps an invoice row exhaustively; nullable columns go through
// pgtype with a single default policy (nil pointers, zero values).
func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var contactID pgtype.UUID
	var paymentDate, lastReminder pgtype.Timestamptz
	var notes, paymentTerms, pdfURL, pdfFilename pgtype.Text
	var totalHT, totalVAT, totalTTC, vatRate pgtype.Numeric
	var invType, status string

	err := row.Scan(
		&inv.ID, &inv.Number, &inv.QuoteID, &inv.ClientID, &contactID, &invType, &status,
		&inv.IssueDate, &inv.DueDate, &paymentDate,
		&totalHT, &totalVAT, &totalTTC, &vatRate, &paymentTerms, &notes,
		&pdfURL, &pdfFilename, &inv.ReminderLevel, &inv.ReminderLevelSent, &lastReminder,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Type = InvoiceType(invType)
	inv.Status = InvoiceStatus(status)
	if contactID.Valid {
		id := uuid.UUID(contactID.Bytes)
		inv.ContactID = &id
	}
	if paymentDate.Valid {
		v := paymentDate.Time
		inv.PaymentDate = &v
	}
	if totalHT.Valid {
		f, _ := totalHT.Float64Value()
		inv.TotalHT = f.Float64
	}
	if totalVAT.Valid {
		f, _ := totalVAT.Float64Value()
		inv.TotalVAT = f.Float64
	}
	if totalTTC.Valid {
		f, _ := totalTTC.Float64Value()
		inv.TotalTTC = f.Float64
	}
	if vatRate.Valid {
		f, _ := vatRate.Float64Value()
		inv.VATRate = f.Float64
	}
	inv.PaymentTerms = paymentTerms.String
	if notes.Valid {
		v := notes.String
		inv.Notes = &v
	}
	if pdfURL.Valid {
		v := pdfURL.String
		inv.PDFURL = &v
	}
	if pdfFilename.Valid {
		v := pdfFilename.String
		inv.PDFFilename = &v
	}
	if lastReminder.Valid {
		v := lastReminder.Time
		inv.LastReminderDate = &v
	}
	return &inv, nil
}

func uuidPtr(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func textPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}
