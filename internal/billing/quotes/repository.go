package quotes

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

	"github.com/opale-crm/opale-crm/internal/platform/httpx"
)

const uniqueViolation = "23505"

// Repository persists quote aggregates.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Quote, error)
	Create(ctx context.Context, q Quote) error
	UpdatePDF(ctx context.Context, id uuid.UUID, url, filename string) error
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	SetResponse(ctx context.Context, id uuid.UUID, status QuoteStatus, at time.Time) error
	MarkExpired(ctx context.Context, id uuid.UUID) error
	// LinkInvoice records the conversion back-reference. It only succeeds when
	// no invoice is linked yet; the boolean reports whether this call won.
	LinkInvoice(ctx context.Context, quoteID, invoiceID uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const quoteColumns = `id, number, opportunity_id, client_id, contact_id, status,
	issue_date, validity_date, sent_date, response_date,
	total_ht, total_vat, total_ttc, vat_rate, payment_terms, notes,
	pdf_url, pdf_filename, linked_invoice_id, converted_at, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Quote, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM quotes WHERE id = $1`, quoteColumns), id)
	q, err := scanQuote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httpx.NotFound("quote not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return q, nil
}

func (r *repository) Create(ctx context.Context, q Quote) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO quotes (id, number, opportunity_id, client_id, contact_id, status,
			issue_date, validity_date, total_ht, total_vat, total_ttc, vat_rate,
			payment_terms, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`, q.ID, q.Number, q.OpportunityID, q.ClientID, uuidPtr(q.ContactID), string(q.Status),
		q.IssueDate, q.ValidityDate, q.TotalHT, q.TotalVAT, q.TotalTTC, q.VATRate,
		q.PaymentTerms, textPtr(q.Notes), q.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return httpx.Database("quote number already taken")
		}
		return fmt.Errorf("create quote: %w", err)
	}
	return nil
}

func (r *repository) UpdatePDF(ctx context.Context, id uuid.UUID, url, filename string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE quotes SET pdf_url = $2, pdf_filename = $3, updated_at = NOW()
		WHERE id = $1
	`, id, url, filename)
	return err
}

func (r *repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE quotes SET status = $2, sent_date = $3, updated_at = NOW()
		WHERE id = $1
	`, id, string(QuoteStatusSent), at)
	return err
}

func (r *repository) SetResponse(ctx context.Context, id uuid.UUID, status QuoteStatus, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE quotes SET status = $2, response_date = $3, updated_at = NOW()
		WHERE id = $1
	`, id, string(status), at)
	return err
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE quotes SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, string(QuoteStatusExpired))
	return err
}

func (r *repository) LinkInvoice(ctx context.Context, quoteID, invoiceID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE quotes SET linked_invoice_id = $2, converted_at = $3, updated_at = NOW()
		WHERE id = $1 AND linked_invoice_id IS NULL
	`, quoteID, invoiceID, at)
	if err != nil {
		return false, fmt.Errorf("link invoice: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// scanQuote maps a quote row exhaustively; nullable columns go through pgtype
// with a single default policy (nil pointers, zero values).
func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	var contactID, linkedInvoiceID pgtype.UUID
	var sentDate, responseDate, convertedAt pgtype.Timestamptz
	var notes, paymentTerms, pdfURL, pdfFilename pgtype.Text
	var totalHT, totalVAT, totalTTC, vatRate pgtype.Numeric
	var status string

	err := row.Scan(
		&q.ID, &q.Number, &q.OpportunityID, &q.ClientID, &contactID, &status,
		&q.IssueDate, &q.ValidityDate, &sentDate, &responseDate,
		&totalHT, &totalVAT, &totalTTC, &vatRate, &paymentTerms, &notes,
		&pdfURL, &pdfFilename, &linkedInvoiceID, &convertedAt, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	q.Status = QuoteStatus(status)
	if contactID.Valid {
		id := uuid.UUID(contactID.Bytes)
		q.ContactID = &id
	}
	if sentDate.Valid {
		v := sentDate.Time
		q.SentDate = &v
	}
	if responseDate.Valid {
		v := responseDate.Time
		q.ResponseDate = &v
	}
	if totalHT.Valid {
		f, _ := totalHT.Float64Value()
		q.TotalHT = f.Float64
	}
	if totalVAT.Valid {
		f, _ := totalVAT.Float64Value()
		q.TotalVAT = f.Float64
	}
	if totalTTC.Valid {
		f, _ := totalTTC.Float64Value()
		q.TotalTTC = f.Float64
	}
	if vatRate.Valid {
		f, _ := vatRate.Float64Value()
		q.VATRate = f.Float64
	}
	q.PaymentTerms = paymentTerms.String
	if notes.Valid {
		v := notes.String
		q.Notes = &v
	}
	if pdfURL.Valid {
		v := pdfURL.String
		q.PDFURL = &v
	}
	if pdfFilename.Valid {
		v := pdfFilename.String
		q.PDFFilename = &v
	}
	if linkedInvoiceID.Valid {
		id := uuid.UUID(linkedInvoiceID.Bytes)
		q.LinkedInvoiceID = &id
	}
	if convertedAt.Valid {
		v := convertedAt.Time
		q.ConvertedAt = &v
	}
	return &q, nil
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
