package quotes

import (
	"time"

	"github.com/google/uuid"
)

// QuoteStatus follows the one-directional quote lifecycle.
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusDeclined QuoteStatus = "declined"
	QuoteStatusExpired  QuoteStatus = "expired"
)

// Quote is a numbered commercial offer. Number is immutable once assigned;
// LinkedInvoiceID is written by exactly one conversion.
type Quote struct {
	ID              uuid.UUID   `json:"id"`
	Number          string      `json:"number"`
	OpportunityID   uuid.UUID   `json:"opportunity_id"`
	ClientID        uuid.UUID   `json:"client_id"`
	ContactID       *uuid.UUID  `json:"contact_id,omitempty"`
	Status          QuoteStatus `json:"status"`
	IssueDate       time.Time   `json:"issue_date"`
	ValidityDate    time.Time   `json:"validity_date"`
	SentDate        *time.Time  `json:"sent_date,omitempty"`
	ResponseDate    *time.Time  `json:"response_date,omitempty"`
	TotalHT         float64     `json:"total_ht"`
	TotalVAT        float64     `json:"total_vat"`
	TotalTTC        float64     `json:"total_ttc"`
	VATRate         float64     `json:"vat_rate"`
	PaymentTerms    string      `json:"payment_terms"`
	Notes           *string     `json:"notes,omitempty"`
	PDFURL          *string     `json:"pdf_url,omitempty"`
	PDFFilename     *string     `json:"pdf_filename,omitempty"`
	LinkedInvoiceID *uuid.UUID  `json:"linked_invoice_id,omitempty"`
	ConvertedAt     *time.Time  `json:"converted_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Converted reports whether this quote has already produced an invoice.
func (q *Quote) Converted() bool {
	return q.LinkedInvoiceID != nil
}
