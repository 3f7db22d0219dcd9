package invoices

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus follows the collection lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusSent  InvoiceStatus = "sent"
	InvoiceStatusPaid  InvoiceStatus = "paid"
)

// InvoiceType distinguishes how the invoice relates to its quote.
type InvoiceType string

const (
	// InvoiceTypeStandard invoices the full quote amount.
	InvoiceTypeStandard InvoiceType = "standard"
	// InvoiceTypeDeposit invoices a percentage up front.
	InvoiceTypeDeposit InvoiceType = "deposit"
	// InvoiceTypeBalance invoices what remains after paid deposits.
	InvoiceTypeBalance InvoiceType = "balance"
)

// MaxReminderLevel caps the escalation ladder.
const MaxReminderLevel = 3

// Invoice is a numbered collectible document issued against a quote.
// ReminderLevel is escalation intent; ReminderLevelSent only advances on
// confirmed delivery, so the two may diverge until dispatch catches up.
type Invoice struct {
	ID                uuid.UUID     `json:"id"`
	Number            string        `json:"number"`
	QuoteID           uuid.UUID     `json:"quote_id"`
	ClientID          uuid.UUID     `json:"client_id"`
	ContactID         *uuid.UUID    `json:"contact_id,omitempty"`
	Type              InvoiceType   `json:"type"`
	Status            InvoiceStatus `json:"status"`
	IssueDate         time.Time     `json:"issue_date"`
	DueDate           time.Time     `json:"due_date"`
	PaymentDate       *time.Time    `json:"payment_date,omitempty"`
	TotalHT           float64       `json:"total_ht"`
	TotalVAT          float64       `json:"total_vat"`
	TotalTTC          float64       `json:"total_ttc"`
	VATRate           float64       `json:"vat_rate"`
	PaymentTerms      string        `json:"payment_terms"`
	Notes             *string       `json:"notes,omitempty"`
	PDFURL            *string       `json:"pdf_url,omitempty"`
	PDFFilename       *string       `json:"pdf_filename,omitempty"`
	ReminderLevel     int           `json:"reminder_level"`
	ReminderLevelSent int           `json:"reminder_level_sent"`
	LastReminderDate  *time.Time    `json:"last_reminder_date,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Open reports whether the invoice still awaits payment.
func (i *Invoice) Open() bool {
	return i.Status == InvoiceStatusSent
}
