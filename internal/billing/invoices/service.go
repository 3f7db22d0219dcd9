package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opale-crm/opale-crm/internal/billing/quotes"
	"github.com/opale-crm/opale-crm/internal/billing/shared"
	"github.com/opale-crm/opale-crm/internal/crm/company"
	"github.com/opale-crm/opale-crm/internal/crm/opportunities"
	"github.com/opale-crm/opale-crm/internal/numbering"
	"github.com/opale-crm/opale-crm/internal/observability"
	"github.com/opale-crm/opale-crm/internal/platform/httpx"
	appshared "github.com/opale-crm/opale-crm/internal/shared"
	"github.com/opale-crm/opale-crm/report"
)

// paymentWindowDays sets the due date relative to issuance.
const paymentWindowDays = 30

// QuoteSource reads and finalizes the source quote during conversion.
type QuoteSource interface {
	Get(ctx context.Context, id uuid.UUID) (*quotes.Quote, error)
	LinkInvoice(ctx context.Context, quoteID, invoiceID uuid.UUID, at time.Time) (bool, error)
}

// OpportunitySource resolves the opportunity parties and priced lines.
type OpportunitySource interface {
	GetWithParties(ctx context.Context, id uuid.UUID) (*opportunities.Opportunity, error)
	ListLineItems(ctx context.Context, opportunityID uuid.UUID) ([]opportunities.LineItem, error)
}

// CompanyResolver yields the effective issuer profile.
type CompanyResolver interface {
	Resolve(ctx context.Context) company.Profile
}

// NumberSource reserves document numbers.
type NumberSource interface {
	Next(ctx context.Context, doc numbering.DocType) (string, error)
}

// InvoiceRenderer produces PDF bytes for an invoice view model.
type InvoiceRenderer interface {
	RenderInvoice(ctx context.Context, doc report.InvoiceDocument) ([]byte, error)
}

// ArtifactStore uploads rendered documents and issues public URLs.
type ArtifactStore interface {
	Upload(ctx context.Context, path string, content []byte, contentType string) (string, error)
}

// Service orchestrates invoice issuance: quote conversion, deposits, payment.
type Service struct {
	repo          Repository
	quotes        QuoteSource
	opportunities OpportunitySource
	company       CompanyResolver
	numbers       NumberSource
	renderer      InvoiceRenderer
	artifacts     ArtifactStore
	audit         *appshared.AuditLogger
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewService builds a Service instance.
func NewService(
	repo Repository,
	quoteSource QuoteSource,
	opportunitySource OpportunitySource,
	companyResolver CompanyResolver,
	numbers NumberSource,
	renderer InvoiceRenderer,
	artifacts ArtifactStore,
	audit *appshared.AuditLogger,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:          repo,
		quotes:        quoteSource,
		opportunities: opportunitySource,
		company:       companyResolver,
		numbers:       numbers,
		renderer:      renderer,
		artifacts:     artifacts,
		audit:         audit,
		metrics:       metrics,
		logger:        logger,
	}
}

// ConvertFromQuote issues the invoice for a quote. The ordering is the
// correctness property: conflict check first, invoice insert second, link
// write last. Each step commits on its own, so a crash after the insert
// leaves an invoice without a back-link; that window is logged and left for
// reconciliation, never resolved silently.
func (s *Service) ConvertFromQuote(ctx context.Context, quoteID uuid.UUID) (doc *shared.GeneratedDocument, err error) {
	defer func() { s.metrics.ObserveDocument("facture", outcome(err)) }()

	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("resolve quote", slog.Any("error", err))
		return nil, httpx.NotFound("quote not found")
	}

	if q.Converted() {
		return nil, httpx.Conflict("quote already converted")
	}

	profile := s.company.Resolve(ctx)

	opp, err := s.opportunities.GetWithParties(ctx, q.OpportunityID)
	if err != nil {
		s.logger.Error("resolve quote opportunity", slog.Any("error", err))
		return nil, httpx.NotFound("quote not found")
	}

	items, err := s.opportunities.ListLineItems(ctx, q.OpportunityID)
	if err != nil {
		s.logger.Error("list line items", slog.Any("error", err))
		return nil, httpx.Database("failed to load line items")
	}

	refs, err := s.repo.ListRefsByQuote(ctx, quoteID)
	if err != nil {
		s.logger.Error("list prior invoices", slog.Any("error", err))
		return nil, httpx.Database("failed to load prior invoices")
	}

	lines := make([]shared.Line, 0, len(items))
	for _, li := range items {
		lines = append(lines, shared.Line{Quantity: li.Quantity, UnitPrice: li.UnitPrice, DiscountPercent: li.DiscountPercent})
	}
	totals := shared.DocumentTotals(lines, profile.VATRate)

	// Paid deposits shift the conversion to a balance invoice for what remains.
	invType := InvoiceTypeStandard
	balance := shared.RemainingBalance(totals.HT, refs)
	if balance.Deposits > 0 {
		invType = InvoiceTypeBalance
		totals = amountTotals(balance.Remaining, totals.VATRate)
	}

	number, err := s.reserveNumber(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	inv := Invoice{
		ID:           uuid.New(),
		Number:       number,
		QuoteID:      q.ID,
		ClientID:     q.ClientID,
		ContactID:    q.ContactID,
		Type:         invType,
		Status:       InvoiceStatusDraft,
		IssueDate:    now,
		DueDate:      now.AddDate(0, 0, paymentWindowDays),
		TotalHT:      totals.HT,
		TotalVAT:     totals.VAT,
		TotalTTC:     totals.TTC,
		VATRate:      totals.VATRate,
		PaymentTerms: profile.PaymentTerms,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		if errors.Is(err, httpx.ErrDatabase) {
			return nil, err
		}
		s.logger.Error("create invoice", slog.Any("error", err))
		return nil, httpx.Database("failed to create invoice")
	}

	won, err := s.quotes.LinkInvoice(ctx, q.ID, inv.ID, now)
	if err != nil {
		// The invoice row exists without a back-link on the quote. Flag the
		// unreconciled window for operators; no silent cleanup.
		s.logger.Error("link invoice to quote failed, invoice unreconciled",
			slog.String("quote_id", q.ID.String()), slog.String("invoice_id", inv.ID.String()), slog.Any("error", err))
		return nil, httpx.Database("failed to link invoice")
	}
	if !won {
		s.logger.Warn("conversion race lost, invoice unreconciled",
			slog.String("quote_id", q.ID.String()), slog.String("invoice_id", inv.ID.String()))
		return nil, httpx.Conflict("quote already converted")
	}

	view := buildInvoiceDocument(inv, q.Number, profile, opp, items)
	if invType == InvoiceTypeBalance {
		view.Lines = append(view.Lines, report.DocumentLine{
			Description: "Acomptes déjà réglés",
			Quantity:    1,
			UnitPrice:   -balance.Deposits,
			AmountHT:    -balance.Deposits,
		})
	}

	pdf, err := s.renderer.RenderInvoice(ctx, view)
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", number, err)
	}

	filename := number + ".pdf"
	cached := s.storePDF(ctx, inv.ID, filename, pdf)

	s.recordAudit(ctx, "invoice_converted", inv.ID, map[string]any{
		"number": number, "quote_id": q.ID.String(), "type": string(invType), "total_ttc": totals.TTC,
	})

	return &shared.GeneratedDocument{
		ID:        inv.ID,
		Number:    number,
		Filename:  filename,
		PDF:       pdf,
		PDFCached: cached,
	}, nil
}

// CreateDeposit issues a deposit invoice for a percentage of an accepted quote.
func (s *Service) CreateDeposit(ctx context.Context, quoteID uuid.UUID, percentage float64) (doc *shared.GeneratedDocument, err error) {
	defer func() { s.metrics.ObserveDocument("facture", outcome(err)) }()

	if percentage <= 0 || percentage > 100 {
		return nil, httpx.Validation("pourcentage must be between 0 and 100")
	}

	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("resolve quote", slog.Any("error", err))
		return nil, httpx.NotFound("quote not found")
	}
	if q.Converted() {
		return nil, httpx.Conflict("quote already converted")
	}
	if q.Status != quotes.QuoteStatusAccepted {
		return nil, httpx.Conflict("deposits require an accepted quote")
	}

	profile := s.company.Resolve(ctx)

	opp, err := s.opportunities.GetWithParties(ctx, q.OpportunityID)
	if err != nil {
		s.logger.Error("resolve quote opportunity", slog.Any("error", err))
		return nil, httpx.NotFound("quote not found")
	}

	number, err := s.reserveNumber(ctx)
	if err != nil {
		return nil, err
	}

	totals := amountTotals(q.TotalHT*percentage/100, q.VATRate)

	now := time.Now()
	inv := Invoice{
		ID:           uuid.New(),
		Number:       number,
		QuoteID:      q.ID,
		ClientID:     q.ClientID,
		ContactID:    q.ContactID,
		Type:         InvoiceTypeDeposit,
		Status:       InvoiceStatusDraft,
		IssueDate:    now,
		DueDate:      now.AddDate(0, 0, paymentWindowDays),
		TotalHT:      totals.HT,
		TotalVAT:     totals.VAT,
		TotalTTC:     totals.TTC,
		VATRate:      totals.VATRate,
		PaymentTerms: profile.PaymentTerms,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		if errors.Is(err, httpx.ErrDatabase) {
			return nil, err
		}
		s.logger.Error("create deposit invoice", slog.Any("error", err))
		return nil, httpx.Database("failed to create invoice")
	}

	view := buildInvoiceDocument(inv, q.Number, profile, opp, nil)
	view.Lines = []report.DocumentLine{{
		Description: fmt.Sprintf("Acompte de %.0f%% sur le devis %s", percentage, q.Number),
		Quantity:    1,
		UnitPrice:   totals.HT,
		AmountHT:    totals.HT,
	}}

	pdf, err := s.renderer.RenderInvoice(ctx, view)
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", number, err)
	}

	filename := number + ".pdf"
	cached := s.storePDF(ctx, inv.ID, filename, pdf)

	s.recordAudit(ctx, "deposit_created", inv.ID, map[string]any{
		"number": number, "quote_id": q.ID.String(), "percentage": percentage,
	})

	return &shared.GeneratedDocument{
		ID:        inv.ID,
		Number:    number,
		Filename:  filename,
		PDF:       pdf,
		PDFCached: cached,
	}, nil
}

// Get returns the invoice aggregate.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// MarkSent moves a draft invoice to sent.
func (s *Service) MarkSent(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceStatusDraft {
		return nil, httpx.Conflict("only draft invoices can be sent")
	}
	if err := s.repo.MarkSent(ctx, id); err != nil {
		s.logger.Error("mark invoice sent", slog.Any("error", err))
		return nil, httpx.Database("failed to update invoice")
	}
	return s.repo.Get(ctx, id)
}

// MarkPaid settles the invoice. Reminder history is retained, not cleared.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoiceStatusPaid {
		return nil, httpx.Conflict("invoice already paid")
	}
	if err := s.repo.MarkPaid(ctx, id, time.Now()); err != nil {
		s.logger.Error("mark invoice paid", slog.Any("error", err))
		return nil, httpx.Database("failed to update invoice")
	}
	s.recordAudit(ctx, "invoice_paid", id, nil)
	return s.repo.Get(ctx, id)
}

// ListRefsByQuote exposes prior invoices for balance computations.
func (s *Service) ListRefsByQuote(ctx context.Context, quoteID uuid.UUID) ([]shared.InvoiceRef, error) {
	return s.repo.ListRefsByQuote(ctx, quoteID)
}

func (s *Service) reserveNumber(ctx context.Context) (string, error) {
	number, err := s.numbers.Next(ctx, numbering.DocTypeInvoice)
	if err != nil {
		s.logger.Error("reserve invoice number", slog.Any("error", err))
		return "", httpx.Database("failed to reserve invoice number")
	}
	if number == "" {
		return "", httpx.Database("invoice number reservation returned empty")
	}
	return number, nil
}

func (s *Service) storePDF(ctx context.Context, id uuid.UUID, filename string, pdf []byte) bool {
	path := fmt.Sprintf("factures/%s/%s", id, filename)
	url, err := s.artifacts.Upload(ctx, path, pdf, "application/pdf")
	if err != nil {
		s.logger.Warn("upload invoice pdf", slog.String("invoice_id", id.String()), slog.Any("error", err))
		return false
	}
	if err := s.repo.UpdatePDF(ctx, id, url, filename); err != nil {
		s.logger.Warn("update invoice pdf reference", slog.String("invoice_id", id.String()), slog.Any("error", err))
		return false
	}
	return true
}

func (s *Service) recordAudit(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, appshared.AuditLog{Action: action, Entity: "invoice", EntityID: id.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func amountTotals(ht, vatRate float64) shared.Totals {
	if vatRate <= 0 {
		vatRate = shared.DefaultVATRate
	}
	vat := ht * vatRate / 100
	return shared.Totals{HT: ht, VAT: vat, TTC: ht + vat, VATRate: vatRate}
}

func typeLabel(t InvoiceType) string {
	switch t {
	case InvoiceTypeDeposit:
		return "Facture d'acompte"
	case InvoiceTypeBalance:
		return "Facture de solde"
	default:
		return "Facture"
	}
}

func buildInvoiceDocument(inv Invoice, quoteNumber string, profile company.Profile, opp *opportunities.Opportunity, items []opportunities.LineItem) report.InvoiceDocument {
	doc := report.InvoiceDocument{
		Number:      inv.Number,
		TypeLabel:   typeLabel(inv.Type),
		SourceQuote: quoteNumber,
		IssueDate:   inv.IssueDate,
		DueDate:     inv.DueDate,
		Issuer: report.Issuer{
			LegalName:  profile.LegalName,
			SIRET:      profile.SIRET,
			VATNumber:  profile.VATNumber,
			Address:    profile.Address,
			City:       profile.City,
			PostalCode: profile.PostalCode,
			Email:      profile.Email,
			Phone:      profile.Phone,
			Website:    profile.Website,
			LogoURL:    profile.LogoURL,
		},
		Client: report.Party{
			CompanyName: opp.Client.CompanyName,
			Address:     opp.Client.Address,
			City:        opp.Client.City,
			PostalCode:  opp.Client.PostalCode,
			Email:       opp.Client.Email,
		},
		TotalHT:      inv.TotalHT,
		TotalVAT:     inv.TotalVAT,
		TotalTTC:     inv.TotalTTC,
		VATRate:      inv.VATRate,
		PaymentTerms: inv.PaymentTerms,
	}
	if opp.Contact != nil {
		doc.Client.ContactName = opp.Contact.FullName()
	}
	for _, li := range items {
		doc.Lines = append(doc.Lines, report.DocumentLine{
			Description:     li.Description,
			Quantity:        li.Quantity,
			UnitPrice:       li.UnitPrice,
			DiscountPercent: li.DiscountPercent,
			AmountHT:        shared.LineAmount(li.Quantity, li.UnitPrice, li.DiscountPercent),
		})
	}
	return doc
}
