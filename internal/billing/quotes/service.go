package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opale-crm/opale-crm/internal/billing/shared"
	"github.com/opale-crm/opale-crm/internal/crm/company"
	"github.com/opale-crm/opale-crm/internal/crm/opportunities"
	"github.com/opale-crm/opale-crm/internal/numbering"
	"github.com/opale-crm/opale-crm/internal/observability"
	"github.com/opale-crm/opale-crm/internal/platform/httpx"
	appshared "github.com/opale-crm/opale-crm/internal/shared"
	"github.com/opale-crm/opale-crm/report"
)

// OpportunitySource resolves the opportunity aggregate.
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

// QuoteRenderer produces PDF bytes for a quote view model.
type QuoteRenderer interface {
	RenderQuote(ctx context.Context, doc report.QuoteDocument) ([]byte, error)
}

// ArtifactStore uploads rendered documents and issues public URLs.
type ArtifactStore interface {
	Upload(ctx context.Context, path string, content []byte, contentType string) (string, error)
}

// InvoiceSource lists invoices already issued against a quote.
type InvoiceSource interface {
	ListRefsByQuote(ctx context.Context, quoteID uuid.UUID) ([]shared.InvoiceRef, error)
}

// Service orchestrates quote generation and lifecycle transitions.
type Service struct {
	repo          Repository
	opportunities OpportunitySource
	company       CompanyResolver
	numbers       NumberSource
	renderer      QuoteRenderer
	artifacts     ArtifactStore
	invoices      InvoiceSource
	audit         *appshared.AuditLogger
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewService builds a Service instance.
func NewService(
	repo Repository,
	opportunitySource OpportunitySource,
	companyResolver CompanyResolver,
	numbers NumberSource,
	renderer QuoteRenderer,
	artifacts ArtifactStore,
	invoices InvoiceSource,
	audit *appshared.AuditLogger,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:          repo,
		opportunities: opportunitySource,
		company:       companyResolver,
		numbers:       numbers,
		renderer:      renderer,
		artifacts:     artifacts,
		invoices:      invoices,
		audit:         audit,
		metrics:       metrics,
		logger:        logger,
	}
}

// Generate runs the full quote pipeline for an opportunity: resolve, compute,
// number, persist, render, store, finalize. Failures before the quote insert
// abort with nothing written; the reserved number may be burned, which leaves
// a permanent gap in the sequence.
func (s *Service) Generate(ctx context.Context, opportunityID uuid.UUID) (doc *shared.GeneratedDocument, err error) {
	defer func() { s.metrics.ObserveDocument("devis", outcome(err)) }()

	opp, err := s.opportunities.GetWithParties(ctx, opportunityID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("resolve opportunity", slog.Any("error", err))
		return nil, httpx.NotFound("opportunity not found")
	}

	profile := s.company.Resolve(ctx)

	items, err := s.opportunities.ListLineItems(ctx, opportunityID)
	if err != nil {
		s.logger.Error("list line items", slog.Any("error", err))
		return nil, httpx.Database("failed to load line items")
	}

	totals := shared.DocumentTotals(toCalcLines(items), profile.VATRate)

	number, err := s.numbers.Next(ctx, numbering.DocTypeQuote)
	if err != nil {
		s.logger.Error("reserve quote number", slog.Any("error", err))
		return nil, httpx.Database("failed to reserve quote number")
	}
	if number == "" {
		// Never default a number silently; an empty reservation is a fault.
		return nil, httpx.Database("quote number reservation returned empty")
	}

	now := time.Now()
	quote := Quote{
		ID:            uuid.New(),
		Number:        number,
		OpportunityID: opp.ID,
		ClientID:      opp.Client.ID,
		Status:        QuoteStatusDraft,
		IssueDate:     now,
		ValidityDate:  now.AddDate(0, 0, profile.ValidityDays),
		TotalHT:       totals.HT,
		TotalVAT:      totals.VAT,
		TotalTTC:      totals.TTC,
		VATRate:       totals.VATRate,
		PaymentTerms:  profile.PaymentTerms,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if opp.Contact != nil {
		quote.ContactID = &opp.Contact.ID
	}

	if err := s.repo.Create(ctx, quote); err != nil {
		if errors.Is(err, httpx.ErrDatabase) {
			return nil, err
		}
		s.logger.Error("create quote", slog.Any("error", err))
		return nil, httpx.Database("failed to create quote")
	}

	pdf, err := s.renderer.RenderQuote(ctx, buildQuoteDocument(quote, profile, opp, items))
	if err != nil {
		return nil, fmt.Errorf("render quote %s: %w", number, err)
	}

	filename := number + ".pdf"
	cached := s.storePDF(ctx, quote.ID, filename, pdf)

	s.recordAudit(ctx, "quote_generated", quote.ID, map[string]any{"number": number, "total_ttc": totals.TTC})

	return &shared.GeneratedDocument{
		ID:        quote.ID,
		Number:    number,
		Filename:  filename,
		PDF:       pdf,
		PDFCached: cached,
	}, nil
}

// storePDF uploads the artifact and writes the back-reference. Best effort:
// the quote is already committed, so failures only cost the cached copy.
func (s *Service) storePDF(ctx context.Context, id uuid.UUID, filename string, pdf []byte) bool {
	path := fmt.Sprintf("devis/%s/%s", id, filename)
	url, err := s.artifacts.Upload(ctx, path, pdf, "application/pdf")
	if err != nil {
		s.logger.Warn("upload quote pdf", slog.String("quote_id", id.String()), slog.Any("error", err))
		return false
	}
	if err := s.repo.UpdatePDF(ctx, id, url, filename); err != nil {
		s.logger.Warn("update quote pdf reference", slog.String("quote_id", id.String()), slog.Any("error", err))
		return false
	}
	return true
}

// Get returns the quote aggregate.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return s.repo.Get(ctx, id)
}

// MarkSent moves a draft quote to sent and stamps the sent date.
func (s *Service) MarkSent(ctx context.Context, id uuid.UUID) (*Quote, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status != QuoteStatusDraft {
		return nil, httpx.Conflict("only draft quotes can be sent")
	}
	if err := s.repo.MarkSent(ctx, id, time.Now()); err != nil {
		s.logger.Error("mark quote sent", slog.Any("error", err))
		return nil, httpx.Database("failed to update quote")
	}
	s.recordAudit(ctx, "quote_sent", id, nil)
	return s.repo.Get(ctx, id)
}

// Accept records a positive client response on a sent quote.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return s.respond(ctx, id, QuoteStatusAccepted)
}

// Decline records a negative client response on a sent quote.
func (s *Service) Decline(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return s.respond(ctx, id, QuoteStatusDeclined)
}

func (s *Service) respond(ctx context.Context, id uuid.UUID, status QuoteStatus) (*Quote, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status != QuoteStatusSent {
		return nil, httpx.Conflict("only sent quotes can receive a response")
	}
	if err := s.repo.SetResponse(ctx, id, status, time.Now()); err != nil {
		s.logger.Error("set quote response", slog.Any("error", err))
		return nil, httpx.Database("failed to update quote")
	}
	s.recordAudit(ctx, "quote_"+string(status), id, nil)
	return s.repo.Get(ctx, id)
}

// Expire marks a sent quote past its validity window.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (*Quote, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status != QuoteStatusSent {
		return nil, httpx.Conflict("only sent quotes can expire")
	}
	if err := s.repo.MarkExpired(ctx, id); err != nil {
		s.logger.Error("expire quote", slog.Any("error", err))
		return nil, httpx.Database("failed to update quote")
	}
	return s.repo.Get(ctx, id)
}

// RemainingBalance reports the quote total net of paid deposit invoices.
func (s *Service) RemainingBalance(ctx context.Context, id uuid.UUID) (*BalanceResponse, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	refs, err := s.invoices.ListRefsByQuote(ctx, id)
	if err != nil {
		s.logger.Error("list quote invoices", slog.Any("error", err))
		return nil, httpx.Database("failed to load invoices")
	}
	b := shared.RemainingBalance(q.TotalHT, refs)
	return &BalanceResponse{
		QuoteID:      q.ID.String(),
		TotalHT:      b.Total,
		PaidDeposits: b.Deposits,
		Remaining:    b.Remaining,
		Percentage:   b.Percentage,
	}, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, appshared.AuditLog{Action: action, Entity: "quote", EntityID: id.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func toCalcLines(items []opportunities.LineItem) []shared.Line {
	lines := make([]shared.Line, 0, len(items))
	for _, li := range items {
		lines = append(lines, shared.Line{
			Quantity:        li.Quantity,
			UnitPrice:       li.UnitPrice,
			DiscountPercent: li.DiscountPercent,
		})
	}
	return lines
}

func buildQuoteDocument(q Quote, profile company.Profile, opp *opportunities.Opportunity, items []opportunities.LineItem) report.QuoteDocument {
	doc := report.QuoteDocument{
		Number:       q.Number,
		IssueDate:    q.IssueDate,
		ValidityDate: q.ValidityDate,
		Issuer:       buildIssuer(profile),
		Client: report.Party{
			CompanyName: opp.Client.CompanyName,
			Address:     opp.Client.Address,
			City:        opp.Client.City,
			PostalCode:  opp.Client.PostalCode,
			Email:       opp.Client.Email,
		},
		TotalHT:      q.TotalHT,
		TotalVAT:     q.TotalVAT,
		TotalTTC:     q.TotalTTC,
		VATRate:      q.VATRate,
		PaymentTerms: q.PaymentTerms,
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

func buildIssuer(p company.Profile) report.Issuer {
	return report.Issuer{
		LegalName:  p.LegalName,
		SIRET:      p.SIRET,
		VATNumber:  p.VATNumber,
		Address:    p.Address,
		City:       p.City,
		PostalCode: p.PostalCode,
		Email:      p.Email,
		Phone:      p.Phone,
		Website:    p.Website,
		LogoURL:    p.LogoURL,
	}
}
