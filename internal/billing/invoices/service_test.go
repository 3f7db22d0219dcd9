package invoices

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opale-crm/opale-crm/internal/billing/quotes"
	"github.com/opale-crm/opale-crm/internal/billing/shared"
	"github.com/opale-crm/opale-crm/internal/crm/clients"
	"github.com/opale-crm/opale-crm/internal/crm/company"
	"github.com/opale-crm/opale-crm/internal/crm/opportunities"
	"github.com/opale-crm/opale-crm/internal/numbering"
	"github.com/opale-crm/opale-crm/internal/observability"
	"github.com/opale-crm/opale-crm/internal/platform/httpx"
	"github.com/opale-crm/opale-crm/report"
)

type fakeQuoteSource struct {
	quotes   map[uuid.UUID]*quotes.Quote
	getErr   error
	linkErr  error
	linkLost bool
}

func newFakeQuoteSource(qs ...*quotes.Quote) *fakeQuoteSource {
	f := &fakeQuoteSource{quotes: make(map[uuid.UUID]*quotes.Quote)}
	for _, q := range qs {
		f.quotes[q.ID] = q
	}
	return f
}

func (f *fakeQuoteSource) Get(_ context.Context, id uuid.UUID) (*quotes.Quote, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	q, ok := f.quotes[id]
	if !ok {
		return nil, httpx.NotFound("quote not found")
	}
	cp := *q
	return &cp, nil
}

func (f *fakeQuoteSource) LinkInvoice(_ context.Context, quoteID, invoiceID uuid.UUID, at time.Time) (bool, error) {
	if f.linkErr != nil {
		return false, f.linkErr
	}
	if f.linkLost {
		return false, nil
	}
	q, ok := f.quotes[quoteID]
	if !ok {
		return false, httpx.NotFound("quote not found")
	}
	if q.LinkedInvoiceID != nil {
		return false, nil
	}
	q.LinkedInvoiceID = &invoiceID
	q.ConvertedAt = &at
	return true, nil
}

type fakeOpportunitySource struct {
	opp     *opportunities.Opportunity
	items   []opportunities.LineItem
	getErr  error
	listErr error
}

func (f *fakeOpportunitySource) GetWithParties(_ context.Context, _ uuid.UUID) (*opportunities.Opportunity, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.opp, nil
}

func (f *fakeOpportunitySource) ListLineItems(_ context.Context, _ uuid.UUID) ([]opportunities.LineItem, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

type stubCompany struct{ profile company.Profile }

func (s stubCompany) Resolve(_ context.Context) company.Profile { return s.profile }

type fakeNumbers struct {
	seq   int64
	err   error
	calls int
}

func (f *fakeNumbers) Next(_ context.Context, doc numbering.DocType) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.seq++
	return numbering.Format(doc, 2026, f.seq), nil
}

type fakeRenderer struct {
	pdf  []byte
	err  error
	last report.InvoiceDocument
}

func (f *fakeRenderer) RenderInvoice(_ context.Context, doc report.InvoiceDocument) ([]byte, error) {
	f.last = doc
	if f.err != nil {
		return nil, f.err
	}
	return f.pdf, nil
}

type fakeStore struct {
	err   error
	paths []string
}

func (f *fakeStore) Upload(_ context.Context, path string, _ []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, path)
	return "https://storage.local/" + path, nil
}

type memRepo struct {
	invoices  map[uuid.UUID]Invoice
	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{invoices: make(map[uuid.UUID]Invoice)}
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, httpx.NotFound("invoice not found")
	}
	return &inv, nil
}

func (m *memRepo) Create(_ context.Context, inv Invoice) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.invoices[inv.ID] = inv
	return nil
}

func (m *memRepo) UpdatePDF(_ context.Context, id uuid.UUID, url, filename string) error {
	inv := m.invoices[id]
	inv.PDFURL = &url
	inv.PDFFilename = &filename
	m.invoices[id] = inv
	return nil
}

func (m *memRepo) MarkSent(_ context.Context, id uuid.UUID) error {
	inv := m.invoices[id]
	inv.Status = InvoiceStatusSent
	m.invoices[id] = inv
	return nil
}

func (m *memRepo) MarkPaid(_ context.Context, id uuid.UUID, at time.Time) error {
	inv := m.invoices[id]
	inv.Status = InvoiceStatusPaid
	inv.PaymentDate = &at
	m.invoices[id] = inv
	return nil
}

func (m *memRepo) ListRefsByQuote(_ context.Context, quoteID uuid.UUID) ([]shared.InvoiceRef, error) {
	var refs []shared.InvoiceRef
	for _, inv := range m.invoices {
		if inv.QuoteID == quoteID {
			refs = append(refs, shared.InvoiceRef{
				Number: inv.Number, Type: string(inv.Type), Status: string(inv.Status),
				TotalHT: inv.TotalHT, IssueDate: inv.IssueDate,
			})
		}
	}
	return refs, nil
}

func (m *memRepo) RecordReminderSent(_ context.Context, id uuid.UUID, level int, at time.Time) error {
	inv := m.invoices[id]
	inv.ReminderLevelSent = level
	if inv.ReminderLevel < level {
		inv.ReminderLevel = level
	}
	inv.LastReminderDate = &at
	m.invoices[id] = inv
	return nil
}

func (m *memRepo) RaiseReminderIntent(_ context.Context, id uuid.UUID, level int) error {
	inv := m.invoices[id]
	if inv.ReminderLevel < level {
		inv.ReminderLevel = level
	}
	m.invoices[id] = inv
	return nil
}

func (m *memRepo) ListOpenOverdue(_ context.Context, asOf time.Time) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.Status == InvoiceStatusSent && inv.DueDate.Before(asOf) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func acceptedQuote() *quotes.Quote {
	return &quotes.Quote{
		ID:            uuid.New(),
		Number:        "DEV-2026-001",
		OpportunityID: uuid.New(),
		ClientID:      uuid.New(),
		Status:        quotes.QuoteStatusAccepted,
		TotalHT:       5900,
		TotalVAT:      1180,
		TotalTTC:      7080,
		VATRate:       20,
	}
}

func testOpportunity() *opportunities.Opportunity {
	return &opportunities.Opportunity{
		ID:    uuid.New(),
		Title: "Refonte site web",
		Client: clients.Client{
			ID:          uuid.New(),
			CompanyName: "Acme SARL",
			Email:       "contact@acme.fr",
		},
	}
}

func testLineItems() []opportunities.LineItem {
	return []opportunities.LineItem{
		{Description: "Conception", Quantity: 5, UnitPrice: 800, Position: 1},
		{Description: "Développement", Quantity: 10, UnitPrice: 200, DiscountPercent: 5, Position: 2},
	}
}

type serviceDeps struct {
	repo     *memRepo
	quotes   *fakeQuoteSource
	opps     *fakeOpportunitySource
	numbers  *fakeNumbers
	renderer *fakeRenderer
	store    *fakeStore
}

func newTestService(t *testing.T, d serviceDeps) *Service {
	t.Helper()
	if d.repo == nil {
		d.repo = newMemRepo()
	}
	if d.quotes == nil {
		d.quotes = newFakeQuoteSource()
	}
	if d.opps == nil {
		d.opps = &fakeOpportunitySource{opp: testOpportunity(), items: testLineItems()}
	}
	if d.numbers == nil {
		d.numbers = &fakeNumbers{}
	}
	if d.renderer == nil {
		d.renderer = &fakeRenderer{pdf: []byte("%PDF")}
	}
	if d.store == nil {
		d.store = &fakeStore{}
	}
	return NewService(
		d.repo,
		d.quotes,
		d.opps,
		stubCompany{profile: company.Defaults},
		d.numbers,
		d.renderer,
		d.store,
		nil,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestConvertFromQuote(t *testing.T) {
	q := acceptedQuote()
	repo := newMemRepo()
	qs := newFakeQuoteSource(q)
	svc := newTestService(t, serviceDeps{repo: repo, quotes: qs})

	doc, err := svc.ConvertFromQuote(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, "FAC-2026-001", doc.Number)
	require.Equal(t, "FAC-2026-001.pdf", doc.Filename)
	require.True(t, doc.PDFCached)

	inv, err := repo.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceTypeStandard, inv.Type)
	require.Equal(t, InvoiceStatusDraft, inv.Status)
	require.Equal(t, q.ID, inv.QuoteID)
	require.InDelta(t, 5900, inv.TotalHT, 0.001)
	require.InDelta(t, 7080, inv.TotalTTC, 0.001)

	// The source quote carries the back-link.
	require.NotNil(t, qs.quotes[q.ID].LinkedInvoiceID)
	require.Equal(t, doc.ID, *qs.quotes[q.ID].LinkedInvoiceID)
	require.NotNil(t, qs.quotes[q.ID].ConvertedAt)
}

func TestConvertRecordsDocumentMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	q := acceptedQuote()
	svc := NewService(
		newMemRepo(),
		newFakeQuoteSource(q),
		&fakeOpportunitySource{opp: testOpportunity(), items: testLineItems()},
		stubCompany{profile: company.Defaults},
		&fakeNumbers{},
		&fakeRenderer{pdf: []byte("%PDF")},
		&fakeStore{},
		nil,
		metrics,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	_, err := svc.ConvertFromQuote(context.Background(), q.ID)
	require.NoError(t, err)

	// The second conversion conflicts and counts as an error outcome.
	_, err = svc.ConvertFromQuote(context.Background(), q.ID)
	require.Error(t, err)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	require.Contains(t, body, `opale_documents_generated_total{kind="facture",outcome="success"} 1`)
	require.Contains(t, body, `opale_documents_generated_total{kind="facture",outcome="error"} 1`)
}

func TestConvertAlreadyConverted(t *testing.T) {
	q := acceptedQuote()
	linked := uuid.New()
	q.LinkedInvoiceID = &linked
	numbers := &fakeNumbers{}
	svc := newTestService(t, serviceDeps{quotes: newFakeQuoteSource(q), numbers: numbers})

	_, err := svc.ConvertFromQuote(context.Background(), q.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
	// The conflict check fires before any reservation or write.
	require.Zero(t, numbers.calls)
}

func TestConvertTwice(t *testing.T) {
	q := acceptedQuote()
	svc := newTestService(t, serviceDeps{quotes: newFakeQuoteSource(q)})

	_, err := svc.ConvertFromQuote(context.Background(), q.ID)
	require.NoError(t, err)

	_, err = svc.ConvertFromQuote(context.Background(), q.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestConvertQuoteMissing(t *testing.T) {
	svc := newTestService(t, serviceDeps{})

	_, err := svc.ConvertFromQuote(context.Background(), uuid.New())
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestConvertRaceLostLeavesInvoiceUnreconciled(t *testing.T) {
	q := acceptedQuote()
	// A competing conversion wins between our conflict check and the link
	// write: the conditional update reports zero rows.
	qs := newFakeQuoteSource(q)
	qs.linkLost = true
	repo := newMemRepo()
	svc := newTestService(t, serviceDeps{repo: repo, quotes: qs})

	_, err := svc.ConvertFromQuote(context.Background(), q.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
	// The invoice row was created before the link attempt and stays behind.
	require.Len(t, repo.invoices, 1)
}

func TestConvertWithPaidDepositIssuesBalanceInvoice(t *testing.T) {
	q := acceptedQuote()
	repo := newMemRepo()
	deposit := Invoice{
		ID: uuid.New(), Number: "FAC-2026-000", QuoteID: q.ID,
		Type: InvoiceTypeDeposit, Status: InvoiceStatusPaid,
		TotalHT: 1770, IssueDate: time.Now().AddDate(0, 0, -10),
	}
	repo.invoices[deposit.ID] = deposit
	renderer := &fakeRenderer{pdf: []byte("%PDF")}
	svc := newTestService(t, serviceDeps{repo: repo, quotes: newFakeQuoteSource(q), renderer: renderer})

	doc, err := svc.ConvertFromQuote(context.Background(), q.ID)
	require.NoError(t, err)

	inv, err := repo.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceTypeBalance, inv.Type)
	// 5900 recomputed minus 1770 paid deposit.
	require.InDelta(t, 4130, inv.TotalHT, 0.001)
	require.InDelta(t, 4956, inv.TotalTTC, 0.001)

	// The rendered document shows the deduction row.
	last := renderer.last.Lines[len(renderer.last.Lines)-1]
	require.Equal(t, "Acomptes déjà réglés", last.Description)
	require.InDelta(t, -1770, last.AmountHT, 0.001)
}

func TestConvertNumberFailure(t *testing.T) {
	q := acceptedQuote()
	repo := newMemRepo()
	svc := newTestService(t, serviceDeps{repo: repo, quotes: newFakeQuoteSource(q), numbers: &fakeNumbers{err: errors.New("sequence down")}})

	_, err := svc.ConvertFromQuote(context.Background(), q.ID)
	require.ErrorIs(t, err, httpx.ErrDatabase)
	require.Empty(t, repo.invoices)
}

func TestConvertUploadFailureStillSucceeds(t *testing.T) {
	q := acceptedQuote()
	svc := newTestService(t, serviceDeps{quotes: newFakeQuoteSource(q), store: &fakeStore{err: errors.New("bucket gone")}})

	doc, err := svc.ConvertFromQuote(context.Background(), q.ID)
	require.NoError(t, err)
	require.False(t, doc.PDFCached)
}

func TestCreateDeposit(t *testing.T) {
	q := acceptedQuote()
	repo := newMemRepo()
	renderer := &fakeRenderer{pdf: []byte("%PDF")}
	svc := newTestService(t, serviceDeps{repo: repo, quotes: newFakeQuoteSource(q), renderer: renderer})

	doc, err := svc.CreateDeposit(context.Background(), q.ID, 30)
	require.NoError(t, err)

	inv, err := repo.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceTypeDeposit, inv.Type)
	require.InDelta(t, 1770, inv.TotalHT, 0.001)
	require.InDelta(t, 2124, inv.TotalTTC, 0.001)

	require.Len(t, renderer.last.Lines, 1)
	require.Contains(t, renderer.last.Lines[0].Description, "30%")
	require.Contains(t, renderer.last.Lines[0].Description, "DEV-2026-001")
}

func TestCreateDepositRequiresAcceptedQuote(t *testing.T) {
	q := acceptedQuote()
	q.Status = quotes.QuoteStatusSent
	svc := newTestService(t, serviceDeps{quotes: newFakeQuoteSource(q)})

	_, err := svc.CreateDeposit(context.Background(), q.ID, 30)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestCreateDepositOnConvertedQuote(t *testing.T) {
	q := acceptedQuote()
	linked := uuid.New()
	q.LinkedInvoiceID = &linked
	svc := newTestService(t, serviceDeps{quotes: newFakeQuoteSource(q)})

	_, err := svc.CreateDeposit(context.Background(), q.ID, 30)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestCreateDepositPercentageBounds(t *testing.T) {
	svc := newTestService(t, serviceDeps{})
	for _, pct := range []float64{0, -5, 101} {
		_, err := svc.CreateDeposit(context.Background(), uuid.New(), pct)
		require.ErrorIs(t, err, httpx.ErrValidation)
	}
}

func TestMarkPaidRetainsReminderHistory(t *testing.T) {
	repo := newMemRepo()
	id := uuid.New()
	lastReminder := time.Now().AddDate(0, 0, -3)
	repo.invoices[id] = Invoice{
		ID: id, Status: InvoiceStatusSent,
		ReminderLevel: 2, ReminderLevelSent: 2, LastReminderDate: &lastReminder,
	}
	svc := newTestService(t, serviceDeps{repo: repo})

	inv, err := svc.MarkPaid(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusPaid, inv.Status)
	require.NotNil(t, inv.PaymentDate)
	require.Equal(t, 2, inv.ReminderLevel)
	require.Equal(t, 2, inv.ReminderLevelSent)
	require.NotNil(t, inv.LastReminderDate)

	_, err = svc.MarkPaid(context.Background(), id)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestInvoiceMarkSent(t *testing.T) {
	repo := newMemRepo()
	id := uuid.New()
	repo.invoices[id] = Invoice{ID: id, Status: InvoiceStatusDraft}
	svc := newTestService(t, serviceDeps{repo: repo})

	inv, err := svc.MarkSent(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusSent, inv.Status)

	_, err = svc.MarkSent(context.Background(), id)
	require.ErrorIs(t, err, httpx.ErrConflict)
}
