package reminders

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

	"github.com/opale-crm/opale-crm/internal/billing/invoices"
	"github.com/opale-crm/opale-crm/internal/crm/clients"
	"github.com/opale-crm/opale-crm/internal/mailer"
	"github.com/opale-crm/opale-crm/internal/observability"
	"github.com/opale-crm/opale-crm/internal/platform/httpx"
)

type memInvoiceStore struct {
	invoices  map[uuid.UUID]invoices.Invoice
	recordErr error
}

func newMemInvoiceStore(invs ...invoices.Invoice) *memInvoiceStore {
	m := &memInvoiceStore{invoices: make(map[uuid.UUID]invoices.Invoice)}
	for _, inv := range invs {
		m.invoices[inv.ID] = inv
	}
	return m
}

func (m *memInvoiceStore) Get(_ context.Context, id uuid.UUID) (*invoices.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, httpx.NotFound("invoice not found")
	}
	return &inv, nil
}

func (m *memInvoiceStore) RecordReminderSent(_ context.Context, id uuid.UUID, level int, at time.Time) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	inv := m.invoices[id]
	inv.ReminderLevelSent = level
	if inv.ReminderLevel < level {
		inv.ReminderLevel = level
	}
	inv.LastReminderDate = &at
	m.invoices[id] = inv
	return nil
}

type stubClients struct {
	client *clients.Client
	err    error
}

func (s stubClients) Get(_ context.Context, _ uuid.UUID) (*clients.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.client, nil
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func openInvoice(levelSent int) invoices.Invoice {
	return invoices.Invoice{
		ID:                uuid.New(),
		Number:            "FAC-2026-012",
		ClientID:          uuid.New(),
		Status:            invoices.InvoiceStatusSent,
		TotalTTC:          7080,
		DueDate:           time.Now().AddDate(0, 0, -15),
		ReminderLevel:     levelSent,
		ReminderLevelSent: levelSent,
	}
}

func testClient() *clients.Client {
	return &clients.Client{ID: uuid.New(), CompanyName: "Acme SARL", Email: "compta@acme.fr"}
}

func newTestService(store *memInvoiceStore, recipients RecipientSource, mail *fakeMailer) *Service {
	return NewService(store, recipients, mail, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatchAdvancesOneLevel(t *testing.T) {
	inv := openInvoice(0)
	store := newMemInvoiceStore(inv)
	mail := &fakeMailer{}
	svc := newTestService(store, stubClients{client: testClient()}, mail)

	res, err := svc.Dispatch(context.Background(), inv.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 1, res.NiveauRelance)
	require.Equal(t, inv.ID.String(), res.FactureID)
	require.Contains(t, res.Message, "FAC-2026-012")

	stored := store.invoices[inv.ID]
	require.Equal(t, 1, stored.ReminderLevelSent)
	require.Equal(t, 1, stored.ReminderLevel)
	require.NotNil(t, stored.LastReminderDate)

	require.Len(t, mail.sent, 1)
	require.Equal(t, "compta@acme.fr", mail.sent[0].To)
	require.Contains(t, mail.sent[0].Subject, "FAC-2026-012")
	require.Contains(t, mail.sent[0].Body, "FAC-2026-012")
}

func TestDispatchEscalatesWording(t *testing.T) {
	inv := openInvoice(2)
	store := newMemInvoiceStore(inv)
	mail := &fakeMailer{}
	svc := newTestService(store, stubClients{client: testClient()}, mail)

	res, err := svc.Dispatch(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, 3, res.NiveauRelance)
	require.Contains(t, mail.sent[0].Subject, "Dernier rappel")
	require.Contains(t, mail.sent[0].Body, "recouvrement")
}

func TestDispatchDeliveryFailureLeavesCountersUnchanged(t *testing.T) {
	inv := openInvoice(1)
	store := newMemInvoiceStore(inv)
	mail := &fakeMailer{err: errors.New("relay refused")}
	svc := newTestService(store, stubClients{client: testClient()}, mail)

	_, err := svc.Dispatch(context.Background(), inv.ID)
	require.ErrorIs(t, err, httpx.ErrDatabase)

	stored := store.invoices[inv.ID]
	require.Equal(t, 1, stored.ReminderLevelSent)
	require.Equal(t, 1, stored.ReminderLevel)
	require.Nil(t, stored.LastReminderDate)
}

func TestDispatchInvoiceMissing(t *testing.T) {
	svc := newTestService(newMemInvoiceStore(), stubClients{client: testClient()}, &fakeMailer{})

	_, err := svc.Dispatch(context.Background(), uuid.New())
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestDispatchRejectsSettledOrDraftInvoices(t *testing.T) {
	paid := openInvoice(0)
	paid.Status = invoices.InvoiceStatusPaid
	draft := openInvoice(0)
	draft.Status = invoices.InvoiceStatusDraft
	store := newMemInvoiceStore(paid, draft)
	mail := &fakeMailer{}
	svc := newTestService(store, stubClients{client: testClient()}, mail)

	_, err := svc.Dispatch(context.Background(), paid.ID)
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Dispatch(context.Background(), draft.ID)
	require.ErrorIs(t, err, httpx.ErrValidation)

	require.Empty(t, mail.sent)
}

func TestDispatchRecordsOutcomeMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	inv := openInvoice(0)
	store := newMemInvoiceStore(inv)
	svc := NewService(store, stubClients{client: testClient()}, &fakeMailer{}, nil, metrics,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.Dispatch(context.Background(), inv.ID)
	require.NoError(t, err)

	_, err = svc.Dispatch(context.Background(), uuid.New())
	require.Error(t, err)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	require.Contains(t, body, `opale_reminders_dispatched_total{outcome="success"} 1`)
	require.Contains(t, body, `opale_reminders_dispatched_total{outcome="error"} 1`)
}

func TestDispatchLadderExhausted(t *testing.T) {
	inv := openInvoice(invoices.MaxReminderLevel)
	store := newMemInvoiceStore(inv)
	mail := &fakeMailer{}
	svc := newTestService(store, stubClients{client: testClient()}, mail)

	_, err := svc.Dispatch(context.Background(), inv.ID)
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Empty(t, mail.sent)
}
