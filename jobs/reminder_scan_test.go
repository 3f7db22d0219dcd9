package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opale-crm/opale-crm/internal/billing/invoices"
	"github.com/opale-crm/opale-crm/internal/billing/shared"
	"github.com/opale-crm/opale-crm/internal/platform/httpx"
)

type fakeInvoiceRepo struct {
	open   []invoices.Invoice
	raised map[uuid.UUID]int
}

func newFakeInvoiceRepo(open ...invoices.Invoice) *fakeInvoiceRepo {
	return &fakeInvoiceRepo{open: open, raised: make(map[uuid.UUID]int)}
}

func (f *fakeInvoiceRepo) Get(_ context.Context, id uuid.UUID) (*invoices.Invoice, error) {
	for i := range f.open {
		if f.open[i].ID == id {
			return &f.open[i], nil
		}
	}
	return nil, httpx.NotFound("invoice not found")
}

func (f *fakeInvoiceRepo) Create(context.Context, invoices.Invoice) error { return nil }

func (f *fakeInvoiceRepo) UpdatePDF(context.Context, uuid.UUID, string, string) error { return nil }

func (f *fakeInvoiceRepo) MarkSent(context.Context, uuid.UUID) error { return nil }

func (f *fakeInvoiceRepo) MarkPaid(context.Context, uuid.UUID, time.Time) error { return nil }

func (f *fakeInvoiceRepo) ListRefsByQuote(context.Context, uuid.UUID) ([]shared.InvoiceRef, error) {
	return nil, nil
}

func (f *fakeInvoiceRepo) RecordReminderSent(context.Context, uuid.UUID, int, time.Time) error {
	return nil
}

func (f *fakeInvoiceRepo) RaiseReminderIntent(_ context.Context, id uuid.UUID, level int) error {
	f.raised[id] = level
	return nil
}

func (f *fakeInvoiceRepo) ListOpenOverdue(_ context.Context, asOf time.Time) ([]invoices.Invoice, error) {
	var out []invoices.Invoice
	for _, inv := range f.open {
		if inv.Status == invoices.InvoiceStatusSent && inv.DueDate.Before(asOf) {
			out = append(out, inv)
		}
	}
	return out, nil
}

type fakeEnqueuer struct {
	payloads []ReminderDispatchPayload
}

func (f *fakeEnqueuer) EnqueueReminderDispatch(_ context.Context, p ReminderDispatchPayload) error {
	f.payloads = append(f.payloads, p)
	return nil
}

func TestTargetLevel(t *testing.T) {
	now := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		daysOverdue int
		want        int
	}{
		{0, 0},
		{3, 0},
		{7, 1},
		{15, 1},
		{21, 2},
		{30, 2},
		{45, 3},
		{400, 3},
	}
	for _, tc := range cases {
		got := targetLevel(now, now.AddDate(0, 0, -tc.daysOverdue))
		require.Equal(t, tc.want, got, "days overdue %d", tc.daysOverdue)
	}
}

func TestReminderScanRaisesAndEnqueues(t *testing.T) {
	now := time.Now()
	fresh := invoices.Invoice{
		ID: uuid.New(), Status: invoices.InvoiceStatusSent,
		DueDate: now.AddDate(0, 0, -2),
	}
	overdue := invoices.Invoice{
		ID: uuid.New(), Status: invoices.InvoiceStatusSent,
		DueDate: now.AddDate(0, 0, -25),
	}
	caughtUp := invoices.Invoice{
		ID: uuid.New(), Status: invoices.InvoiceStatusSent,
		DueDate: now.AddDate(0, 0, -10), ReminderLevel: 1, ReminderLevelSent: 1,
	}
	paid := invoices.Invoice{
		ID: uuid.New(), Status: invoices.InvoiceStatusPaid,
		DueDate: now.AddDate(0, 0, -60),
	}

	repo := newFakeInvoiceRepo(fresh, overdue, caughtUp, paid)
	enq := &fakeEnqueuer{}
	job := NewReminderScanJob(repo, enq, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, job.Handle(context.Background(), NewReminderScanTask()))

	// Only the 25-days-overdue invoice gets new intent (level 2) and a task.
	require.Equal(t, map[uuid.UUID]int{overdue.ID: 2}, repo.raised)
	require.Len(t, enq.payloads, 1)
	require.Equal(t, overdue.ID, enq.payloads[0].InvoiceID)
}

func TestReminderScanEnqueuesWhenIntentAlreadyAhead(t *testing.T) {
	now := time.Now()
	// Intent already raised on a previous pass but never delivered.
	pending := invoices.Invoice{
		ID: uuid.New(), Status: invoices.InvoiceStatusSent,
		DueDate: now.AddDate(0, 0, -10), ReminderLevel: 1, ReminderLevelSent: 0,
	}
	repo := newFakeInvoiceRepo(pending)
	enq := &fakeEnqueuer{}
	job := NewReminderScanJob(repo, enq, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, job.Handle(context.Background(), NewReminderScanTask()))

	require.Empty(t, repo.raised)
	require.Len(t, enq.payloads, 1)
}
