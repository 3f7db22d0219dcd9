// Package shared holds the pure financial calculator used by the document
// pipeline. No function here performs I/O.
package shared

import (
	"sort"
	"time"
)

// DefaultVATRate applies when neither the company profile nor the caller
// provides a rate.
const DefaultVATRate = 20.0

// Line is the minimal priced-row input to totals computation.
type Line struct {
	Quantity        float64
	UnitPrice       float64
	DiscountPercent float64
}

// Totals groups the three document amounts.
type Totals struct {
	HT      float64
	VAT     float64
	TTC     float64
	VATRate float64
}

// InvoiceRef is the slice of an invoice the balance computation needs.
type InvoiceRef struct {
	Number    string
	Type      string
	Status    string
	TotalHT   float64
	IssueDate time.Time
}

// Balance describes what remains to invoice against a document total.
type Balance struct {
	Total      float64
	Deposits   float64
	Remaining  float64
	Percentage float64
}

// LineAmount computes the pre-tax amount of one line.
func LineAmount(quantity, unitPrice, discountPercent float64) float64 {
	return quantity * unitPrice * (1 - discountPercent/100)
}

// DocumentTotals sums the lines and applies VAT. A zero or negative rate
// falls back to DefaultVATRate. An empty line set yields all-zero totals.
func DocumentTotals(lines []Line, vatRate float64) Totals {
	if vatRate <= 0 {
		vatRate = DefaultVATRate
	}
	var ht float64
	for _, l := range lines {
		ht += LineAmount(l.Quantity, l.UnitPrice, l.DiscountPercent)
	}
	vat := ht * vatRate / 100
	return Totals{HT: ht, VAT: vat, TTC: ht + vat, VATRate: vatRate}
}

// PaidDeposits filters paid deposit invoices, sorted ascending by issue date.
func PaidDeposits(prior []InvoiceRef) []InvoiceRef {
	var deposits []InvoiceRef
	for _, inv := range prior {
		if inv.Type == "deposit" && inv.Status == "paid" {
			deposits = append(deposits, inv)
		}
	}
	sort.SliceStable(deposits, func(i, j int) bool {
		return deposits[i].IssueDate.Before(deposits[j].IssueDate)
	})
	return deposits
}

// RemainingBalance subtracts paid deposits from the document total. The
// percentage is 100 when the total is zero.
func RemainingBalance(total float64, prior []InvoiceRef) Balance {
	var deposits float64
	for _, inv := range PaidDeposits(prior) {
		deposits += inv.TotalHT
	}
	remaining := total - deposits
	pct := 100.0
	if total != 0 {
		pct = remaining / total * 100
	}
	return Balance{Total: total, Deposits: deposits, Remaining: remaining, Percentage: pct}
}
