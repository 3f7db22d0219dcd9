package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/opale-crm/opale-crm/internal/observability"
)

//go:embed templates/*.html
var templateFS embed.FS

// HTMLConverter abstracts the rendering engine; implemented by Client.
type HTMLConverter interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer turns document view models into PDF bytes.
type Renderer struct {
	converter HTMLConverter
	templates *template.Template
	metrics   *observability.Metrics
}

// French money and date formatting, matching the documents' locale.
var frPrinter = message.NewPrinter(language.French)

func formatMoney(v float64) string {
	return frPrinter.Sprintf("%.2f €", v)
}

func formatPercent(v float64) string {
	return frPrinter.Sprintf("%.2f", v)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

// NewRenderer parses the embedded templates.
func NewRenderer(converter HTMLConverter, metrics *observability.Metrics) (*Renderer, error) {
	tmpl, err := template.New("documents").Funcs(template.FuncMap{
		"money":   formatMoney,
		"percent": formatPercent,
		"date":    formatDate,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("report: parse templates: %w", err)
	}
	return &Renderer{converter: converter, templates: tmpl, metrics: metrics}, nil
}

// RenderQuote produces the PDF for a quote.
func (r *Renderer) RenderQuote(ctx context.Context, doc QuoteDocument) ([]byte, error) {
	return r.render(ctx, "quote.html", doc)
}

// RenderInvoice produces the PDF for an invoice.
func (r *Renderer) RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	return r.render(ctx, "invoice.html", doc)
}

func (r *Renderer) render(ctx context.Context, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("report: execute %s: %w", name, err)
	}
	// The converter call includes the pool wait, which is what the
	// duration histogram is meant to surface.
	start := time.Now()
	pdf, err := r.converter.RenderHTML(ctx, buf.String())
	r.metrics.ObserveRender(time.Since(start))
	return pdf, err
}
