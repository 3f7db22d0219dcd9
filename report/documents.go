package report

import "time"

// Issuer identifies the company issuing a document.
type Issuer struct {
	LegalName  string
	SIRET      string
	VATNumber  string
	Address    string
	City       string
	PostalCode string
	Email      string
	Phone      string
	Website    string
	LogoURL    string
}

// Party identifies the billed client on a document.
type Party struct {
	CompanyName string
	ContactName string
	Address     string
	City        string
	PostalCode  string
	Email       string
}

// DocumentLine is one priced row on a rendered document.
type DocumentLine struct {
	Description     string
	Quantity        float64
	UnitPrice       float64
	DiscountPercent float64
	AmountHT        float64
}

// QuoteDocument is the view model behind the quote template.
type QuoteDocument struct {
	Number       string
	IssueDate    time.Time
	ValidityDate time.Time
	Issuer       Issuer
	Client       Party
	Lines        []DocumentLine
	TotalHT      float64
	TotalVAT     float64
	TotalTTC     float64
	VATRate      float64
	PaymentTerms string
	Notes        string
}

// InvoiceDocument is the view model behind the invoice template.
type InvoiceDocument struct {
	Number       string
	TypeLabel    string
	SourceQuote  string
	IssueDate    time.Time
	DueDate      time.Time
	Issuer       Issuer
	Client       Party
	Lines        []DocumentLine
	TotalHT      float64
	TotalVAT     float64
	TotalTTC     float64
	VATRate      float64
	PaymentTerms string
}
