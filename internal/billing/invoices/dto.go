package invoices

// ConvertQuoteRequest triggers conversion of an accepted quote.
type ConvertQuoteRequest struct {
	DevisID string `json:"devisId" validate:"required,uuid"`
}

// CreateDepositRequest issues a deposit invoice for a percentage of a quote.
type CreateDepositRequest struct {
	Pourcentage float64 `json:"pourcentage" validate:"required,gt=0,lte=100"`
}
