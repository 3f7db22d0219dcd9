package quotes

// GenerateQuoteRequest triggers quote generation for an opportunity.
type GenerateQuoteRequest struct {
	OpportuniteID string `json:"opportuniteId" validate:"required,uuid"`
}

// BalanceResponse reports what remains to invoice against a quote.
type BalanceResponse struct {
	QuoteID      string  `json:"quote_id"`
	TotalHT      float64 `json:"total_ht"`
	PaidDeposits float64 `json:"paid_deposits"`
	Remaining    float64 `json:"remaining"`
	Percentage   float64 `json:"percentage"`
}
