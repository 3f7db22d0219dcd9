package company

// Profile holds the issuing company's legal identity and document defaults.
// It is read-only at generation time.
type Profile struct {
	LegalName    string  `json:"legal_name"`
	SIRET        string  `json:"siret"`
	VATNumber    string  `json:"vat_number"`
	Address      string  `json:"address"`
	City         string  `json:"city"`
	PostalCode   string  `json:"postal_code"`
	Email        string  `json:"email"`
	Phone        string  `json:"phone"`
	Website      string  `json:"website"`
	LogoURL      string  `json:"logo_url"`
	ValidityDays int     `json:"validity_days"`
	VATRate      float64 `json:"vat_rate"`
	PaymentTerms string  `json:"payment_terms"`
}

// Defaults is the single substitution profile used when no company_profile row
// exists. Injected into both generation services; never duplicated per call
// site.
var Defaults = Profile{
	LegalName:    "Mon entreprise",
	ValidityDays: 30,
	VATRate:      20,
	PaymentTerms: "Paiement à réception de facture",
}
