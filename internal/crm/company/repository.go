package company

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the near-singleton company profile row.
type Repository interface {
	// Get returns the stored profile, or nil when no row exists.
	Get(ctx context.Context) (*Profile, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context) (*Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT legal_name, siret, vat_number, address, city, postal_code,
		       email, phone, website, logo_url, validity_days, vat_rate, payment_terms
		FROM company_profile
		ORDER BY created_at ASC
		LIMIT 1
	`)

	var p Profile
	var siret, vatNumber, address, city, postalCode, email, phone, website, logoURL, paymentTerms pgtype.Text
	var validityDays pgtype.Int4
	var vatRate pgtype.Numeric

	err := row.Scan(&p.LegalName, &siret, &vatNumber, &address, &city, &postalCode,
		&email, &phone, &website, &logoURL, &validityDays, &vatRate, &paymentTerms)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get company profile: %w", err)
	}

	p.SIRET = siret.String
	p.VATNumber = vatNumber.String
	p.Address = address.String
	p.City = city.String
	p.PostalCode = postalCode.String
	p.Email = email.String
	p.Phone = phone.String
	p.Website = website.String
	p.LogoURL = logoURL.String
	if validityDays.Valid {
		p.ValidityDays = int(validityDays.Int32)
	}
	if vatRate.Valid {
		f, _ := vatRate.Float64Value()
		p.VATRate = f.Float64
	}
	p.PaymentTerms = paymentTerms.String
	return &p, nil
}
