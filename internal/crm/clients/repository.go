package clients

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opale-crm/opale-crm/internal/platform/httpx"
)

// Repository reads client and contact rows.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Client, error)
	GetContact(ctx context.Context, id uuid.UUID) (*Contact, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, company_name, email, phone, address, city, postal_code
		FROM clients
		WHERE id = $1
	`, id)

	var c Client
	var email, phone, address, city, postalCode pgtype.Text
	err := row.Scan(&c.ID, &c.CompanyName, &email, &phone, &address, &city, &postalCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httpx.NotFound("client not found")
	}
	if err != nil {
		return nil, err
	}
	c.Email = email.String
	c.Phone = phone.String
	c.Address = address.String
	c.City = city.String
	c.PostalCode = postalCode.String
	return &c, nil
}

func (r *repository) GetContact(ctx context.Context, id uuid.UUID) (*Contact, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, client_id, first_name, last_name, email, phone
		FROM contacts
		WHERE id = $1
	`, id)

	var c Contact
	var firstName, lastName, email, phone pgtype.Text
	err := row.Scan(&c.ID, &c.ClientID, &firstName, &lastName, &email, &phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httpx.NotFound("contact not found")
	}
	if err != nil {
		return nil, err
	}
	c.FirstName = firstName.String
	c.LastName = lastName.String
	c.Email = email.String
	c.Phone = phone.String
	return &c, nil
}
