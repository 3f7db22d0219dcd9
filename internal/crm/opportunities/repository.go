package opportunities

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opale-crm/opale-crm/internal/crm/clients"
	"github.com/opale-crm/opale-crm/internal/platform/httpx"
)

// Repository resolves opportunities with their parties and line items.
type Repository interface {
	GetWithParties(ctx context.Context, id uuid.UUID) (*Opportunity, error)
	ListLineItems(ctx context.Context, opportunityID uuid.UUID) ([]LineItem, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// GetWithParties joins the opportunity with its client and optional contact in
// one read so generation services see a consistent snapshot.
func (r *repository) GetWithParties(ctx context.Context, id uuid.UUID) (*Opportunity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT o.id, o.title, o.stage,
		       c.id, c.company_name, c.email, c.phone, c.address, c.city, c.postal_code,
		       ct.id, ct.client_id, ct.first_name, ct.last_name, ct.email, ct.phone
		FROM opportunities o
		JOIN clients c ON o.client_id = c.id
		LEFT JOIN contacts ct ON o.contact_id = ct.id
		WHERE o.id = $1
	`, id)

	var o Opportunity
	var clientEmail, clientPhone, address, city, postalCode pgtype.Text
	var contactID pgtype.UUID
	var contactClientID pgtype.UUID
	var firstName, lastName, contactEmail, contactPhone pgtype.Text

	err := row.Scan(
		&o.ID, &o.Title, &o.Stage,
		&o.Client.ID, &o.Client.CompanyName, &clientEmail, &clientPhone, &address, &city, &postalCode,
		&contactID, &contactClientID, &firstName, &lastName, &contactEmail, &contactPhone,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httpx.NotFound("opportunity not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get opportunity: %w", err)
	}

	o.Client.Email = clientEmail.String
	o.Client.Phone = clientPhone.String
	o.Client.Address = address.String
	o.Client.City = city.String
	o.Client.PostalCode = postalCode.String

	if contactID.Valid {
		contact := clients.Contact{
			ID:        uuid.UUID(contactID.Bytes),
			ClientID:  uuid.UUID(contactClientID.Bytes),
			FirstName: firstName.String,
			LastName:  lastName.String,
			Email:     contactEmail.String,
			Phone:     contactPhone.String,
		}
		o.Contact = &contact
	}
	return &o, nil
}

// ListLineItems returns line items ordered by position. An empty result is
// valid; a document can be issued with zero lines.
func (r *repository) ListLineItems(ctx context.Context, opportunityID uuid.UUID) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, opportunity_id, service_id, description, quantity, unit_price, discount_percent, amount_ht, position
		FROM line_items
		WHERE opportunity_id = $1
		ORDER BY position ASC, id ASC
	`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var li LineItem
		var serviceID pgtype.UUID
		var description pgtype.Text
		var quantity, unitPrice, discountPercent, amountHT pgtype.Numeric
		var position pgtype.Int4

		if err := rows.Scan(&li.ID, &li.OpportunityID, &serviceID, &description,
			&quantity, &unitPrice, &discountPercent, &amountHT, &position); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}

		if serviceID.Valid {
			id := uuid.UUID(serviceID.Bytes)
			li.ServiceID = &id
		}
		li.Description = description.String
		if quantity.Valid {
			f, _ := quantity.Float64Value()
			li.Quantity = f.Float64
		}
		if unitPrice.Valid {
			f, _ := unitPrice.Float64Value()
			li.UnitPrice = f.Float64
		}
		if discountPercent.Valid {
			f, _ := discountPercent.Float64Value()
			li.DiscountPercent = f.Float64
		}
		if amountHT.Valid {
			f, _ := amountHT.Float64Value()
			li.AmountHT = f.Float64
		}
		if position.Valid {
			li.Position = int(position.Int32)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}
