package opportunities

import (
	"github.com/google/uuid"

	"github.com/opale-crm/opale-crm/internal/crm/clients"
)

// Opportunity is a sales opportunity resolved together with its parties.
type Opportunity struct {
	ID      uuid.UUID
	Title   string
	Stage   string
	Client  clients.Client
	Contact *clients.Contact
}

// LineItem is one priced row attached to an opportunity.
type LineItem struct {
	ID              uuid.UUID
	OpportunityID   uuid.UUID
	ServiceID       *uuid.UUID
	Description     string
	Quantity        float64
	UnitPrice       float64
	DiscountPercent float64
	AmountHT        float64
	Position        int
}
