package clients

import "github.com/google/uuid"

// Client is a billable account.
type Client struct {
	ID          uuid.UUID
	CompanyName string
	Email       string
	Phone       string
	Address     string
	City        string
	PostalCode  string
}

// Contact is a person attached to a client.
type Contact struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// FullName returns the contact display name.
func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}
