// Package customer defines loyalty-card customers and validation for
// create-or-update requests against the external customer directory.
package customer

import (
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for create-or-update input validation.
var (
	ErrFullNameRequired = errors.New("full name is required")
	ErrPhoneRequired    = errors.New("phone number is required")
	ErrEmailRequired    = errors.New("email is required")
)

// Customer is a loyalty-card customer record held by the external directory.
// A basket binds at most one customer at a time.
type Customer struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Points   int64  `json:"points"`
}

// CreateInput holds the fields for creating or updating a customer record by
// phone number. LoyaltyCode is optional.
type CreateInput struct {
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	LoyaltyCode string `json:"loyalty_code,omitempty"`
}

// Validate checks the required fields before any network call is made.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.FullName) == "" {
		return ErrFullNameRequired
	}
	if strings.TrimSpace(in.Phone) == "" {
		return ErrPhoneRequired
	}
	if strings.TrimSpace(in.Email) == "" {
		return ErrEmailRequired
	}
	return nil
}
