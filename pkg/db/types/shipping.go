package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ShippingDetails is the buyer-supplied destination stored on an order.
type ShippingDetails struct {
	RecipientName string  `json:"recipient_name" validate:"required,notblank,max=120"`
	Line1         string  `json:"line1" validate:"required,notblank,max=200"`
	Line2         *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City          string  `json:"city" validate:"required,max=120"`
	State         string  `json:"state" validate:"required,max=120"`
	PostalCode    string  `json:"postal_code" validate:"required,notblank,max=20"`
	Country       string  `json:"country" validate:"omitempty,len=2"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// Normalize trims fields and defaults the country.
func (s ShippingDetails) Normalize() ShippingDetails {
	s.RecipientName = strings.TrimSpace(s.RecipientName)
	s.Line1 = strings.TrimSpace(s.Line1)
	s.City = strings.TrimSpace(s.City)
	s.State = strings.TrimSpace(s.State)
	s.PostalCode = strings.TrimSpace(s.PostalCode)
	s.Country = strings.ToUpper(strings.TrimSpace(s.Country))
	if s.Country == "" {
		s.Country = "US"
	}
	return s
}

// Value implements driver.Valuer.
func (s ShippingDetails) Value() (driver.Value, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("shipping details: %w", err)
	}
	return string(payload), nil
}

// Scan implements sql.Scanner.
func (s *ShippingDetails) Scan(value any) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("shipping details: %w", err)
	}
	if len(raw) == 0 {
		*s = ShippingDetails{}
		return nil
	}
	if err := json.Unmarshal(raw, s); err != nil {
		return fmt.Errorf("shipping details: %w", err)
	}
	return nil
}
