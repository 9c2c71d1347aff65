package domain

import (
	"strings"
	"time"
)

type Location struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	ZipCode   string    `json:"zip_code"`
	Country   string    `json:"country"`
	Capacity  int       `json:"capacity"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LocationRequest struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zip_code"`
	Country  string `json:"country"`
	Capacity int    `json:"capacity"`
	Active   *bool  `json:"active,omitempty"`
}

func (r *LocationRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Address = strings.TrimSpace(r.Address)
	r.City = strings.TrimSpace(r.City)
	r.State = strings.TrimSpace(r.State)
	r.ZipCode = strings.TrimSpace(r.ZipCode)
	r.Country = strings.TrimSpace(r.Country)
}

func (r *LocationRequest) Validate() error {
	switch {
	case r.Name == "":
		return NewValidationError("name", "is required")
	case r.Address == "":
		return NewValidationError("address", "is required")
	case r.City == "":
		return NewValidationError("city", "is required")
	case r.Country == "":
		return NewValidationError("country", "is required")
	case r.Capacity <= 0:
		return NewValidationError("capacity", "must be a positive integer")
	}
	return nil
}

// Apply writes the request onto l. Active defaults to true for new locations.
func (r *LocationRequest) Apply(l *Location) {
	l.Name = r.Name
	l.Address = r.Address
	l.City = r.City
	l.State = r.State
	l.ZipCode = r.ZipCode
	l.Country = r.Country
	l.Capacity = r.Capacity
	if r.Active != nil {
		l.Active = *r.Active
	} else if l.ID == "" {
		l.Active = true
	}
}
