package entities

import "time"

// ServiceListing is a time-bound service a provider offers in the catalog
type ServiceListing struct {
	ID              string        `json:"id" db:"id"`
	ProviderID      string        `json:"provider_id" db:"provider_id"`
	Title           string        `json:"title" db:"title"`
	DurationMinutes int           `json:"duration_minutes" db:"duration_minutes"`
	Price           float64       `json:"price" db:"price"`
	Currency        string        `json:"currency" db:"currency"`
	IsActive        bool          `json:"is_active" db:"is_active"`
	IsApproved      bool          `json:"is_approved" db:"is_approved"`
	Rating          RatingSummary `json:"rating"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// IsBookable reports whether customers may book the service
func (s *ServiceListing) IsBookable() bool {
	return s.IsActive && s.IsApproved
}

// Provider is the seller side of the marketplace
type Provider struct {
	ID                string        `json:"id" db:"id"`
	DisplayName       string        `json:"display_name" db:"display_name"`
	CompletedServices int           `json:"completed_services" db:"completed_services"`
	Rating            RatingSummary `json:"rating"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}
