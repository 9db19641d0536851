package entities

import (
	"fmt"
	"time"
)

const (
	MinRating = 1
	MaxRating = 5

	MaxCommentLength  = 1000
	MaxResponseLength = 1000
	MaxListItems      = 5
	MaxListItemLength = 100
)

// ReviewRatings holds the overall score and optional sub-scores, all 1-5
type ReviewRatings struct {
	Overall       int  `json:"overall" db:"overall"`
	Quality       *int `json:"quality,omitempty" db:"quality"`
	Punctuality   *int `json:"punctuality,omitempty" db:"punctuality"`
	Communication *int `json:"communication,omitempty" db:"communication"`
	Value         *int `json:"value,omitempty" db:"value"`
}

// Validate checks every present score is within range
func (r ReviewRatings) Validate() error {
	if r.Overall < MinRating || r.Overall > MaxRating {
		return fmt.Errorf("overall rating must be between %d and %d", MinRating, MaxRating)
	}
	subs := map[string]*int{
		"quality":       r.Quality,
		"punctuality":   r.Punctuality,
		"communication": r.Communication,
		"value":         r.Value,
	}
	for name, v := range subs {
		if v != nil && (*v < MinRating || *v > MaxRating) {
			return fmt.Errorf("%s rating must be between %d and %d", name, MinRating, MaxRating)
		}
	}
	return nil
}

// ProviderResponse is the provider's single public reply to a review
type ProviderResponse struct {
	Text        string    `json:"text" db:"provider_response"`
	RespondedAt time.Time `json:"responded_at" db:"responded_at"`
}

// Review is a customer's rating of a completed booking.
// ProviderID and ServiceID are copied from the booking at creation and never change.
type Review struct {
	ID               string            `json:"id" db:"id"`
	BookingID        string            `json:"booking_id" db:"booking_id"`
	CustomerID       string            `json:"customer_id" db:"customer_id"`
	ProviderID       string            `json:"provider_id" db:"provider_id"`
	ServiceID        string            `json:"service_id" db:"service_id"`
	Rating           ReviewRatings     `json:"rating"`
	Comment          string            `json:"comment" db:"comment"`
	Pros             []string          `json:"pros,omitempty" db:"pros"`
	Cons             []string          `json:"cons,omitempty" db:"cons"`
	WouldRecommend   bool              `json:"would_recommend" db:"would_recommend"`
	IsVisible        bool              `json:"is_visible" db:"is_visible"`
	IsEditable       bool              `json:"is_editable" db:"is_editable"`
	EditableUntil    time.Time         `json:"editable_until" db:"editable_until"`
	ProviderResponse *ProviderResponse `json:"provider_response,omitempty"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// CanEdit reports whether the review is still inside its edit window at now
func (r *Review) CanEdit(now time.Time) bool {
	return r.IsEditable && now.Before(r.EditableUntil)
}

// ValidateContent checks the free-text bounds
func (r *Review) ValidateContent() error {
	if len(r.Comment) > MaxCommentLength {
		return fmt.Errorf("comment must be at most %d characters", MaxCommentLength)
	}
	if err := validateList("pros", r.Pros); err != nil {
		return err
	}
	return validateList("cons", r.Cons)
}

func validateList(name string, items []string) error {
	if len(items) > MaxListItems {
		return fmt.Errorf("%s may contain at most %d items", name, MaxListItems)
	}
	for _, item := range items {
		if len(item) > MaxListItemLength {
			return fmt.Errorf("%s items must be at most %d characters", name, MaxListItemLength)
		}
	}
	return nil
}
