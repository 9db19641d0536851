package entities

import "github.com/shopspring/decimal"

// RatingSummary is the cached aggregate over visible reviews
type RatingSummary struct {
	Average float64 `json:"average" db:"rating_average"`
	Count   int     `json:"count" db:"rating_count"`
}

// RatingTarget names the entity an aggregate belongs to
type RatingTarget string

const (
	RatingTargetService  RatingTarget = "service"
	RatingTargetProvider RatingTarget = "provider"
)

// ComputeRatingSummary returns the mean of count overall scores totalling sum,
// rounded half-up to one decimal place. An empty set yields 0, 0.
func ComputeRatingSummary(sum, count int64) RatingSummary {
	if count <= 0 {
		return RatingSummary{}
	}
	avg := decimal.NewFromInt(sum).
		Div(decimal.NewFromInt(count)).
		Round(1)
	f, _ := avg.Float64()
	return RatingSummary{Average: f, Count: int(count)}
}

// IsConsistent reports whether the summary could have been produced by ComputeRatingSummary
func (s RatingSummary) IsConsistent() bool {
	switch {
	case s.Count < 0:
		return false
	case s.Count == 0:
		return s.Average == 0
	default:
		return s.Average >= MinRating && s.Average <= MaxRating
	}
}
