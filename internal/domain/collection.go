package domain

import (
	"math"
	"time"
)

// Rating bounds. Stars are given in half-star steps.
const (
	MinRating  = 0.5
	MaxRating  = 5.0
	RatingStep = 0.5
)

// CollectionKind names one of the per-user movie lists.
type CollectionKind string

const (
	CollectionFavorites CollectionKind = "favorites"
	CollectionWatchlist CollectionKind = "watchlist"
	CollectionRatings   CollectionKind = "ratings"
)

// CollectionItem is a movie in one of the user's lists together with the
// user's own state for it.
type CollectionItem struct {
	Movie      Movie
	Rating     *float64 // nil when not rated
	IsFavorite bool
	AddedAt    time.Time
}

// RatingPercent converts the star rating to the 0..100 scale the UI shows.
func (c CollectionItem) RatingPercent() int {
	if c.Rating == nil {
		return 0
	}
	return int(math.Round(*c.Rating * 100 / MaxRating))
}

// ValidateRating checks a star rating against the allowed scale.
func ValidateRating(op string, rating float64) error {
	if math.IsNaN(rating) || rating < MinRating || rating > MaxRating {
		return NewValidationError(op, "rating", "Rating must be between 0.5 and 5 stars")
	}
	if steps := rating / RatingStep; steps != math.Trunc(steps) {
		return NewValidationError(op, "rating", "Rating must be in half-star steps")
	}
	return nil
}

// ValidateMovieID rejects ids that cannot reference a catalog title.
func ValidateMovieID(op string, id int) error {
	if id <= 0 {
		return Invalid(op, "Invalid movie id")
	}
	return nil
}
