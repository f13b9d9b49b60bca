package service

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// ExcludedCategory never contributes to a review's average score.
	ExcludedCategory = "pto_time"

	MinRating = 1
	MaxRating = 5
)

var (
	ErrInvalidRating      = errors.New("invalid rating")
	ErrNoScorableRatings  = errors.New("no scorable ratings")
	ErrInvalidReviewScore = errors.New("invalid review score")
)

// RatingEntry is one answer to one review question.
type RatingEntry struct {
	QuestionID string
	Category   string
	Rating     int
	// Weight of zero means the default weight of 1.
	Weight float64
}

func (r RatingEntry) weight() float64 {
	if r.Weight == 0 {
		return 1
	}
	return r.Weight
}

// LegacyRatings holds the five fixed rating dimensions of older review forms.
type LegacyRatings struct {
	Communication      int
	InstallQuality     int
	PaymentReliability int
	Timeliness         int
	PostInstallSupport int
}

// Entries expands the legacy dimensions into weight-1 rating entries.
func (l LegacyRatings) Entries() []RatingEntry {
	return []RatingEntry{
		{QuestionID: "communication", Category: "communication", Rating: l.Communication, Weight: 1},
		{QuestionID: "install_quality", Category: "installation_quality", Rating: l.InstallQuality, Weight: 1},
		{QuestionID: "payment_reliability", Category: "payment_reliability", Rating: l.PaymentReliability, Weight: 1},
		{QuestionID: "timeliness", Category: "timeliness", Rating: l.Timeliness, Weight: 1},
		{QuestionID: "post_install_support", Category: "post_install_support", Rating: l.PostInstallSupport, Weight: 1},
	}
}

// NormalizeCategory lower-cases a category tag and folds spaces and hyphens
// to underscores, so "PTO Time" and "pto-time" both match ExcludedCategory.
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(c)
}

// Scorable reports whether the entry takes part in aggregation.
func (r RatingEntry) Scorable() bool {
	return NormalizeCategory(r.Category) != ExcludedCategory
}

// ValidateRatings rejects entries that must not reach the aggregator.
func ValidateRatings(ratings []RatingEntry) error {
	seen := make(map[string]struct{}, len(ratings))
	for i, r := range ratings {
		if r.QuestionID == "" {
			return fmt.Errorf("%w: entry %d has no question id", ErrInvalidRating, i)
		}
		if _, dup := seen[r.QuestionID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidRating, r.QuestionID)
		}
		seen[r.QuestionID] = struct{}{}

		if r.Rating < MinRating || r.Rating > MaxRating {
			return fmt.Errorf("%w: question %q rating %d outside [%d,%d]", ErrInvalidRating, r.QuestionID, r.Rating, MinRating, MaxRating)
		}
		if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) || r.Weight < 0 {
			return fmt.Errorf("%w: question %q weight %v must be positive", ErrInvalidRating, r.QuestionID, r.Weight)
		}
	}
	return nil
}

// ValidateLegacyRatings checks every legacy dimension is in range.
func ValidateLegacyRatings(l LegacyRatings) error {
	return ValidateRatings(l.Entries())
}

// AverageScore is the weighted mean of the scorable entries. Input is
// assumed validated. An empty scorable set yields 0.
func AverageScore(ratings []RatingEntry) float64 {
	var totalWeighted, totalWeight float64
	for _, r := range ratings {
		if !r.Scorable() {
			continue
		}
		w := r.weight()
		totalWeighted += float64(r.Rating) * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return totalWeighted / totalWeight
}

// LegacyAverageScore is the unweighted mean of the five legacy dimensions.
func LegacyAverageScore(l LegacyRatings) float64 {
	return AverageScore(l.Entries())
}

// scorableCount returns how many entries AverageScore would use.
func scorableCount(ratings []RatingEntry) int {
	n := 0
	for _, r := range ratings {
		if r.Scorable() {
			n++
		}
	}
	return n
}

func validReviewScore(score float64) bool {
	return !math.IsNaN(score) && score >= 0 && score <= MaxRating
}
