package service

import (
	"time"

	"github.com/solargrade/solargrade-server/internal/grade"
)

// MinVerifiedReviews is the inclusive sample size a vendor needs to be graded.
const MinVerifiedReviews = 3

// Transform derives the SolarGrade score from a vendor's mean score.
// Implementations must preserve order.
type Transform func(mean float64) float64

// IdentityTransform uses the mean score as the SolarGrade score.
func IdentityTransform(mean float64) float64 { return mean }

// ReviewRecord is the slice of a stored review the aggregate needs.
type ReviewRecord struct {
	ReviewID     string
	AverageScore float64
	Verified     bool
}

type VendorWithReviews struct {
	VendorID   string
	VendorType string
	Reviews    []ReviewRecord
}

type VendorAggregate struct {
	VendorID            string
	VendorType          string
	VerifiedReviewCount int
	// MeanScore and SolarGradeScore are nil for ungraded vendors.
	MeanScore       *float64
	SolarGradeScore *float64
	LetterGrade     grade.Grade
	UpdatedAt       time.Time
}

// Graded reports whether the vendor passed the sample-size gate.
func (a VendorAggregate) Graded() bool {
	return a.SolarGradeScore != nil
}

// ComputeVendorAggregate rolls a vendor's verified reviews into an aggregate.
// The letter grade is taken from the mean, not the transformed score.
func ComputeVendorAggregate(v VendorWithReviews, transform Transform) VendorAggregate {
	if transform == nil {
		transform = IdentityTransform
	}

	agg := VendorAggregate{
		VendorID:    v.VendorID,
		VendorType:  v.VendorType,
		LetterGrade: grade.NotRated,
	}

	var sum float64
	for _, r := range v.Reviews {
		if !r.Verified {
			continue
		}
		agg.VerifiedReviewCount++
		sum += r.AverageScore
	}

	if agg.VerifiedReviewCount < MinVerifiedReviews {
		return agg
	}

	mean := sum / float64(agg.VerifiedReviewCount)
	score := transform(mean)
	agg.MeanScore = &mean
	agg.SolarGradeScore = &score
	agg.LetterGrade = grade.FromScore(mean)
	return agg
}

// RefreshResult summarises one aggregate refresh batch.
type RefreshResult struct {
	Success      bool
	UpdatedCount int
	FailedCount  int
	Message      string
}
