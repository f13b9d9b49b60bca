package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

type Vendor struct {
	ID         string
	Name       string
	VendorType string
}

type RatingRow struct {
	QuestionID string
	Category   string
	Rating     int
	Weight     float64
}

type Review struct {
	ID           string
	VendorID     string
	AverageScore float64
	Verified     bool
	CreatedAt    time.Time
	Ratings      []RatingRow
}

type ReviewSummary struct {
	ID           string
	AverageScore float64
	Verified     bool
}

type VendorReviews struct {
	VendorID   string
	VendorType string
	Reviews    []ReviewSummary
}

type VendorAggregate struct {
	VendorID            string
	VendorType          string
	VerifiedReviewCount int
	MeanScore           *float64
	SolarGradeScore     *float64
	LetterGrade         string
	UpdatedAt           time.Time
}

type SnapshotEntry struct {
	VendorID        string
	VendorType      string
	Rank            int
	SolarGradeScore float64
	LetterGrade     string
	ReviewCount     int
	RankChange      *int
	IsNew           bool
}

type Snapshot struct {
	ID        string
	CreatedAt time.Time
	Entries   []SnapshotEntry
}
