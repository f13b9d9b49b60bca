package service

import "time"

// ReviewSubmission carries either weighted rating entries or the five legacy
// dimensions, never both.
type ReviewSubmission struct {
	VendorID string
	Ratings  []RatingEntry
	Legacy   *LegacyRatings
	Verified bool
}

type ReviewScore struct {
	ReviewID     string
	AverageScore float64
}

type RankingSnapshot struct {
	ID          string
	GeneratedAt time.Time
	Entries     []RankEntry
}

type RefreshOutcome struct {
	Refresh  RefreshResult
	Snapshot RankingSnapshot
}
