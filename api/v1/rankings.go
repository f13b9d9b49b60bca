// Package v1 holds the wire types and service descriptor of
// solargrade.v1.Rankings. Messages travel as JSON; see CodecName.
package v1

import "time"

type RatingEntry struct {
	QuestionId string  `json:"question_id"`
	Category   string  `json:"category"`
	Rating     int32   `json:"rating"`
	Weight     float64 `json:"weight,omitempty"`
}

type LegacyRatings struct {
	Communication      int32 `json:"communication"`
	InstallQuality     int32 `json:"install_quality"`
	PaymentReliability int32 `json:"payment_reliability"`
	Timeliness         int32 `json:"timeliness"`
	PostInstallSupport int32 `json:"post_install_support"`
}

type SubmitReviewRequest struct {
	VendorId string         `json:"vendor_id"`
	Ratings  []*RatingEntry `json:"ratings,omitempty"`
	Legacy   *LegacyRatings `json:"legacy,omitempty"`
	Verified bool           `json:"verified"`
}

func (x *SubmitReviewRequest) GetVendorId() string {
	if x == nil {
		return ""
	}
	return x.VendorId
}

type SubmitReviewResponse struct {
	ReviewId     string  `json:"review_id"`
	AverageScore float64 `json:"average_score"`
	DisplayScore float64 `json:"display_score"`
	LetterGrade  string  `json:"letter_grade"`
}

type VerifyReviewRequest struct {
	ReviewId string `json:"review_id"`
}

func (x *VerifyReviewRequest) GetReviewId() string {
	if x == nil {
		return ""
	}
	return x.ReviewId
}

type VerifyReviewResponse struct {
	ReviewId string `json:"review_id"`
	Verified bool   `json:"verified"`
}

type GetRankingsRequest struct {
	VendorType string `json:"vendor_type,omitempty"`
	MinGrade   string `json:"min_grade,omitempty"`
}

func (x *GetRankingsRequest) GetVendorType() string {
	if x == nil {
		return ""
	}
	return x.VendorType
}

func (x *GetRankingsRequest) GetMinGrade() string {
	if x == nil {
		return ""
	}
	return x.MinGrade
}

type RankEntry struct {
	VendorId        string  `json:"vendor_id"`
	VendorType      string  `json:"vendor_type"`
	Rank            int32   `json:"rank"`
	SolargradeScore float64 `json:"solargrade_score"`
	DisplayScore    float64 `json:"display_score"`
	LetterGrade     string  `json:"letter_grade"`
	ReviewCount     int32   `json:"review_count"`
	// RankChange is absent for vendors new to the leaderboard.
	RankChange *int32 `json:"rank_change,omitempty"`
	IsNew      bool   `json:"is_new"`
}

type GetRankingsResponse struct {
	SnapshotId  string       `json:"snapshot_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Entries     []*RankEntry `json:"entries"`
}

type GetVendorGradeRequest struct {
	VendorId string `json:"vendor_id"`
}

func (x *GetVendorGradeRequest) GetVendorId() string {
	if x == nil {
		return ""
	}
	return x.VendorId
}

type VendorGradeResponse struct {
	VendorId            string     `json:"vendor_id"`
	VendorType          string     `json:"vendor_type"`
	VerifiedReviewCount int32      `json:"verified_review_count"`
	MeanScore           *float64   `json:"mean_score,omitempty"`
	SolargradeScore     *float64   `json:"solargrade_score,omitempty"`
	DisplayScore        *float64   `json:"display_score,omitempty"`
	LetterGrade         string     `json:"letter_grade"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

type RefreshRankingsRequest struct{}

type RefreshRankingsResponse struct {
	Success      bool   `json:"success"`
	UpdatedCount int32  `json:"updated_count"`
	FailedCount  int32  `json:"failed_count"`
	Message      string `json:"message"`
	SnapshotId   string `json:"snapshot_id,omitempty"`
	RankedCount  int32  `json:"ranked_count"`
}
