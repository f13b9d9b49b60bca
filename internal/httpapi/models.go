package httpapi

import (
	"time"

	"github.com/solargrade/solargrade-server/internal/grade"
	"github.com/solargrade/solargrade-server/internal/service"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type RankEntryResponse struct {
	VendorID        string  `json:"vendorId"`
	VendorType      string  `json:"vendorType"`
	Rank            int     `json:"rank"`
	SolarGradeScore float64 `json:"solarGradeScore"`
	DisplayScore    float64 `json:"displayScore"`
	LetterGrade     string  `json:"letterGrade"`
	ReviewCount     int     `json:"reviewCount"`
	RankChange      *int    `json:"rankChange"`
	IsNew           bool    `json:"isNew"`
}

type RankingsResponse struct {
	SnapshotID  string              `json:"snapshotId"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Entries     []RankEntryResponse `json:"entries"`
}

type VendorGradeResponse struct {
	VendorID            string     `json:"vendorId"`
	VendorType          string     `json:"vendorType"`
	VerifiedReviewCount int        `json:"verifiedReviewCount"`
	MeanScore           *float64   `json:"meanScore"`
	SolarGradeScore     *float64   `json:"solarGradeScore"`
	DisplayScore        *float64   `json:"displayScore"`
	LetterGrade         string     `json:"letterGrade"`
	UpdatedAt           *time.Time `json:"updatedAt,omitempty"`
}

func transformRankings(s service.RankingSnapshot) RankingsResponse {
	entries := make([]RankEntryResponse, 0, len(s.Entries))
	for _, e := range s.Entries {
		entries = append(entries, RankEntryResponse{
			VendorID:        e.VendorID,
			VendorType:      e.VendorType,
			Rank:            e.Rank,
			SolarGradeScore: e.SolarGradeScore,
			DisplayScore:    grade.DisplayScore(e.SolarGradeScore),
			LetterGrade:     e.LetterGrade.String(),
			ReviewCount:     e.ReviewCount,
			RankChange:      e.RankChange,
			IsNew:           e.IsNew,
		})
	}
	return RankingsResponse{SnapshotID: s.ID, GeneratedAt: s.GeneratedAt, Entries: entries}
}

func transformVendorGrade(a service.VendorAggregate) VendorGradeResponse {
	resp := VendorGradeResponse{
		VendorID:            a.VendorID,
		VendorType:          a.VendorType,
		VerifiedReviewCount: a.VerifiedReviewCount,
		MeanScore:           a.MeanScore,
		SolarGradeScore:     a.SolarGradeScore,
		LetterGrade:         a.LetterGrade.String(),
	}
	if a.LetterGrade == "" {
		resp.LetterGrade = grade.NotRated.String()
	}
	if a.SolarGradeScore != nil {
		d := grade.DisplayScore(*a.SolarGradeScore)
		resp.DisplayScore = &d
	}
	if !a.UpdatedAt.IsZero() {
		u := a.UpdatedAt
		resp.UpdatedAt = &u
	}
	return resp
}
