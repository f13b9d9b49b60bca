package service

import (
	"math"
	"sort"

	"github.com/solargrade/solargrade-server/internal/grade"
)

// RankFilter narrows the eligible population before ranks are assigned.
// Zero values disable the corresponding filter.
type RankFilter struct {
	VendorType string
	MinGrade   grade.Grade
}

type RankEntry struct {
	VendorID        string
	VendorType      string
	Rank            int
	SolarGradeScore float64
	LetterGrade     grade.Grade
	ReviewCount     int
	// RankChange is previous minus current rank; nil for new entries.
	RankChange *int
	IsNew      bool
}

func (f RankFilter) matches(a VendorAggregate) bool {
	if vt := NormalizeVendorType(f.VendorType); vt != "" && NormalizeVendorType(a.VendorType) != vt {
		return false
	}
	if f.MinGrade != "" && !a.LetterGrade.AtLeast(f.MinGrade) {
		return false
	}
	return true
}

// RankVendors orders eligible vendors by SolarGrade score, then verified
// review count, then vendor id, and assigns contiguous ranks from 1.
// previous may be nil, in which case every entry is new.
func RankVendors(aggregates []VendorAggregate, filter RankFilter, previous []RankEntry) []RankEntry {
	eligible := make([]VendorAggregate, 0, len(aggregates))
	for _, a := range aggregates {
		if a.SolarGradeScore == nil || math.IsNaN(*a.SolarGradeScore) {
			continue
		}
		if !filter.matches(a) {
			continue
		}
		eligible = append(eligible, a)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		si, sj := *eligible[i].SolarGradeScore, *eligible[j].SolarGradeScore
		if si != sj {
			return si > sj
		}
		if eligible[i].VerifiedReviewCount != eligible[j].VerifiedReviewCount {
			return eligible[i].VerifiedReviewCount > eligible[j].VerifiedReviewCount
		}
		return eligible[i].VendorID < eligible[j].VendorID
	})

	prevRanks := make(map[string]int, len(previous))
	for _, p := range previous {
		prevRanks[p.VendorID] = p.Rank
	}

	out := make([]RankEntry, len(eligible))
	for i, a := range eligible {
		rank := i + 1
		entry := RankEntry{
			VendorID:        a.VendorID,
			VendorType:      a.VendorType,
			Rank:            rank,
			SolarGradeScore: *a.SolarGradeScore,
			LetterGrade:     a.LetterGrade,
			ReviewCount:     a.VerifiedReviewCount,
			IsNew:           true,
		}
		if prev, ok := prevRanks[a.VendorID]; ok {
			change := prev - rank
			entry.RankChange = &change
			entry.IsNew = false
		}
		out[i] = entry
	}
	return out
}

// aggregatesFromEntries rebuilds rankable aggregates from a published
// snapshot so it can be re-ranked under a filter.
func aggregatesFromEntries(entries []RankEntry) []VendorAggregate {
	out := make([]VendorAggregate, len(entries))
	for i, e := range entries {
		score := e.SolarGradeScore
		out[i] = VendorAggregate{
			VendorID:            e.VendorID,
			VendorType:          e.VendorType,
			VerifiedReviewCount: e.ReviewCount,
			SolarGradeScore:     &score,
			LetterGrade:         e.LetterGrade,
		}
	}
	return out
}
