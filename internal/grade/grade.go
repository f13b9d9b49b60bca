package grade

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Grade is a published letter grade. The vocabulary is closed: the nine
// letter bands plus NotRated.
type Grade string

const (
	APlus    Grade = "A+"
	A        Grade = "A"
	BPlus    Grade = "B+"
	B        Grade = "B"
	CPlus    Grade = "C+"
	C        Grade = "C"
	DPlus    Grade = "D+"
	D        Grade = "D"
	F        Grade = "F"
	NotRated Grade = "NR"
)

var ErrUnknownGrade = errors.New("unknown grade")

type band struct {
	min   float64
	grade Grade
}

// bands are evaluated top-down; lower bounds are inclusive.
var bands = []band{
	{4.5, APlus},
	{4.0, A},
	{3.5, BPlus},
	{3.0, B},
	{2.5, CPlus},
	{2.0, C},
	{1.5, DPlus},
	{1.0, D},
}

// quality orders letter grades, higher is better. NotRated has no entry.
var quality = map[Grade]int{
	F:     0,
	D:     1,
	DPlus: 2,
	C:     3,
	CPlus: 4,
	B:     5,
	BPlus: 6,
	A:     7,
	APlus: 8,
}

// FromScore maps a 0-5 score to its letter grade. NaN yields NotRated.
func FromScore(score float64) Grade {
	if math.IsNaN(score) {
		return NotRated
	}
	for _, b := range bands {
		if score >= b.min {
			return b.grade
		}
	}
	return F
}

// FromNullable is FromScore for optional scores; nil yields NotRated.
func FromNullable(score *float64) Grade {
	if score == nil {
		return NotRated
	}
	return FromScore(*score)
}

// All returns the published vocabulary, best first, NotRated last.
func All() []Grade {
	out := make([]Grade, 0, len(bands)+2)
	for _, b := range bands {
		out = append(out, b.grade)
	}
	return append(out, F, NotRated)
}

// Parse accepts any of the published symbols, case-insensitively.
func Parse(s string) (Grade, error) {
	g := Grade(strings.ToUpper(strings.TrimSpace(s)))
	if g == NotRated {
		return g, nil
	}
	if _, ok := quality[g]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGrade, s)
	}
	return g, nil
}

// Rated reports whether g is one of the nine letter bands.
func (g Grade) Rated() bool {
	_, ok := quality[g]
	return ok
}

// AtLeast reports whether g is equal to or better than min.
// NotRated never satisfies a threshold and never acts as one.
func (g Grade) AtLeast(min Grade) bool {
	q, ok := quality[g]
	if !ok {
		return false
	}
	m, ok := quality[min]
	if !ok {
		return false
	}
	return q >= m
}

func (g Grade) String() string {
	return string(g)
}

// DisplayScore rounds a stored score to one decimal, half away from zero.
// Stored scores stay unrounded.
func DisplayScore(score float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return score
	}
	f, _ := decimal.NewFromFloat(score).Round(1).Float64()
	return f
}
