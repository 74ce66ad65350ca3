// Package scoring computes a person's completeness and influence scores.
// Both are pure functions of their inputs; neither reads the other.
package scoring

import (
	"math"
	"unicode/utf8"

	"github.com/scrypster/luminaries/pkg/types"
)

// Breakdown keys and their maximum points. The maxima sum to 100.
const (
	FieldAvatar       = "avatar"
	FieldDescription  = "description"
	FieldOccupation   = "occupation"
	FieldOrganization = "organization"
	FieldLinks        = "links"
	FieldDemographics = "demographics"
	FieldContent      = "content"
	FieldCareer       = "career"
	FieldCards        = "cards"
)

// Weights maps each field to its maximum points.
var Weights = map[string]int{
	FieldAvatar:       10,
	FieldDescription:  10,
	FieldOccupation:   8,
	FieldOrganization: 8,
	FieldLinks:        12,
	FieldDemographics: 7,
	FieldContent:      20,
	FieldCareer:       15,
	FieldCards:        10,
}

// Description thresholds in runes.
const (
	DescriptionFull    = 80
	DescriptionPartial = 20
)

// diminishing describes per-item credit that shrinks geometrically and is
// complete once Cap items are present.
type diminishing struct {
	Ratio float64
	Cap   int
}

var curves = map[string]diminishing{
	FieldLinks:   {Ratio: 0.5, Cap: 4},
	FieldContent: {Ratio: 0.85, Cap: 20},
	FieldCareer:  {Ratio: 0.7, Cap: 10},
	FieldCards:   {Ratio: 0.6, Cap: 8},
}

// Snapshot is the profile state the completeness score reads.
type Snapshot struct {
	AvatarURL     string
	Description   string
	Occupations   []string
	Organizations []string
	Links         int
	Gender        string
	Country       string
	BirthYear     int
	ContentItems  int
	CareerEvents  int
	Cards         int
}

// SnapshotOf builds a snapshot from a person view with its counts.
func SnapshotOf(v *types.PersonView) Snapshot {
	return Snapshot{
		AvatarURL:     v.AvatarURL,
		Description:   v.Description,
		Occupations:   v.Occupations,
		Organizations: v.Organizations,
		Links:         len(v.Links),
		Gender:        v.Gender,
		Country:       v.Country,
		BirthYear:     v.BirthYear,
		ContentItems:  v.ContentCount,
		CareerEvents:  v.CareerCount,
		Cards:         v.CardCount,
	}
}

// Result is a completeness score with its per-field breakdown.
type Result struct {
	Total     int            `json:"total"`
	Breakdown map[string]int `json:"breakdown"`
}

// Score returns the 0-100 completeness of s. Each field is clamped to its
// weight, so no field can spill into another's budget.
func Score(s Snapshot) Result {
	raw := map[string]int{
		FieldAvatar:       presence(s.AvatarURL != "", Weights[FieldAvatar]),
		FieldDescription:  descriptionPoints(s.Description),
		FieldOccupation:   presence(nonEmpty(s.Occupations), Weights[FieldOccupation]),
		FieldOrganization: presence(nonEmpty(s.Organizations), Weights[FieldOrganization]),
		FieldLinks:        curvePoints(FieldLinks, s.Links),
		FieldDemographics: demographicPoints(s),
		FieldContent:      curvePoints(FieldContent, s.ContentItems),
		FieldCareer:       curvePoints(FieldCareer, s.CareerEvents),
		FieldCards:        curvePoints(FieldCards, s.Cards),
	}

	res := Result{Breakdown: make(map[string]int, len(raw))}
	for field, points := range raw {
		points = clamp(points, 0, Weights[field])
		res.Breakdown[field] = points
		res.Total += points
	}
	res.Total = clamp(res.Total, 0, 100)
	return res
}

func presence(ok bool, points int) int {
	if ok {
		return points
	}
	return 0
}

func nonEmpty(tags []string) bool {
	for _, t := range tags {
		if t != "" {
			return true
		}
	}
	return false
}

func descriptionPoints(desc string) int {
	switch n := utf8.RuneCountInString(desc); {
	case n >= DescriptionFull:
		return Weights[FieldDescription]
	case n >= DescriptionPartial:
		return Weights[FieldDescription] / 2
	default:
		return 0
	}
}

// demographicPoints gives 7/3 of a point per known attribute, rounded down.
func demographicPoints(s Snapshot) int {
	known := 0
	for _, ok := range []bool{s.Gender != "", s.Country != "", s.BirthYear > 0} {
		if ok {
			known++
		}
	}
	return known * Weights[FieldDemographics] / 3
}

// curvePoints is max*(1-r^n) normalized so that n >= Cap earns max.
func curvePoints(field string, n int) int {
	c := curves[field]
	top := float64(Weights[field])
	if n <= 0 {
		return 0
	}
	if n >= c.Cap {
		return Weights[field]
	}
	full := 1 - math.Pow(c.Ratio, float64(c.Cap))
	return int(math.Floor(top * (1 - math.Pow(c.Ratio, float64(n))) / full))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
