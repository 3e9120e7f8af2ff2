package workflow

import (
	"slices"
	"strings"
)

// Method selects a prioritization formula.
type Method string

const (
	MethodMoSCoW      Method = "moscow"
	MethodWSJF        Method = "wsjf"
	MethodValueEffort Method = "value_effort"
)

var Methods = []Method{MethodMoSCoW, MethodWSJF, MethodValueEffort}

func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Methods, m) {
		return "", validationf("unknown prioritization method %q", s)
	}
	return m, nil
}

// Score rates s under m; higher is more urgent.
func Score(m Method, s *Story) float64 {
	switch m {
	case MethodMoSCoW:
		return 2*float64(s.BusinessValue) + 1.5*float64(s.Urgency) - 0.5*float64(len(s.Dependencies))
	case MethodWSJF:
		return float64((s.BusinessValue + s.TimeCriticality + s.RiskReduction) / max(1, s.Points))
	case MethodValueEffort:
		return float64(s.BusinessValue * 100 / max(1, s.Points))
	default:
		return 0
	}
}

type MoSCoW string

const (
	MustHave   MoSCoW = "must"
	ShouldHave MoSCoW = "should"
	CouldHave  MoSCoW = "could"
	WontHave   MoSCoW = "wont"
)

// Category buckets a MoSCoW score.
func Category(score float64) MoSCoW {
	switch {
	case score >= 15:
		return MustHave
	case score >= 10:
		return ShouldHave
	case score >= 5:
		return CouldHave
	default:
		return WontHave
	}
}

type Ranked struct {
	Story    *Story  `json:"story"`
	Score    float64 `json:"score"`
	Priority int     `json:"priority"`
}

// Rank orders stories by descending score. Ties keep input order.
func Rank(m Method, stories []*Story) []Ranked {
	out := make([]Ranked, len(stories))
	for i, s := range stories {
		out[i] = Ranked{Story: s, Score: Score(m, s)}
	}
	slices.SortStableFunc(out, func(a, b Ranked) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	for i := range out {
		out[i].Priority = i + 1
	}
	return out
}

func validateForPrioritization(s *Story) error {
	if !s.Description.Valid() {
		return validationf("story %s (%s) has no description", s.ID, s.Title)
	}
	if s.Points <= 0 {
		return validationf("story %s (%s) has no story points", s.ID, s.Title)
	}
	return nil
}

// Prioritize validates every story, then writes priorities 1..N in ranked
// order. Nothing is written when any story fails validation.
func Prioritize(m Method, stories []*Story) ([]Ranked, error) {
	if !slices.Contains(Methods, m) {
		return nil, validationf("unknown prioritization method %q", m)
	}
	for _, s := range stories {
		if err := validateForPrioritization(s); err != nil {
			return nil, err
		}
	}
	ranked := Rank(m, stories)
	for _, r := range ranked {
		r.Story.Priority = r.Priority
	}
	return ranked, nil
}

// Reorder assigns priorities following ids, which must name every story
// exactly once.
func Reorder(stories []*Story, ids []string) error {
	byID := make(map[string]*Story, len(stories))
	for _, s := range stories {
		byID[s.ID] = s
	}
	if len(ids) != len(stories) {
		return validationf("reorder needs all %d stories, got %d", len(stories), len(ids))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return validationf("story %s is not in the backlog", id)
		}
		if seen[id] {
			return validationf("story %s listed twice", id)
		}
		seen[id] = true
	}
	for i, id := range ids {
		byID[id].Priority = i + 1
	}
	return nil
}

func TotalBusinessValue(stories []*Story) int {
	sum := 0
	for _, s := range stories {
		sum += s.BusinessValue
	}
	return sum
}
