package workflow

import (
	"strings"
	"time"
)

// Scores are the prioritization inputs of a story.
type Scores struct {
	BusinessValue   int `json:"business_value" yaml:"business_value"`
	Urgency         int `json:"urgency" yaml:"urgency"`
	TimeCriticality int `json:"time_criticality" yaml:"time_criticality"`
	RiskReduction   int `json:"risk_reduction" yaml:"risk_reduction"`
}

func NewStory(id, projectID, backlogID, title string, points int, now time.Time) (*Story, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationf("story title is required")
	}
	if backlogID == "" {
		return nil, validationf("story %q requires a backlog", title)
	}
	if points < 0 {
		return nil, validationf("story points must be >= 0, got %d", points)
	}
	s := &Story{
		ID:           id,
		ProjectID:    projectID,
		BacklogID:    backlogID,
		Title:        title,
		Points:       points,
		Dependencies: []string{},
	}
	s.Status = StatusTodo
	touch(&s.Lifecycle, now)
	return s, nil
}

func SetScores(s *Story, sc Scores, now time.Time) error {
	check := func(name string, v int) error {
		if v < 1 || v > 10 {
			return validationf("%s must be between 1 and 10, got %d", name, v)
		}
		return nil
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"business value", sc.BusinessValue},
		{"urgency", sc.Urgency},
		{"time criticality", sc.TimeCriticality},
		{"risk reduction", sc.RiskReduction},
	} {
		if err := check(f.name, f.v); err != nil {
			return err
		}
	}
	s.BusinessValue = sc.BusinessValue
	s.Urgency = sc.Urgency
	s.TimeCriticality = sc.TimeCriticality
	s.RiskReduction = sc.RiskReduction
	touch(&s.Lifecycle, now)
	return nil
}

func SetPoints(s *Story, points int, now time.Time) error {
	if points < 0 {
		return validationf("story points must be >= 0, got %d", points)
	}
	if s.Status == StatusDone {
		return invalidState("set points", s.Status, "story is done")
	}
	s.Points = points
	touch(&s.Lifecycle, now)
	return nil
}

// StartStory moves a startable story to IN_PROGRESS. Stories past TODO are left alone.
func StartStory(s *Story, idx StoryIndex, now time.Time) error {
	if s.Status != StatusTodo {
		return nil
	}
	if unmet := UnmetDependencies(s, idx); len(unmet) > 0 {
		return invalidState("start story "+s.ID, s.Status, "dependencies not done", unmet...)
	}
	Start(s, now)
	return nil
}

// CompleteStory completes a story explicitly. Stories with tasks complete
// only through their last task.
func CompleteStory(s *Story, tasks []*Task, now time.Time) error {
	if len(tasks) > 0 {
		return invalidState("complete story "+s.ID, s.Status, "story completes when all of its tasks are done")
	}
	return Complete(s, now)
}

func BlockStory(s *Story, now time.Time) error {
	switch s.Status {
	case StatusDone:
		return invalidState("block story "+s.ID, s.Status, "story is done")
	case StatusBlocked:
		return invalidState("block story "+s.ID, s.Status, "story is already blocked")
	}
	s.PreBlockStatus = s.Status
	s.Status = StatusBlocked
	touch(&s.Lifecycle, now)
	return nil
}

func UnblockStory(s *Story, now time.Time) error {
	if s.Status != StatusBlocked {
		return validationf("story %s is not blocked", s.ID)
	}
	restore := s.PreBlockStatus
	if restore == "" || restore == StatusBlocked || restore == StatusDone {
		restore = StatusTodo
	}
	s.Status = restore
	s.PreBlockStatus = ""
	touch(&s.Lifecycle, now)
	return nil
}

// CanDelete rejects deleting a story while any of its tasks is in progress.
func CanDelete(s *Story, tasks []*Task) error {
	var busy []string
	for _, t := range tasks {
		if t.Status == StatusInProgress {
			busy = append(busy, t.ID)
		}
	}
	if len(busy) > 0 {
		return invalidState("delete story "+s.ID, s.Status, "tasks in progress", busy...)
	}
	return nil
}

// Progress is the share of DONE tasks as a percentage; 0 without tasks.
func Progress(tasks []*Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Status == StatusDone {
			done++
		}
	}
	return float64(done) * 100 / float64(len(tasks))
}

func AllTasksDone(tasks []*Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.Status != StatusDone {
			return false
		}
	}
	return true
}

func TotalEstimatedHours(tasks []*Task) float64 {
	var sum float64
	for _, t := range tasks {
		sum += t.EstimatedHours
	}
	return sum
}

// IsReady reports the definition of ready: a complete description,
// complete acceptance criteria and an estimate.
func IsReady(s *Story) bool {
	return s.Description.Valid() && s.Criteria.Valid() && s.Points > 0
}
