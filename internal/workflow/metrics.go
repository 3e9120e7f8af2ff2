package workflow

import (
	"fmt"
	"time"
)

type Metrics struct {
	Velocity             int          `json:"velocity"`
	Progress             float64      `json:"progress"`
	TotalPoints          int          `json:"total_points"`
	CompletedPoints      int          `json:"completed_points"`
	RemainingPoints      int          `json:"remaining_points"`
	TotalStories         int          `json:"total_stories"`
	CompletedStories     int          `json:"completed_stories"`
	InProgressStories    int          `json:"in_progress_stories"`
	TodoStories          int          `json:"todo_stories"`
	TotalTasks           int          `json:"total_tasks"`
	CompletedTasks       int          `json:"completed_tasks"`
	InProgressTasks      int          `json:"in_progress_tasks"`
	EstimatedHours       float64      `json:"estimated_hours"`
	ActualHours          float64      `json:"actual_hours"`
	RemainingHours       float64      `json:"remaining_hours"`
	DurationDays         int          `json:"duration_days"`
	ElapsedDays          int          `json:"elapsed_days"`
	RemainingDays        int          `json:"remaining_days"`
	ExpectedVelocityRate float64      `json:"expected_velocity_rate"`
	ActualVelocityRate   float64      `json:"actual_velocity_rate"`
	OnTrack              bool         `json:"on_track"`
	Status               SprintStatus `json:"status"`
}

// DurationDays is the number of days from start to end.
func DurationDays(sp *Sprint) int {
	return daysBetween(sp.StartDate, sp.EndDate)
}

// ElapsedDays counts whole days since the sprint started, clamped to its
// duration. Planned sprints and sprints not yet begun report 0.
func ElapsedDays(sp *Sprint, now time.Time) int {
	if sp.Status == SprintPlanned {
		return 0
	}
	today := Date(now)
	switch {
	case today.Before(sp.StartDate):
		return 0
	case today.After(sp.EndDate):
		return DurationDays(sp)
	default:
		return daysBetween(sp.StartDate, today)
	}
}

// ComputeMetrics is a pure function of the loaded sprint state.
func ComputeMetrics(sp *Sprint, members []*Story, tasks []*Task, now time.Time) Metrics {
	m := Metrics{Status: sp.Status, TotalStories: len(members), TotalTasks: len(tasks)}
	for _, s := range members {
		m.TotalPoints += s.Points
		switch s.Status {
		case StatusDone:
			m.CompletedStories++
			m.CompletedPoints += s.Points
		case StatusInProgress:
			m.InProgressStories++
		case StatusTodo:
			m.TodoStories++
		}
	}
	m.Velocity = m.CompletedPoints
	m.RemainingPoints = m.TotalPoints - m.CompletedPoints
	if m.TotalStories > 0 {
		m.Progress = float64(m.CompletedStories) * 100 / float64(m.TotalStories)
	}

	for _, t := range tasks {
		switch t.Status {
		case StatusDone:
			m.CompletedTasks++
		case StatusInProgress:
			m.InProgressTasks++
		}
		m.EstimatedHours += t.EstimatedHours
		m.ActualHours += t.ActualHours
		m.RemainingHours += RemainingHours(t)
	}

	m.DurationDays = DurationDays(sp)
	m.ElapsedDays = ElapsedDays(sp, now)
	m.RemainingDays = max(0, m.DurationDays-m.ElapsedDays)
	if m.DurationDays > 0 {
		m.ExpectedVelocityRate = float64(m.TotalPoints) / float64(m.DurationDays)
	}
	if m.ElapsedDays > 0 {
		m.ActualVelocityRate = float64(m.CompletedPoints) / float64(m.ElapsedDays)
	}
	m.OnTrack = m.ElapsedDays == 0 || m.ActualVelocityRate >= m.ExpectedVelocityRate
	return m
}

type Burndown struct {
	TotalPoints     int       `json:"total_points"`
	RemainingPoints int       `json:"remaining_points"`
	CompletedPoints int       `json:"completed_points"`
	IdealRemaining  int       `json:"ideal_remaining"`
	ElapsedDays     int       `json:"elapsed_days"`
	DurationDays    int       `json:"duration_days"`
	IdealCurve      []float64 `json:"ideal_curve"`
	BehindIdeal     bool      `json:"behind_ideal"`
}

func ComputeBurndown(sp *Sprint, members []*Story, now time.Time) Burndown {
	b := Burndown{
		DurationDays: DurationDays(sp),
		ElapsedDays:  ElapsedDays(sp, now),
	}
	for _, s := range members {
		b.TotalPoints += s.Points
		if s.Status == StatusDone {
			b.CompletedPoints += s.Points
		}
	}
	b.RemainingPoints = b.TotalPoints - b.CompletedPoints

	var rate float64
	if b.DurationDays > 0 {
		rate = float64(b.TotalPoints) / float64(b.DurationDays)
	}
	b.IdealRemaining = int(float64(b.TotalPoints) - rate*float64(b.ElapsedDays))
	b.IdealCurve = make([]float64, 0, b.DurationDays+1)
	for day := 0; day <= b.DurationDays; day++ {
		b.IdealCurve = append(b.IdealCurve, float64(b.TotalPoints)-rate*float64(day))
	}
	b.BehindIdeal = b.RemainingPoints > b.IdealRemaining
	return b
}

type HealthLevel string

const (
	HealthExcellent HealthLevel = "excellent"
	HealthGood      HealthLevel = "good"
	HealthFair      HealthLevel = "fair"
	HealthCritical  HealthLevel = "critical"
)

const healthyThreshold = 70

type Health struct {
	Score           int          `json:"score"`
	Level           HealthLevel  `json:"level"`
	Healthy         bool         `json:"healthy"`
	Issues          []string     `json:"issues"`
	Warnings        []string     `json:"warnings"`
	Recommendations []string     `json:"recommendations"`
	Progress        float64      `json:"progress"`
	Status          SprintStatus `json:"status"`
}

// ComputeHealth scores a sprint. idx must resolve the members' dependencies.
func ComputeHealth(sp *Sprint, members []*Story, tasks []*Task, idx StoryIndex, now time.Time) Health {
	h := Health{Status: sp.Status, Issues: []string{}, Warnings: []string{}, Recommendations: []string{}}

	blocked := 0
	for _, s := range members {
		if !DependenciesCompleted(s, idx) {
			blocked++
		}
	}
	if blocked > 0 {
		h.Issues = append(h.Issues, fmt.Sprintf("%d stories with unmet dependencies", blocked))
		h.Recommendations = append(h.Recommendations, "Finish or remove the blocking stories before continuing")
	}

	unassigned, over := 0, 0
	for _, t := range tasks {
		if t.AssigneeID == "" {
			unassigned++
		}
		if IsOverEstimate(t) {
			over++
		}
	}
	if unassigned > 0 {
		h.Warnings = append(h.Warnings, fmt.Sprintf("%d unassigned tasks", unassigned))
		h.Recommendations = append(h.Recommendations, "Assign every task for better visibility")
	}
	if over > 0 {
		h.Warnings = append(h.Warnings, fmt.Sprintf("%d tasks over estimate", over))
	}

	m := ComputeMetrics(sp, members, tasks, now)
	h.Progress = m.Progress
	if m.DurationDays > 0 {
		expected := float64(m.ElapsedDays) * 100 / float64(m.DurationDays)
		if m.Progress < expected-20 {
			h.Warnings = append(h.Warnings, fmt.Sprintf("sprint behind schedule: %.1f%% done vs %.1f%% expected", m.Progress, expected))
			h.Recommendations = append(h.Recommendations, "Reduce scope or add capacity")
		}
	}

	h.Score = HealthScore(len(h.Issues), len(h.Warnings), h.Progress)
	h.Level = LevelFor(h.Score)
	h.Healthy = h.Score >= healthyThreshold
	return h
}

func HealthScore(issues, warnings int, progress float64) int {
	score := 100 - issues*20 - warnings*10
	switch {
	case progress > 80:
		score += 10
	case progress < 30:
		score -= 10
	}
	return min(100, max(0, score))
}

func LevelFor(score int) HealthLevel {
	switch {
	case score >= 80:
		return HealthExcellent
	case score >= 60:
		return HealthGood
	case score >= 40:
		return HealthFair
	default:
		return HealthCritical
	}
}
