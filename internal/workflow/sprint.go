package workflow

import (
	"fmt"
	"strings"
	"time"
)

var sprintTransitions = map[SprintStatus]map[SprintStatus]bool{
	SprintPlanned: {
		SprintActive:    true,
		SprintCancelled: true,
	},
	SprintActive: {
		SprintCompleted: true,
		SprintCancelled: true,
	},
	SprintCompleted: {},
	SprintCancelled: {},
}

func IsValidSprintStatus(s SprintStatus) bool {
	_, ok := sprintTransitions[s]
	return ok
}

func validateSprintTransition(sp *Sprint, to SprintStatus) error {
	if !sprintTransitions[sp.Status][to] {
		return invalidState(fmt.Sprintf("move sprint %d to %s", sp.Number, to), sp.Status, "")
	}
	return nil
}

// IsClosed reports whether the sprint is read-only.
func IsClosed(sp *Sprint) bool {
	return sp.Status == SprintCompleted || sp.Status == SprintCancelled
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(Date(to).Sub(Date(from)).Hours() / 24)
}

type SprintParams struct {
	Number    int
	Goal      string
	StartDate time.Time
	EndDate   time.Time
	Capacity  *int
}

func (p SprintParams) validate() error {
	if p.Number <= 0 {
		return validationf("sprint number must be positive, got %d", p.Number)
	}
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return validationf("sprint start and end dates are required")
	}
	if Date(p.EndDate).Before(Date(p.StartDate)) {
		return validationf("sprint end date %s is before start date %s",
			Date(p.EndDate).Format(time.DateOnly), Date(p.StartDate).Format(time.DateOnly))
	}
	if p.Capacity != nil && *p.Capacity < 0 {
		return validationf("sprint capacity must be >= 0, got %d", *p.Capacity)
	}
	return nil
}

func NewSprint(id, projectID string, p SprintParams, now time.Time) (*Sprint, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Sprint{
		ID:        id,
		ProjectID: projectID,
		Number:    p.Number,
		Name:      fmt.Sprintf("Sprint %d", p.Number),
		Goal:      strings.TrimSpace(p.Goal),
		StartDate: Date(p.StartDate),
		EndDate:   Date(p.EndDate),
		Status:    SprintPlanned,
		Capacity:  p.Capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateSprint replaces dates, goal and capacity of an open sprint.
func UpdateSprint(sp *Sprint, p SprintParams, now time.Time) error {
	if IsClosed(sp) {
		return invalidState(fmt.Sprintf("update sprint %d", sp.Number), sp.Status, "sprint is closed")
	}
	p.Number = sp.Number
	if err := p.validate(); err != nil {
		return err
	}
	sp.Goal = strings.TrimSpace(p.Goal)
	sp.StartDate = Date(p.StartDate)
	sp.EndDate = Date(p.EndDate)
	sp.Capacity = p.Capacity
	touchSprint(sp, now)
	return nil
}

func touchSprint(sp *Sprint, now time.Time) {
	if now.After(sp.UpdatedAt) {
		sp.UpdatedAt = now
	}
}

// StartSprint activates sp. activeInProject counts the other ACTIVE
// sprints of the same project.
func StartSprint(sp *Sprint, members []*Story, activeInProject int, idx StoryIndex, now time.Time) error {
	op := fmt.Sprintf("start sprint %d", sp.Number)
	if sp.Status != SprintPlanned {
		return invalidState(op, sp.Status, "only planned sprints can start")
	}
	if activeInProject > 0 {
		return invalidState(op, sp.Status, "project already has an active sprint")
	}
	if len(members) == 0 {
		return invalidState(op, sp.Status, "sprint has no stories")
	}
	var offending []string
	for _, s := range members {
		if !DependenciesCompleted(s, idx) {
			offending = append(offending, s.ID)
		}
	}
	if len(offending) > 0 {
		return invalidState(op, sp.Status, "stories with unmet dependencies", offending...)
	}
	sp.Status = SprintActive
	touchSprint(sp, now)
	return nil
}

// Detached holds the stories and tasks released from a sprint.
type Detached struct {
	Stories []*Story
	Tasks   []*Task
}

// detachIncomplete releases every non-DONE member and its tasks. Statuses are
// left untouched.
func detachIncomplete(sp *Sprint, members []*Story, tasks []*Task, now time.Time) Detached {
	var d Detached
	released := make(map[string]bool)
	for _, s := range members {
		if s.Status == StatusDone || s.SprintID != sp.ID {
			continue
		}
		s.SprintID = ""
		touch(&s.Lifecycle, now)
		released[s.ID] = true
		d.Stories = append(d.Stories, s)
	}
	for _, t := range tasks {
		if released[t.StoryID] && t.SprintID == sp.ID {
			t.SprintID = ""
			touch(&t.Lifecycle, now)
			d.Tasks = append(d.Tasks, t)
		}
	}
	return d
}

// CompleteSprint closes an active sprint. The final metrics are computed
// before incomplete stories are released back to the backlog.
func CompleteSprint(sp *Sprint, members []*Story, tasks []*Task, now time.Time) (Metrics, Detached, error) {
	if err := validateSprintTransition(sp, SprintCompleted); err != nil {
		return Metrics{}, Detached{}, err
	}
	final := ComputeMetrics(sp, members, tasks, now)
	sp.Status = SprintCompleted
	touchSprint(sp, now)
	final.Status = sp.Status
	return final, detachIncomplete(sp, members, tasks, now), nil
}

func CancelSprint(sp *Sprint, members []*Story, tasks []*Task, now time.Time) (Detached, error) {
	if err := validateSprintTransition(sp, SprintCancelled); err != nil {
		return Detached{}, err
	}
	sp.Status = SprintCancelled
	touchSprint(sp, now)
	return detachIncomplete(sp, members, tasks, now), nil
}

// CanDeleteSprint allows deleting planned sprints only.
func CanDeleteSprint(sp *Sprint) error {
	if sp.Status != SprintPlanned {
		return invalidState(fmt.Sprintf("delete sprint %d", sp.Number), sp.Status, "only planned sprints can be deleted")
	}
	return nil
}

// Membership is the context needed to place a story into a sprint.
type Membership struct {
	Members []*Story
	// Current is the open sprint the story sits in, if any.
	Current *Sprint
	Index   StoryIndex
}

func allocatedPoints(members []*Story) int {
	sum := 0
	for _, s := range members {
		sum += s.Points
	}
	return sum
}

// AddStory places s and its tasks into sp. It reports false when s is
// already a member.
func AddStory(sp *Sprint, s *Story, tasks []*Task, m Membership, now time.Time) (bool, error) {
	op := fmt.Sprintf("add story %s to sprint %d", s.ID, sp.Number)
	if IsClosed(sp) {
		return false, invalidState(op, sp.Status, "sprint is closed")
	}
	if s.SprintID == sp.ID {
		return false, nil
	}
	if s.ProjectID != sp.ProjectID {
		return false, invalidState(op, sp.Status, "story belongs to another project")
	}
	if s.Status == StatusDone {
		return false, invalidState(op, s.Status, "story is done")
	}
	if m.Current != nil && m.Current.ID != sp.ID && !IsClosed(m.Current) {
		return false, invalidState(op, m.Current.Status, fmt.Sprintf("story is already in sprint %d", m.Current.Number))
	}
	if unmet := UnmetDependencies(s, m.Index); len(unmet) > 0 {
		return false, invalidState(op, s.Status, "dependencies not done", unmet...)
	}
	if sp.Capacity != nil {
		allocated := allocatedPoints(m.Members)
		if allocated+s.Points > *sp.Capacity {
			return false, validationf("sprint %d capacity exceeded: %d allocated + %d > %d",
				sp.Number, allocated, s.Points, *sp.Capacity)
		}
	}
	s.SprintID = sp.ID
	touch(&s.Lifecycle, now)
	for _, t := range tasks {
		t.SprintID = sp.ID
		touch(&t.Lifecycle, now)
	}
	touchSprint(sp, now)
	return true, nil
}

func RemoveStory(sp *Sprint, s *Story, tasks []*Task, now time.Time) error {
	op := fmt.Sprintf("remove story %s from sprint %d", s.ID, sp.Number)
	if IsClosed(sp) {
		return invalidState(op, sp.Status, "sprint is closed")
	}
	if s.SprintID != sp.ID {
		return invalidState(op, sp.Status, "story is not in this sprint")
	}
	var busy []string
	for _, t := range tasks {
		if t.Status == StatusInProgress {
			busy = append(busy, t.ID)
		}
	}
	if len(busy) > 0 {
		return invalidState(op, sp.Status, "tasks in progress", busy...)
	}
	s.SprintID = ""
	touch(&s.Lifecycle, now)
	for _, t := range tasks {
		if t.SprintID == sp.ID {
			t.SprintID = ""
			touch(&t.Lifecycle, now)
		}
	}
	touchSprint(sp, now)
	return nil
}
