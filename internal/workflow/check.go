package workflow

import (
	"fmt"
	"strings"
)

// Check is a dry-run verdict on an operation. Errors block it, warnings do not.
type Check struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (c Check) OK() bool { return len(c.Errors) == 0 }

func (c *Check) errorf(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Sprintf(format, args...))
}

func (c *Check) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func newCheck() Check {
	return Check{Errors: []string{}, Warnings: []string{}}
}

func CheckSprintStart(sp *Sprint, members []*Story, activeInProject int, idx StoryIndex) Check {
	c := newCheck()
	if sp.Status != SprintPlanned {
		c.errorf("sprint is %s, only planned sprints can start", sp.Status)
	}
	if activeInProject > 0 {
		c.errorf("project already has an active sprint")
	}
	if len(members) == 0 {
		c.errorf("sprint has no stories")
	}
	for _, s := range members {
		if unmet := UnmetDependencies(s, idx); len(unmet) > 0 {
			c.errorf("story %s waits on %s", s.ID, strings.Join(unmet, ", "))
		}
		if !IsReady(s) {
			c.warnf("story %s is not ready", s.ID)
		}
	}
	if sp.Capacity != nil {
		if allocated := allocatedPoints(members); allocated > *sp.Capacity {
			c.warnf("allocated %d points exceed capacity %d", allocated, *sp.Capacity)
		}
	}
	if strings.TrimSpace(sp.Goal) == "" {
		c.warnf("sprint has no goal")
	}
	return c
}

func CheckStoryAdd(sp *Sprint, s *Story, m Membership) Check {
	c := newCheck()
	if IsClosed(sp) {
		c.errorf("sprint is %s", sp.Status)
	}
	if s.ProjectID != sp.ProjectID {
		c.errorf("story belongs to another project")
	}
	if s.Status == StatusDone {
		c.errorf("story is done")
	}
	if m.Current != nil && m.Current.ID != sp.ID && !IsClosed(m.Current) {
		c.errorf("story is already in sprint %d", m.Current.Number)
	}
	if unmet := UnmetDependencies(s, m.Index); len(unmet) > 0 {
		c.errorf("dependencies not done: %s", strings.Join(unmet, ", "))
	}
	if sp.Capacity != nil && s.SprintID != sp.ID {
		if allocated := allocatedPoints(m.Members); allocated+s.Points > *sp.Capacity {
			c.errorf("capacity exceeded: %d allocated + %d > %d", allocated, s.Points, *sp.Capacity)
		}
	}
	if s.Points == 0 {
		c.warnf("story has no estimate")
	}
	if !s.Criteria.Valid() {
		c.warnf("story has no acceptance criteria")
	}
	return c
}

func CheckStoryRemove(sp *Sprint, s *Story, tasks []*Task) Check {
	c := newCheck()
	if IsClosed(sp) {
		c.errorf("sprint is %s", sp.Status)
	}
	if s.SprintID != sp.ID {
		c.errorf("story is not in this sprint")
	}
	for _, t := range tasks {
		if t.Status == StatusInProgress {
			c.errorf("task %s is in progress", t.ID)
		}
	}
	if sp.Status == SprintActive {
		c.warnf("removing scope from an active sprint")
	}
	return c
}

// CheckTaskStart reviews starting t. sp is the task's sprint, or nil.
func CheckTaskStart(t *Task, story *Story, sp *Sprint, idx StoryIndex) Check {
	c := newCheck()
	if t.Status != StatusTodo {
		c.warnf("task is already %s", t.Status)
	}
	if t.AssigneeID == "" {
		c.errorf("task is unassigned")
	}
	if t.Blocked {
		c.errorf("task is blocked: %s", t.BlockReason)
	}
	if unmet := UnmetDependencies(story, idx); len(unmet) > 0 {
		c.errorf("story %s waits on %s", story.ID, strings.Join(unmet, ", "))
	}
	switch {
	case sp == nil:
		c.warnf("task is not in a sprint")
	case sp.Status != SprintActive:
		c.errorf("sprint %d is %s", sp.Number, sp.Status)
	}
	if t.EstimatedHours == 0 {
		c.warnf("task has no estimate")
	}
	return c
}

func CheckTaskReview(t *Task) Check {
	c := newCheck()
	if t.Status != StatusInProgress {
		c.errorf("task is %s, must be in progress", t.Status)
	}
	if t.Blocked {
		c.errorf("task is blocked: %s", t.BlockReason)
	}
	if t.ActualHours <= 0 {
		c.errorf("no hours logged")
	}
	return c
}

func CheckTaskCompletion(t *Task) Check {
	c := newCheck()
	if !IsActive(t.Status) {
		c.errorf("task is %s, must be in progress, in review or testing", t.Status)
	}
	if t.Blocked {
		c.errorf("task is blocked: %s", t.BlockReason)
	}
	if t.ActualHours == 0 {
		c.warnf("no hours logged")
	}
	if t.EstimatedHours > 0 && t.ActualHours > t.EstimatedHours*1.5 {
		c.warnf("actual %.1fh is more than 150%% of estimate %.1fh", t.ActualHours, t.EstimatedHours)
	}
	return c
}
