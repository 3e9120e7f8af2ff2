package workflow

import (
	"math"
	"strings"
	"time"
)

func NewTask(id string, story *Story, title string, estimatedHours float64, now time.Time) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationf("task title is required")
	}
	if !validHours(estimatedHours) {
		return nil, validationf("estimated hours must be >= 0")
	}
	if story.Status == StatusDone {
		return nil, invalidState("create task", story.Status, "story "+story.ID+" is done")
	}
	t := &Task{
		ID:             id,
		StoryID:        story.ID,
		SprintID:       story.SprintID,
		Title:          title,
		EstimatedHours: estimatedHours,
	}
	t.Status = StatusTodo
	touch(&t.Lifecycle, now)
	return t, nil
}

func Assign(t *Task, userID string, now time.Time) error {
	if t.AssigneeID != "" {
		return invalidState("assign task "+t.ID, t.Status, "task is already assigned")
	}
	if t.Status != StatusTodo {
		return invalidState("assign task "+t.ID, t.Status, "only todo tasks can be assigned")
	}
	t.AssigneeID = userID
	touch(&t.Lifecycle, now)
	return nil
}

func Reassign(t *Task, userID string, now time.Time) error {
	if t.Status == StatusDone {
		return invalidState("reassign task "+t.ID, t.Status, "task is done")
	}
	t.AssigneeID = userID
	touch(&t.Lifecycle, now)
	return nil
}

func Unassign(t *Task, now time.Time) error {
	if t.Status == StatusInProgress {
		return invalidState("unassign task "+t.ID, t.Status, "task is in progress")
	}
	t.AssigneeID = ""
	touch(&t.Lifecycle, now)
	return nil
}

// StartTask starts t and, when its story is still TODO, the story too.
// It reports whether the story was started.
func StartTask(t *Task, story *Story, idx StoryIndex, now time.Time) (bool, error) {
	op := "start task " + t.ID
	if t.AssigneeID == "" {
		return false, invalidState(op, t.Status, "task is unassigned")
	}
	if t.Blocked {
		return false, invalidState(op, t.Status, "task is blocked: "+t.BlockReason)
	}
	if unmet := UnmetDependencies(story, idx); len(unmet) > 0 {
		return false, invalidState(op, t.Status, "story "+story.ID+" has unmet dependencies", unmet...)
	}
	if !Start(t, now) {
		return false, nil
	}
	return Start(story, now), nil
}

func MoveToReview(t *Task, now time.Time) error {
	op := "move task " + t.ID + " to review"
	if t.Status != StatusInProgress {
		return invalidState(op, t.Status, "task must be in progress")
	}
	if t.Blocked {
		return invalidState(op, t.Status, "task is blocked: "+t.BlockReason)
	}
	if t.ActualHours <= 0 {
		return validationf("task %s: no hours logged", t.ID)
	}
	t.Status = StatusInReview
	touch(&t.Lifecycle, now)
	return nil
}

func MoveToTesting(t *Task, now time.Time) error {
	op := "move task " + t.ID + " to testing"
	if t.Status != StatusInProgress && t.Status != StatusInReview {
		return invalidState(op, t.Status, "task must be in progress or in review")
	}
	if t.Blocked {
		return invalidState(op, t.Status, "task is blocked: "+t.BlockReason)
	}
	t.Status = StatusTesting
	touch(&t.Lifecycle, now)
	return nil
}

// CompleteTask completes t. siblings holds every task of the story,
// t included; when all are DONE the story is completed as well and
// CompleteTask reports true.
func CompleteTask(t *Task, story *Story, siblings []*Task, now time.Time) (bool, error) {
	if t.Blocked {
		return false, invalidState("complete task "+t.ID, t.Status, "task is blocked: "+t.BlockReason)
	}
	if err := Complete(t, now); err != nil {
		return false, err
	}
	completed := now
	t.CompletedAt = &completed
	clearBlock(t)

	for _, s := range siblings {
		if s.ID != t.ID && s.Status != StatusDone {
			return false, nil
		}
	}
	return finishStory(story, now), nil
}

// CanDeleteTask rejects deleting a DONE task.
func CanDeleteTask(t *Task) error {
	if t.Status == StatusDone {
		return invalidState("delete task "+t.ID, t.Status, "done tasks are kept")
	}
	return nil
}

// SettleStory completes story when the tasks left after a deletion are
// all DONE, and reports whether it did.
func SettleStory(story *Story, remaining []*Task, now time.Time) bool {
	if !AllTasksDone(remaining) {
		return false
	}
	return finishStory(story, now)
}

func finishStory(story *Story, now time.Time) bool {
	if story.Status == StatusDone {
		return false
	}
	story.Status = StatusDone
	story.PreBlockStatus = ""
	touch(&story.Lifecycle, now)
	return true
}

func BlockTask(t *Task, reason, by string, now time.Time) error {
	if t.Status == StatusTodo || t.Status == StatusDone {
		return invalidState("block task "+t.ID, t.Status, "only active tasks can be blocked")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return validationf("block reason is required")
	}
	if by == "" {
		by = "unassigned"
	}
	at := now
	t.Blocked = true
	t.BlockReason = reason
	t.BlockedAt = &at
	t.BlockedBy = by
	touch(&t.Lifecycle, now)
	return nil
}

func UnblockTask(t *Task, now time.Time) error {
	if !t.Blocked {
		return validationf("task %s is not blocked", t.ID)
	}
	if !IsActive(t.Status) {
		t.Status = StatusInProgress
	}
	clearBlock(t)
	touch(&t.Lifecycle, now)
	return nil
}

func clearBlock(t *Task) {
	t.Blocked = false
	t.BlockReason = ""
	t.BlockedAt = nil
	t.BlockedBy = ""
}

// MoveBackward returns t to the previous stage and reports the statuses
// it moved between.
func MoveBackward(t *Task, now time.Time) (from, to Status, err error) {
	from = t.Status
	to, err = Downgrade(from)
	if err != nil {
		return from, from, err
	}
	if err := UpdateStatus(t, to, now); err != nil {
		return from, from, err
	}
	return from, to, nil
}

func LogHours(t *Task, hours float64, now time.Time) error {
	if !validHours(hours) {
		return validationf("hours must be >= 0, got %v", hours)
	}
	if hours == 0 {
		return nil
	}
	t.ActualHours += hours
	touch(&t.Lifecycle, now)
	return nil
}

func UpdateEstimate(t *Task, hours float64, now time.Time) error {
	if !validHours(hours) {
		return validationf("estimated hours must be >= 0, got %v", hours)
	}
	if t.Status == StatusDone {
		return invalidState("update estimate "+t.ID, t.Status, "task is done")
	}
	t.EstimatedHours = hours
	touch(&t.Lifecycle, now)
	return nil
}

func validHours(h float64) bool {
	return h >= 0 && !math.IsInf(h, 0)
}

func HoursProgress(t *Task) float64 {
	if t.EstimatedHours <= 0 {
		return 0
	}
	return math.Min(100, t.ActualHours*100/t.EstimatedHours)
}

func RemainingHours(t *Task) float64 {
	return math.Max(0, t.EstimatedHours-t.ActualHours)
}

func IsOverEstimate(t *Task) bool {
	return t.ActualHours > t.EstimatedHours
}
