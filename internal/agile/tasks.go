package agile

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

// TaskOutcome is the result of a task transition that may cascade into its
// story.
type TaskOutcome struct {
	Task  *workflow.Task  `json:"task"`
	Story *workflow.Story `json:"story"`
	// StoryChanged is set when the story was started or completed too.
	StoryChanged bool `json:"story_changed"`
}

func taskAttr(id string) attribute.KeyValue {
	return attribute.String("af.task", id)
}

func (s *Service) CreateTask(ctx context.Context, storyID, title, description string, estimatedHours float64) (*workflow.Task, error) {
	var task *workflow.Task
	err := s.update(ctx, "CreateTask", func(tx *store.Tx, now time.Time) error {
		story, err := tx.GetStory(strings.TrimSpace(storyID))
		if err != nil {
			return err
		}
		p, err := tx.GetProject(story.ProjectID)
		if err != nil {
			return err
		}
		task, err = workflow.NewTask(store.NewID(p.Key+"-t"), story, title, estimatedHours, now)
		if err != nil {
			return err
		}
		task.Description = strings.TrimSpace(description)
		return tx.CreateTask(task)
	}, storyAttr(storyID))
	if err != nil {
		return nil, err
	}
	s.log.Info("task created", "task", task.ID, "story", task.StoryID)
	return task, nil
}

func (s *Service) GetTask(ctx context.Context, id string) (*workflow.Task, error) {
	var task *workflow.Task
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		task, err = tx.GetTask(strings.TrimSpace(id))
		return err
	})
	return task, err
}

func (s *Service) ListTasks(ctx context.Context, f store.TaskFilter) ([]*workflow.Task, error) {
	var out []*workflow.Task
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListTasks(f)
		return err
	})
	return out, err
}

// mutateTask loads a task, applies fn and saves it.
func (s *Service) mutateTask(ctx context.Context, op, id string, fn func(tx *store.Tx, task *workflow.Task, now time.Time) error) (*workflow.Task, error) {
	var task *workflow.Task
	err := s.update(ctx, op, func(tx *store.Tx, now time.Time) error {
		var err error
		task, err = tx.GetTask(strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if err := fn(tx, task, now); err != nil {
			return err
		}
		return tx.SaveTask(task)
	}, taskAttr(id))
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Service) AssignTask(ctx context.Context, id, username string) (*workflow.Task, error) {
	task, err := s.mutateTask(ctx, "AssignTask", id, func(tx *store.Tx, task *workflow.Task, now time.Time) error {
		u, err := tx.GetUserByName(strings.TrimSpace(username))
		if err != nil {
			return err
		}
		return workflow.Assign(task, u.ID, now)
	})
	if err == nil {
		s.log.Info("task assigned", "task", task.ID, "user", username)
	}
	return task, err
}

func (s *Service) ReassignTask(ctx context.Context, id, username string) (*workflow.Task, error) {
	task, err := s.mutateTask(ctx, "ReassignTask", id, func(tx *store.Tx, task *workflow.Task, now time.Time) error {
		u, err := tx.GetUserByName(strings.TrimSpace(username))
		if err != nil {
			return err
		}
		return workflow.Reassign(task, u.ID, now)
	})
	if err == nil {
		s.log.Info("task reassigned", "task", task.ID, "user", username)
	}
	return task, err
}

func (s *Service) UnassignTask(ctx context.Context, id string) (*workflow.Task, error) {
	return s.mutateTask(ctx, "UnassignTask", id, func(_ *store.Tx, task *workflow.Task, now time.Time) error {
		return workflow.Unassign(task, now)
	})
}

// StartTask starts the task and, when its story is still todo, the story.
func (s *Service) StartTask(ctx context.Context, id string) (*TaskOutcome, error) {
	out := &TaskOutcome{}
	_, err := s.mutateTask(ctx, "StartTask", id, func(tx *store.Tx, task *workflow.Task, now time.Time) error {
		story, err := tx.GetStory(task.StoryID)
		if err != nil {
			return err
		}
		idx, err := tx.StoryIndex(story)
		if err != nil {
			return err
		}
		started, err := workflow.StartTask(task, story, idx, now)
		if err != nil {
			return err
		}
		*out = TaskOutcome{Task: task, Story: story, StoryChanged: started}
		if started {
			return tx.SaveStory(story)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("task started", "task", out.Task.ID, "status", out.Task.Status)
	if out.StoryChanged {
		s.log.Info("story started", "story", out.Story.ID, "by_task", out.Task.ID)
	}
	return out, nil
}

func (s *Service) MoveTaskToReview(ctx context.Context, id string) (*workflow.Task, error) {
	task, err := s.mutateTask(ctx, "MoveTaskToReview", id, func(_ *store.Tx, task *workflow.Task, now time.Time) error {
		return workflow.MoveToReview(task, now)
	})
	if err == nil {
		s.log.Info("task in review", "task", task.ID)
	}
	return task, err
}

func (s *Service) MoveTaskToTesting(ctx context.Context, id string) (*workflow.Task, error) {
	task, err := s.mutateTask(ctx, "MoveTaskToTesting", id, func(_ *store.Tx, task *workflow.Task, now time.Time) error {
		return workflow.MoveToTesting(task, now)
	})
	if err == nil {
		s.log.Info("task in testing", "task", task.ID)
	}
	return task, err
}

// CompleteTask completes the task and, once every task of the story is
// done, the story.
func (s *Service) CompleteTask(ctx context.Context, id string) (*TaskOutcome, error) {
	out := &TaskOutcome{}
	_, err := s.mutateTask(ctx, "CompleteTask", id, func(tx *store.Tx, task *workflow.Task, now time.Time) error {
		story, err := tx.GetStory(task.StoryID)
		if err != nil {
			return err
		}
		siblings, err := tx.ListTasks(store.TaskFilter{StoryID: story.ID})
		if err != nil {
			return err
		}
		for i, sib := range siblings {
			if sib.ID == task.ID {
				siblings[i] = task
			}
		}
		completed, err := workflow.CompleteTask(task, story, siblings, now)
		if err != nil {
			return err
		}
		*out = TaskOutcome{Task: task, Story: story, StoryChanged: completed}
		if completed {
			return tx.SaveStory(story)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("task completed", "task", out.Task.ID, "actual_hours", out.Task.ActualHours)
	if out.StoryChanged {
		s.log.Info("story completed", "story", out.Story.ID, "by_task", out.Task.ID)
	}
	return out, nil
}

// BlockTask flags the task as blocked. by names who raised the block; it
// defaults to the assignee.
func (s *Service) BlockTask(ctx context.Context, id, reason, by string) (*workflow.Task, error) {
	task, err := s.mutateTask(ctx, "BlockTask", id, func(tx *store.Tx, task *workflow.Task, now time.Time) error {
		if by == "" && task.AssigneeID != "" {
			u, err := tx.GetUser(task.AssigneeID)
			if err != nil {
				return err
			}
			by = u.Username
		}
		return workflow.BlockTask(task, reason, by, now)
	})
	if err == nil {
		s.log.Info("task blocked", "task", task.ID, "reason", task.BlockReason, "by", task.BlockedBy)
	}
	return task, err
}

func (s *Service) UnblockTask(ctx context.Context, id string) (*workflow.Task, error) {
	task, err := s.mutateTask(ctx, "UnblockTask", id, func(_ *store.Tx, task *workflow.Task, now time.Time) error {
		return workflow.UnblockTask(task, now)
	})
	if err == nil {
		s.log.Info("task unblocked", "task", task.ID, "status", task.Status)
	}
	return task, err
}

// MoveTaskBackward returns the task one stage. The reason is not stored;
// it lives only in the log.
func (s *Service) MoveTaskBackward(ctx context.Context, id, reason string) (*workflow.Task, error) {
	var from, to workflow.Status
	task, err := s.mutateTask(ctx, "MoveTaskBackward", id, func(_ *store.Tx, task *workflow.Task, now time.Time) error {
		var err error
		from, to, err = workflow.MoveBackward(task, now)
		return err
	})
	if err == nil {
		s.log.Info("task moved backward", "task", task.ID, "from", from, "to", to, "reason", reason)
	}
	return task, err
}

func (s *Service) LogHours(ctx context.Context, id string, hours float64) (*workflow.Task, error) {
	return s.mutateTask(ctx, "LogHours", id, func(_ *store.Tx, task *workflow.Task, now time.Time) error {
		return workflow.LogHours(task, hours, now)
	})
}

func (s *Service) UpdateEstimate(ctx context.Context, id string, hours float64) (*workflow.Task, error) {
	return s.mutateTask(ctx, "UpdateEstimate", id, func(_ *store.Tx, task *workflow.Task, now time.Time) error {
		return workflow.UpdateEstimate(task, hours, now)
	})
}

// DeleteTask removes a task that is not DONE. When every task left on the
// story is DONE the story is completed in the same transaction.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	var settled *workflow.Story
	err := s.update(ctx, "DeleteTask", func(tx *store.Tx, now time.Time) error {
		task, err := tx.GetTask(id)
		if err != nil {
			return err
		}
		if err := workflow.CanDeleteTask(task); err != nil {
			return err
		}
		if err := tx.DeleteTask(id); err != nil {
			return err
		}
		story, err := tx.GetStory(task.StoryID)
		if err != nil {
			return err
		}
		remaining, err := tx.ListTasks(store.TaskFilter{StoryID: story.ID})
		if err != nil {
			return err
		}
		if !workflow.SettleStory(story, remaining, now) {
			return nil
		}
		settled = story
		return tx.SaveStory(story)
	}, taskAttr(id))
	if err != nil {
		return err
	}
	s.log.Info("task deleted", "task", id)
	if settled != nil {
		s.log.Info("story completed", "story", settled.ID, "by_deleting", id)
	}
	return nil
}
