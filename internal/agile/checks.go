package agile

import (
	"context"

	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

// The Check* operations are dry runs: they report what the matching
// operation would reject or warn about and never write.

func (s *Service) CheckSprintStart(ctx context.Context, sprintID string) (workflow.Check, error) {
	var c workflow.Check
	err := s.view(ctx, "CheckSprintStart", func(tx *store.Tx) error {
		st, err := loadSprint(tx, sprintID)
		if err != nil {
			return err
		}
		active, err := tx.CountSprints(st.sprint.ProjectID, workflow.SprintActive, st.sprint.ID)
		if err != nil {
			return err
		}
		idx, err := tx.StoryIndex(st.members...)
		if err != nil {
			return err
		}
		c = workflow.CheckSprintStart(st.sprint, st.members, active, idx)
		return nil
	}, sprintAttr(sprintID))
	return c, err
}

func (s *Service) CheckStoryAdd(ctx context.Context, sprintID, storyID string) (workflow.Check, error) {
	var c workflow.Check
	err := s.view(ctx, "CheckStoryAdd", func(tx *store.Tx) error {
		sp, err := tx.GetSprint(sprintID)
		if err != nil {
			return err
		}
		story, err := tx.GetStory(storyID)
		if err != nil {
			return err
		}
		m, _, err := membership(tx, sp, story)
		if err != nil {
			return err
		}
		c = workflow.CheckStoryAdd(sp, story, m)
		return nil
	}, sprintAttr(sprintID), storyAttr(storyID))
	return c, err
}

func (s *Service) CheckStoryRemove(ctx context.Context, sprintID, storyID string) (workflow.Check, error) {
	var c workflow.Check
	err := s.view(ctx, "CheckStoryRemove", func(tx *store.Tx) error {
		sp, err := tx.GetSprint(sprintID)
		if err != nil {
			return err
		}
		story, err := tx.GetStory(storyID)
		if err != nil {
			return err
		}
		tasks, err := tx.ListTasks(store.TaskFilter{StoryID: story.ID})
		if err != nil {
			return err
		}
		c = workflow.CheckStoryRemove(sp, story, tasks)
		return nil
	}, sprintAttr(sprintID), storyAttr(storyID))
	return c, err
}

func (s *Service) CheckTaskStart(ctx context.Context, taskID string) (workflow.Check, error) {
	var c workflow.Check
	err := s.view(ctx, "CheckTaskStart", func(tx *store.Tx) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		story, err := tx.GetStory(task.StoryID)
		if err != nil {
			return err
		}
		idx, err := tx.StoryIndex(story)
		if err != nil {
			return err
		}
		var sp *workflow.Sprint
		if task.SprintID != "" {
			if sp, err = tx.GetSprint(task.SprintID); err != nil {
				return err
			}
		}
		c = workflow.CheckTaskStart(task, story, sp, idx)
		return nil
	}, taskAttr(taskID))
	return c, err
}

func (s *Service) CheckTaskReview(ctx context.Context, taskID string) (workflow.Check, error) {
	var c workflow.Check
	err := s.view(ctx, "CheckTaskReview", func(tx *store.Tx) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		c = workflow.CheckTaskReview(task)
		return nil
	}, taskAttr(taskID))
	return c, err
}

func (s *Service) CheckTaskCompletion(ctx context.Context, taskID string) (workflow.Check, error) {
	var c workflow.Check
	err := s.view(ctx, "CheckTaskCompletion", func(tx *store.Tx) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		c = workflow.CheckTaskCompletion(task)
		return nil
	}, taskAttr(taskID))
	return c, err
}
