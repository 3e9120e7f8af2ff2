package agile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

func sprintAttr(id string) attribute.KeyValue {
	return attribute.String("af.sprint", id)
}

func sprintID(projectKey string, number int) string {
	return fmt.Sprintf("%s-s%d", projectKey, number)
}

// CreateSprint creates a planned sprint. A zero number takes the next free
// number in the project.
func (s *Service) CreateSprint(ctx context.Context, projectKey string, p workflow.SprintParams) (*workflow.Sprint, error) {
	var sp *workflow.Sprint
	err := s.update(ctx, "CreateSprint", func(tx *store.Tx, now time.Time) error {
		var err error
		sp, err = createSprint(tx, projectKey, p, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sprint created", "sprint", sp.ID, "start", sp.StartDate.Format(time.DateOnly), "end", sp.EndDate.Format(time.DateOnly))
	return sp, nil
}

func createSprint(tx *store.Tx, projectKey string, p workflow.SprintParams, now time.Time) (*workflow.Sprint, error) {
	project, err := tx.GetProjectByKey(strings.ToLower(strings.TrimSpace(projectKey)))
	if err != nil {
		return nil, err
	}
	if p.Number == 0 {
		highest, err := tx.MaxSprintNumber(project.ID)
		if err != nil {
			return nil, err
		}
		p.Number = highest + 1
	}
	if p.Number > 0 {
		if existing, err := tx.GetSprintByNumber(project.ID, p.Number); err == nil {
			return nil, fmt.Errorf("%w: sprint %d already exists as %s", workflow.ErrInvalidState, p.Number, existing.ID)
		}
	}
	sp, err := workflow.NewSprint(sprintID(project.Key, p.Number), project.ID, p, now)
	if err != nil {
		return nil, err
	}
	return sp, tx.CreateSprint(sp)
}

func (s *Service) GetSprint(ctx context.Context, id string) (*workflow.Sprint, error) {
	var sp *workflow.Sprint
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		sp, err = tx.GetSprint(strings.TrimSpace(id))
		return err
	})
	return sp, err
}

func (s *Service) ListSprints(ctx context.Context, projectKey string, status workflow.SprintStatus) ([]*workflow.Sprint, error) {
	var out []*workflow.Sprint
	err := s.store.View(ctx, func(tx *store.Tx) error {
		p, err := tx.GetProjectByKey(strings.ToLower(strings.TrimSpace(projectKey)))
		if err != nil {
			return err
		}
		out, err = tx.ListSprints(store.SprintFilter{ProjectID: p.ID, Status: status})
		return err
	})
	return out, err
}

// sprintState is a sprint with its member stories and their tasks.
type sprintState struct {
	sprint  *workflow.Sprint
	members []*workflow.Story
	tasks   []*workflow.Task
}

func loadSprint(tx *store.Tx, id string) (*sprintState, error) {
	sp, err := tx.GetSprint(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	members, err := tx.ListStories(store.StoryFilter{SprintID: sp.ID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	tasks, err := tx.ListTasks(store.TaskFilter{StoryIDs: ids})
	if err != nil {
		return nil, err
	}
	return &sprintState{sprint: sp, members: members, tasks: tasks}, nil
}

func saveDetached(tx *store.Tx, d workflow.Detached) error {
	for _, story := range d.Stories {
		if err := tx.SaveStory(story); err != nil {
			return err
		}
	}
	for _, task := range d.Tasks {
		if err := tx.SaveTask(task); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) UpdateSprint(ctx context.Context, id string, p workflow.SprintParams) (*workflow.Sprint, error) {
	var sp *workflow.Sprint
	err := s.update(ctx, "UpdateSprint", func(tx *store.Tx, now time.Time) error {
		var err error
		sp, err = tx.GetSprint(strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if err := workflow.UpdateSprint(sp, p, now); err != nil {
			return err
		}
		return tx.SaveSprint(sp)
	}, sprintAttr(id))
	if err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) StartSprint(ctx context.Context, id string) (*workflow.Sprint, error) {
	var sp *workflow.Sprint
	err := s.update(ctx, "StartSprint", func(tx *store.Tx, now time.Time) error {
		st, err := loadSprint(tx, id)
		if err != nil {
			return err
		}
		sp = st.sprint
		active, err := tx.CountSprints(sp.ProjectID, workflow.SprintActive, sp.ID)
		if err != nil {
			return err
		}
		idx, err := tx.StoryIndex(st.members...)
		if err != nil {
			return err
		}
		if err := workflow.StartSprint(sp, st.members, active, idx, now); err != nil {
			return err
		}
		return tx.SaveSprint(sp)
	}, sprintAttr(id))
	if err != nil {
		return nil, err
	}
	s.log.Info("sprint started", "sprint", sp.ID)
	return sp, nil
}

// CompleteSprint closes the sprint, returning its final metrics. Stories
// that are not done go back to the backlog together with their tasks.
func (s *Service) CompleteSprint(ctx context.Context, id string) (workflow.Metrics, error) {
	var final workflow.Metrics
	var detached workflow.Detached
	err := s.update(ctx, "CompleteSprint", func(tx *store.Tx, now time.Time) error {
		st, err := loadSprint(tx, id)
		if err != nil {
			return err
		}
		final, detached, err = workflow.CompleteSprint(st.sprint, st.members, st.tasks, now)
		if err != nil {
			return err
		}
		if err := tx.SaveSprint(st.sprint); err != nil {
			return err
		}
		return saveDetached(tx, detached)
	}, sprintAttr(id))
	if err != nil {
		return workflow.Metrics{}, err
	}
	s.log.Info("sprint completed", "sprint", id, "velocity", final.Velocity, "released_stories", len(detached.Stories))
	return final, nil
}

func (s *Service) CancelSprint(ctx context.Context, id string) (*workflow.Sprint, error) {
	var sp *workflow.Sprint
	var detached workflow.Detached
	err := s.update(ctx, "CancelSprint", func(tx *store.Tx, now time.Time) error {
		st, err := loadSprint(tx, id)
		if err != nil {
			return err
		}
		sp = st.sprint
		detached, err = workflow.CancelSprint(sp, st.members, st.tasks, now)
		if err != nil {
			return err
		}
		if err := tx.SaveSprint(sp); err != nil {
			return err
		}
		return saveDetached(tx, detached)
	}, sprintAttr(id))
	if err != nil {
		return nil, err
	}
	s.log.Info("sprint cancelled", "sprint", sp.ID, "released_stories", len(detached.Stories))
	return sp, nil
}

// DeleteSprint deletes a planned sprint; its stories and tasks return to
// the backlog.
func (s *Service) DeleteSprint(ctx context.Context, id string) error {
	err := s.update(ctx, "DeleteSprint", func(tx *store.Tx, now time.Time) error {
		st, err := loadSprint(tx, id)
		if err != nil {
			return err
		}
		if err := workflow.CanDeleteSprint(st.sprint); err != nil {
			return err
		}
		for _, story := range st.members {
			story.SprintID = ""
			workflow.Touch(story, now)
			if err := tx.SaveStory(story); err != nil {
				return err
			}
		}
		for _, task := range st.tasks {
			if task.SprintID != st.sprint.ID {
				continue
			}
			task.SprintID = ""
			workflow.Touch(task, now)
			if err := tx.SaveTask(task); err != nil {
				return err
			}
		}
		return tx.DeleteSprint(st.sprint.ID)
	}, sprintAttr(id))
	if err == nil {
		s.log.Info("sprint deleted", "sprint", id)
	}
	return err
}

// CloneSprint creates the next planned sprint with the source sprint's goal
// and capacity. Zero dates continue right after the source sprint with the
// same duration; a zero number takes the next free one.
func (s *Service) CloneSprint(ctx context.Context, id string, p workflow.SprintParams) (*workflow.Sprint, error) {
	var clone *workflow.Sprint
	err := s.update(ctx, "CloneSprint", func(tx *store.Tx, now time.Time) error {
		src, err := tx.GetSprint(strings.TrimSpace(id))
		if err != nil {
			return err
		}
		project, err := tx.GetProject(src.ProjectID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(p.Goal) == "" {
			p.Goal = src.Goal
		}
		if p.Capacity == nil && src.Capacity != nil {
			capacity := *src.Capacity
			p.Capacity = &capacity
		}
		if p.StartDate.IsZero() {
			p.StartDate = src.EndDate.AddDate(0, 0, 1)
		}
		if p.EndDate.IsZero() {
			p.EndDate = p.StartDate.AddDate(0, 0, workflow.DurationDays(src))
		}
		clone, err = createSprint(tx, project.Key, p, now)
		return err
	}, sprintAttr(id))
	if err != nil {
		return nil, err
	}
	s.log.Info("sprint cloned", "from", id, "sprint", clone.ID)
	return clone, nil
}

// membership loads what AddStory needs to judge placing story into sp.
func membership(tx *store.Tx, sp *workflow.Sprint, story *workflow.Story) (workflow.Membership, []*workflow.Task, error) {
	var m workflow.Membership
	members, err := tx.ListStories(store.StoryFilter{SprintID: sp.ID})
	if err != nil {
		return m, nil, err
	}
	m.Members = members
	if story.SprintID != "" && story.SprintID != sp.ID {
		if m.Current, err = tx.GetSprint(story.SprintID); err != nil {
			return m, nil, err
		}
	}
	if m.Index, err = tx.StoryIndex(story); err != nil {
		return m, nil, err
	}
	tasks, err := tx.ListTasks(store.TaskFilter{StoryID: story.ID})
	if err != nil {
		return m, nil, err
	}
	return m, tasks, nil
}

func addStory(tx *store.Tx, sp *workflow.Sprint, story *workflow.Story, now time.Time) (bool, error) {
	m, tasks, err := membership(tx, sp, story)
	if err != nil {
		return false, err
	}
	added, err := workflow.AddStory(sp, story, tasks, m, now)
	if err != nil || !added {
		return false, err
	}
	if err := tx.SaveStory(story); err != nil {
		return false, err
	}
	for _, task := range tasks {
		if err := tx.SaveTask(task); err != nil {
			return false, err
		}
	}
	return true, tx.SaveSprint(sp)
}

func removeStory(tx *store.Tx, sp *workflow.Sprint, story *workflow.Story, now time.Time) error {
	tasks, err := tx.ListTasks(store.TaskFilter{StoryID: story.ID})
	if err != nil {
		return err
	}
	if err := workflow.RemoveStory(sp, story, tasks, now); err != nil {
		return err
	}
	if err := tx.SaveStory(story); err != nil {
		return err
	}
	for _, task := range tasks {
		if err := tx.SaveTask(task); err != nil {
			return err
		}
	}
	return tx.SaveSprint(sp)
}

// AddStoryToSprint places the story and its tasks into the sprint. Adding a
// story that is already a member changes nothing.
func (s *Service) AddStoryToSprint(ctx context.Context, sprintID, storyID string) (*workflow.Story, error) {
	var story *workflow.Story
	var added bool
	err := s.update(ctx, "AddStoryToSprint", func(tx *store.Tx, now time.Time) error {
		sp, err := tx.GetSprint(strings.TrimSpace(sprintID))
		if err != nil {
			return err
		}
		if story, err = tx.GetStory(strings.TrimSpace(storyID)); err != nil {
			return err
		}
		added, err = addStory(tx, sp, story, now)
		return err
	}, sprintAttr(sprintID), storyAttr(storyID))
	if err != nil {
		return nil, err
	}
	if added {
		s.log.Info("story added to sprint", "story", story.ID, "sprint", sprintID)
	}
	return story, nil
}

func (s *Service) RemoveStoryFromSprint(ctx context.Context, sprintID, storyID string) (*workflow.Story, error) {
	var story *workflow.Story
	err := s.update(ctx, "RemoveStoryFromSprint", func(tx *store.Tx, now time.Time) error {
		sp, err := tx.GetSprint(strings.TrimSpace(sprintID))
		if err != nil {
			return err
		}
		if story, err = tx.GetStory(strings.TrimSpace(storyID)); err != nil {
			return err
		}
		return removeStory(tx, sp, story, now)
	}, sprintAttr(sprintID), storyAttr(storyID))
	if err != nil {
		return nil, err
	}
	s.log.Info("story removed from sprint", "story", story.ID, "sprint", sprintID)
	return story, nil
}

// MoveStoryBetweenSprints removes the story from its current sprint and adds
// it to target in one transaction; either both happen or neither does.
func (s *Service) MoveStoryBetweenSprints(ctx context.Context, storyID, targetSprintID string) (*workflow.Story, error) {
	var story *workflow.Story
	var from string
	err := s.update(ctx, "MoveStoryBetweenSprints", func(tx *store.Tx, now time.Time) error {
		var err error
		if story, err = tx.GetStory(strings.TrimSpace(storyID)); err != nil {
			return err
		}
		if story.SprintID == "" {
			return &workflow.StateError{Op: "move story " + story.ID, Current: string(story.Status), Reason: "story is not in a sprint"}
		}
		from = story.SprintID
		target, err := tx.GetSprint(strings.TrimSpace(targetSprintID))
		if err != nil {
			return err
		}
		if target.ID == from {
			return nil
		}
		current, err := tx.GetSprint(from)
		if err != nil {
			return err
		}
		if err := removeStory(tx, current, story, now); err != nil {
			return err
		}
		_, err = addStory(tx, target, story, now)
		return err
	}, storyAttr(storyID), sprintAttr(targetSprintID))
	if err != nil {
		return nil, err
	}
	s.log.Info("story moved between sprints", "story", story.ID, "from", from, "to", story.SprintID)
	return story, nil
}
