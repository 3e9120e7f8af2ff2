package agile

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

type NewStory struct {
	Title       string
	Points      int
	Description workflow.Description
	Criteria    workflow.AcceptanceCriteria
	// Epic is an epic name or ID within the project; optional.
	Epic string
}

func storyAttr(id string) attribute.KeyValue {
	return attribute.String("af.story", id)
}

func (s *Service) CreateStory(ctx context.Context, projectKey string, in NewStory) (*workflow.Story, error) {
	var story *workflow.Story
	err := s.update(ctx, "CreateStory", func(tx *store.Tx, now time.Time) error {
		p, b, err := projectBacklog(tx, projectKey)
		if err != nil {
			return err
		}
		story, err = workflow.NewStory(store.NewID(p.Key), p.ID, b.ID, in.Title, in.Points, now)
		if err != nil {
			return err
		}
		story.Description = in.Description
		story.Criteria = in.Criteria
		if in.Epic != "" {
			e, err := resolveEpic(tx, b.ID, in.Epic)
			if err != nil {
				return err
			}
			story.EpicID = e.ID
		}
		return tx.CreateStory(story)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("story created", "story", story.ID, "project", projectKey)
	return story, nil
}

func resolveEpic(tx *store.Tx, backlogID, ref string) (*workflow.Epic, error) {
	e, err := tx.GetEpicByName(backlogID, ref)
	if err == nil {
		return e, nil
	}
	e, err = tx.GetEpic(ref)
	if err != nil {
		return nil, err
	}
	if e.BacklogID != backlogID {
		return nil, fmt.Errorf("%w: epic %q belongs to another backlog", workflow.ErrInvalidState, ref)
	}
	return e, nil
}

func (s *Service) GetStory(ctx context.Context, id string) (*workflow.Story, error) {
	var story *workflow.Story
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		story, err = tx.GetStory(strings.TrimSpace(id))
		return err
	})
	return story, err
}

// ListStories lists a project's stories in priority order. The filter's
// ProjectID is taken from projectKey.
func (s *Service) ListStories(ctx context.Context, projectKey string, f store.StoryFilter) ([]*workflow.Story, error) {
	var out []*workflow.Story
	err := s.store.View(ctx, func(tx *store.Tx) error {
		p, err := tx.GetProjectByKey(strings.ToLower(strings.TrimSpace(projectKey)))
		if err != nil {
			return err
		}
		f.ProjectID = p.ID
		out, err = tx.ListStories(f)
		return err
	})
	return out, err
}

// StoryTasks returns the tasks of a story.
func (s *Service) StoryTasks(ctx context.Context, storyID string) ([]*workflow.Task, error) {
	var out []*workflow.Task
	err := s.store.View(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetStory(storyID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListTasks(store.TaskFilter{StoryID: storyID})
		return err
	})
	return out, err
}

// mutateStory loads a story, applies fn and saves it.
func (s *Service) mutateStory(ctx context.Context, op, id string, fn func(tx *store.Tx, story *workflow.Story, now time.Time) error) (*workflow.Story, error) {
	var story *workflow.Story
	err := s.update(ctx, op, func(tx *store.Tx, now time.Time) error {
		var err error
		story, err = tx.GetStory(strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if err := fn(tx, story, now); err != nil {
			return err
		}
		return tx.SaveStory(story)
	}, storyAttr(id))
	if err != nil {
		return nil, err
	}
	return story, nil
}

// SetStoryMetrics sets the estimate and the prioritization scores.
func (s *Service) SetStoryMetrics(ctx context.Context, id string, points int, sc workflow.Scores) (*workflow.Story, error) {
	return s.mutateStory(ctx, "SetStoryMetrics", id, func(_ *store.Tx, story *workflow.Story, now time.Time) error {
		if err := workflow.SetScores(story, sc, now); err != nil {
			return err
		}
		if story.Points == points {
			return nil
		}
		return workflow.SetPoints(story, points, now)
	})
}

func (s *Service) SetStoryDescription(ctx context.Context, id string, d workflow.Description) (*workflow.Story, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: description needs role, action and purpose", workflow.ErrValidation)
	}
	return s.mutateStory(ctx, "SetStoryDescription", id, func(_ *store.Tx, story *workflow.Story, now time.Time) error {
		story.Description = d
		workflow.Touch(story, now)
		return nil
	})
}

func (s *Service) SetAcceptanceCriteria(ctx context.Context, id string, c workflow.AcceptanceCriteria) (*workflow.Story, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: acceptance criteria need given, when and then clauses", workflow.ErrValidation)
	}
	return s.mutateStory(ctx, "SetAcceptanceCriteria", id, func(_ *store.Tx, story *workflow.Story, now time.Time) error {
		story.Criteria = c
		workflow.Touch(story, now)
		return nil
	})
}

// SetDependencies replaces the story's dependencies. Every dependency must be
// a story of the same project, and the result must not close a cycle.
func (s *Service) SetDependencies(ctx context.Context, id string, deps []string) (*workflow.Story, error) {
	return s.mutateStory(ctx, "SetDependencies", id, func(tx *store.Tx, story *workflow.Story, now time.Time) error {
		normalized, err := workflow.NormalizeDependencies(story.ID, deps)
		if err != nil {
			return err
		}
		for _, dep := range normalized {
			d, err := tx.GetStory(dep)
			if err != nil {
				return err
			}
			if d.ProjectID != story.ProjectID {
				return fmt.Errorf("%w: dependency %s belongs to another project", workflow.ErrInvalidState, dep)
			}
		}
		graph, err := tx.DependencyGraph(story.ProjectID)
		if err != nil {
			return err
		}
		graph[story.ID] = normalized
		if cycle := workflow.FindCycle(story.ID, graph); cycle != nil {
			return fmt.Errorf("%w: %s", workflow.ErrCycleDetected, strings.Join(cycle, " -> "))
		}
		story.Dependencies = normalized
		workflow.Touch(story, now)
		return nil
	})
}

// AssignEpic moves the story under an epic; an empty epic clears it.
func (s *Service) AssignEpic(ctx context.Context, id, epic string) (*workflow.Story, error) {
	return s.mutateStory(ctx, "AssignEpic", id, func(tx *store.Tx, story *workflow.Story, now time.Time) error {
		story.EpicID = ""
		if epic = strings.TrimSpace(epic); epic != "" {
			e, err := resolveEpic(tx, story.BacklogID, epic)
			if err != nil {
				return err
			}
			story.EpicID = e.ID
		}
		workflow.Touch(story, now)
		return nil
	})
}

func (s *Service) StartStory(ctx context.Context, id string) (*workflow.Story, error) {
	story, err := s.mutateStory(ctx, "StartStory", id, func(tx *store.Tx, story *workflow.Story, now time.Time) error {
		idx, err := tx.StoryIndex(story)
		if err != nil {
			return err
		}
		return workflow.StartStory(story, idx, now)
	})
	if err == nil {
		s.log.Info("story started", "story", story.ID, "status", story.Status)
	}
	return story, err
}

func (s *Service) CompleteStory(ctx context.Context, id string) (*workflow.Story, error) {
	story, err := s.mutateStory(ctx, "CompleteStory", id, func(tx *store.Tx, story *workflow.Story, now time.Time) error {
		tasks, err := tx.ListTasks(store.TaskFilter{StoryID: story.ID})
		if err != nil {
			return err
		}
		return workflow.CompleteStory(story, tasks, now)
	})
	if err == nil {
		s.log.Info("story completed", "story", story.ID)
	}
	return story, err
}

func (s *Service) BlockStory(ctx context.Context, id string) (*workflow.Story, error) {
	story, err := s.mutateStory(ctx, "BlockStory", id, func(_ *store.Tx, story *workflow.Story, now time.Time) error {
		return workflow.BlockStory(story, now)
	})
	if err == nil {
		s.log.Info("story blocked", "story", story.ID, "from", story.PreBlockStatus)
	}
	return story, err
}

func (s *Service) UnblockStory(ctx context.Context, id string) (*workflow.Story, error) {
	story, err := s.mutateStory(ctx, "UnblockStory", id, func(_ *store.Tx, story *workflow.Story, now time.Time) error {
		return workflow.UnblockStory(story, now)
	})
	if err == nil {
		s.log.Info("story unblocked", "story", story.ID, "status", story.Status)
	}
	return story, err
}

// SetStoryStatus is the administrative override: it moves the story to any
// status without consulting the transition graph. reason is logged only.
func (s *Service) SetStoryStatus(ctx context.Context, id string, status workflow.Status, reason string) (*workflow.Story, error) {
	var from workflow.Status
	story, err := s.mutateStory(ctx, "SetStoryStatus", id, func(_ *store.Tx, story *workflow.Story, now time.Time) error {
		from = story.Status
		return workflow.UpdateStatus(story, status, now)
	})
	if err == nil {
		s.log.Info("story status overridden", "story", story.ID, "from", from, "to", status, "reason", reason)
	}
	return story, err
}

// DeleteStory removes a story and its tasks, and drops it from the
// dependency lists of other stories.
func (s *Service) DeleteStory(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := s.update(ctx, "DeleteStory", func(tx *store.Tx, now time.Time) error {
		story, err := tx.GetStory(id)
		if err != nil {
			return err
		}
		tasks, err := tx.ListTasks(store.TaskFilter{StoryID: id})
		if err != nil {
			return err
		}
		if err := workflow.CanDelete(story, tasks); err != nil {
			return err
		}
		for _, t := range tasks {
			if err := tx.DeleteTask(t.ID); err != nil {
				return err
			}
		}

		siblings, err := tx.ListStories(store.StoryFilter{ProjectID: story.ProjectID})
		if err != nil {
			return err
		}
		for _, other := range siblings {
			i := slices.Index(other.Dependencies, id)
			if i < 0 {
				continue
			}
			other.Dependencies = slices.Delete(other.Dependencies, i, i+1)
			workflow.Touch(other, now)
			if err := tx.SaveStory(other); err != nil {
				return err
			}
		}
		return tx.DeleteStory(id)
	}, storyAttr(id))
	if err == nil {
		s.log.Info("story deleted", "story", id)
	}
	return err
}
