package agile

import (
	"cmp"
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

// backlogStories returns the stories of a backlog that still await
// delivery, in their current priority order.
func backlogStories(tx *store.Tx, b *workflow.Backlog) ([]*workflow.Story, error) {
	all, err := tx.ListStories(store.StoryFilter{BacklogID: b.ID})
	if err != nil {
		return nil, err
	}
	open := all[:0]
	for _, st := range all {
		if st.Status != workflow.StatusDone {
			open = append(open, st)
		}
	}
	return open, nil
}

// PreviewPrioritization ranks the open backlog under method without
// writing anything.
func (s *Service) PreviewPrioritization(ctx context.Context, projectKey string, method workflow.Method) ([]workflow.Ranked, error) {
	var ranked []workflow.Ranked
	err := s.view(ctx, "PreviewPrioritization", func(tx *store.Tx) error {
		if _, err := workflow.ParseMethod(string(method)); err != nil {
			return err
		}
		_, b, err := projectBacklog(tx, projectKey)
		if err != nil {
			return err
		}
		stories, err := backlogStories(tx, b)
		if err != nil {
			return err
		}
		ranked = workflow.Rank(method, stories)
		return nil
	}, attribute.String("af.method", string(method)))
	return ranked, err
}

// ApplyPrioritization writes priorities 1..N to the open backlog. Any story
// missing a description or points fails the whole operation.
func (s *Service) ApplyPrioritization(ctx context.Context, projectKey string, method workflow.Method) ([]workflow.Ranked, error) {
	var ranked []workflow.Ranked
	err := s.update(ctx, "ApplyPrioritization", func(tx *store.Tx, now time.Time) error {
		_, b, err := projectBacklog(tx, projectKey)
		if err != nil {
			return err
		}
		stories, err := backlogStories(tx, b)
		if err != nil {
			return err
		}
		if ranked, err = workflow.Prioritize(method, stories); err != nil {
			return err
		}
		if len(ranked) == 0 {
			return nil
		}
		for _, r := range ranked {
			workflow.Touch(r.Story, now)
			if err := tx.SaveStory(r.Story); err != nil {
				return err
			}
		}
		b.Method = method
		b.TotalBusinessValue = workflow.TotalBusinessValue(stories)
		return tx.SaveBacklog(b)
	}, attribute.String("af.method", string(method)))
	if err != nil {
		return nil, err
	}
	s.log.Info("backlog prioritized", "project", projectKey, "method", method, "stories", len(ranked))
	return ranked, nil
}

// ReorderBacklog sets priorities by hand; ids must list every open story.
func (s *Service) ReorderBacklog(ctx context.Context, projectKey string, ids []string) ([]*workflow.Story, error) {
	var stories []*workflow.Story
	err := s.update(ctx, "ReorderBacklog", func(tx *store.Tx, now time.Time) error {
		_, b, err := projectBacklog(tx, projectKey)
		if err != nil {
			return err
		}
		if stories, err = backlogStories(tx, b); err != nil {
			return err
		}
		if err := workflow.Reorder(stories, ids); err != nil {
			return err
		}
		for _, st := range stories {
			workflow.Touch(st, now)
			if err := tx.SaveStory(st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(stories, func(a, b *workflow.Story) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	s.log.Info("backlog reordered", "project", projectKey)
	return stories, nil
}

// ReadyStories lists unscheduled stories that meet the definition of ready
// and could start now.
func (s *Service) ReadyStories(ctx context.Context, projectKey string) ([]*workflow.Story, error) {
	var out []*workflow.Story
	err := s.view(ctx, "ReadyStories", func(tx *store.Tx) error {
		_, b, err := projectBacklog(tx, projectKey)
		if err != nil {
			return err
		}
		stories, err := backlogStories(tx, b)
		if err != nil {
			return err
		}
		idx, err := tx.StoryIndex(stories...)
		if err != nil {
			return err
		}
		for _, st := range stories {
			if st.SprintID == "" && workflow.IsReady(st) && workflow.CanBeStarted(st, idx) {
				out = append(out, st)
			}
		}
		return nil
	})
	return out, err
}
