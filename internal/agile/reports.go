package agile

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

// reportConcurrency bounds the per-sprint reads ProjectReport runs at once.
const reportConcurrency = 4

func (s *Service) SprintMetrics(ctx context.Context, id string) (workflow.Metrics, error) {
	var m workflow.Metrics
	err := s.view(ctx, "SprintMetrics", func(tx *store.Tx) error {
		st, err := loadSprint(tx, id)
		if err != nil {
			return err
		}
		m = workflow.ComputeMetrics(st.sprint, st.members, st.tasks, s.clock.Now())
		return nil
	}, sprintAttr(id))
	return m, err
}

func (s *Service) SprintBurndown(ctx context.Context, id string) (workflow.Burndown, error) {
	var b workflow.Burndown
	err := s.view(ctx, "SprintBurndown", func(tx *store.Tx) error {
		st, err := loadSprint(tx, id)
		if err != nil {
			return err
		}
		b = workflow.ComputeBurndown(st.sprint, st.members, s.clock.Now())
		return nil
	}, sprintAttr(id))
	return b, err
}

func (s *Service) SprintHealth(ctx context.Context, id string) (workflow.Health, error) {
	var h workflow.Health
	err := s.view(ctx, "SprintHealth", func(tx *store.Tx) error {
		st, err := loadSprint(tx, id)
		if err != nil {
			return err
		}
		idx, err := tx.StoryIndex(st.members...)
		if err != nil {
			return err
		}
		h = workflow.ComputeHealth(st.sprint, st.members, st.tasks, idx, s.clock.Now())
		return nil
	}, sprintAttr(id))
	return h, err
}

type SprintVelocity struct {
	SprintID string `json:"sprint_id"`
	Number   int    `json:"number"`
	Velocity int    `json:"velocity"`
}

type VelocityReport struct {
	Sprints []SprintVelocity `json:"sprints"`
	Average float64          `json:"average"`
}

// Velocity reports the completed points of the project's last n completed
// sprints, oldest first. n <= 0 takes all of them.
func (s *Service) Velocity(ctx context.Context, projectKey string, n int) (VelocityReport, error) {
	var r VelocityReport
	err := s.view(ctx, "Velocity", func(tx *store.Tx) error {
		p, err := tx.GetProjectByKey(strings.ToLower(strings.TrimSpace(projectKey)))
		if err != nil {
			return err
		}
		sprints, err := tx.ListSprints(store.SprintFilter{ProjectID: p.ID, Status: workflow.SprintCompleted})
		if err != nil {
			return err
		}
		if n > 0 && len(sprints) > n {
			sprints = sprints[len(sprints)-n:]
		}
		r.Sprints = make([]SprintVelocity, 0, len(sprints))
		total := 0
		for _, sp := range sprints {
			members, err := tx.ListStories(store.StoryFilter{SprintID: sp.ID, Status: workflow.StatusDone})
			if err != nil {
				return err
			}
			v := 0
			for _, m := range members {
				v += m.Points
			}
			total += v
			r.Sprints = append(r.Sprints, SprintVelocity{SprintID: sp.ID, Number: sp.Number, Velocity: v})
		}
		if len(r.Sprints) > 0 {
			r.Average = float64(total) / float64(len(r.Sprints))
		}
		return nil
	})
	return r, err
}

type SprintReport struct {
	Sprint  *workflow.Sprint `json:"sprint"`
	Metrics workflow.Metrics `json:"metrics"`
	Health  workflow.Health  `json:"health"`
}

type ProjectReport struct {
	Project        *workflow.Project       `json:"project"`
	Backlog        *workflow.Backlog       `json:"backlog"`
	StoriesByState map[workflow.Status]int `json:"stories_by_status"`
	ReadyStories   int                     `json:"ready_stories"`
	Sprints        []SprintReport          `json:"sprints"`
}

// ProjectReport summarizes the backlog and every sprint of a project. The
// per-sprint reports are computed concurrently.
func (s *Service) ProjectReport(ctx context.Context, projectKey string) (*ProjectReport, error) {
	ctx, end := s.rec.Start(ctx, "ProjectReport")
	r, err := s.projectReport(ctx, projectKey)
	end(err)
	return r, err
}

func (s *Service) projectReport(ctx context.Context, projectKey string) (*ProjectReport, error) {
	r := &ProjectReport{StoriesByState: make(map[workflow.Status]int)}
	var sprints []*workflow.Sprint
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		if r.Project, r.Backlog, err = projectBacklog(tx, projectKey); err != nil {
			return err
		}
		stories, err := tx.ListStories(store.StoryFilter{ProjectID: r.Project.ID})
		if err != nil {
			return err
		}
		idx, err := tx.StoryIndex(stories...)
		if err != nil {
			return err
		}
		for _, st := range stories {
			r.StoriesByState[st.Status]++
			if st.SprintID == "" && workflow.IsReady(st) && workflow.CanBeStarted(st, idx) {
				r.ReadyStories++
			}
		}
		sprints, err = tx.ListSprints(store.SprintFilter{ProjectID: r.Project.ID})
		return err
	})
	if err != nil {
		return nil, err
	}

	r.Sprints = make([]SprintReport, len(sprints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reportConcurrency)
	for i, sp := range sprints {
		i, sp := i, sp
		g.Go(func() error {
			return s.store.View(gctx, func(tx *store.Tx) error {
				st, err := loadSprint(tx, sp.ID)
				if err != nil {
					return err
				}
				idx, err := tx.StoryIndex(st.members...)
				if err != nil {
					return err
				}
				now := s.clock.Now()
				r.Sprints[i] = SprintReport{
					Sprint:  st.sprint,
					Metrics: workflow.ComputeMetrics(st.sprint, st.members, st.tasks, now),
					Health:  workflow.ComputeHealth(st.sprint, st.members, st.tasks, idx, now),
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r, nil
}
