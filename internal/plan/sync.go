package plan

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/satyaki-up/agileflow/internal/agile"
	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

// Result maps the plan's story keys to the created story IDs.
type Result struct {
	Project *workflow.Project `json:"project"`
	Stories map[string]string `json:"stories"`
	Tasks   int               `json:"tasks"`
	Sprints []string          `json:"sprints"`
}

// Import creates the plan's project and everything in it. Each step is its
// own transaction; a failure leaves the steps before it in place and names
// the step that failed.
func Import(ctx context.Context, svc *agile.Service, p *Plan) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	project, err := svc.CreateProject(ctx, p.Project.Key, p.Project.Name, p.Project.Description)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", p.Project.Key, err)
	}
	res := &Result{Project: project, Stories: make(map[string]string, len(p.Stories))}

	existing, err := svc.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range p.Users {
		if slices.ContainsFunc(existing, func(u *workflow.User) bool { return u.Username == name }) {
			continue
		}
		if _, err := svc.CreateUser(ctx, name); err != nil {
			return nil, fmt.Errorf("user %s: %w", name, err)
		}
	}
	for _, e := range p.Epics {
		if _, err := svc.CreateEpic(ctx, project.Key, e.Name, e.Title, e.Description); err != nil {
			return nil, fmt.Errorf("epic %s: %w", e.Name, err)
		}
	}

	for _, s := range p.Stories {
		in := agile.NewStory{Title: s.Title, Points: s.Points, Epic: s.Epic}
		if s.Description != nil {
			in.Description = *s.Description
		}
		if s.Criteria != nil {
			in.Criteria = *s.Criteria
		}
		story, err := svc.CreateStory(ctx, project.Key, in)
		if err != nil {
			return nil, fmt.Errorf("story %s: %w", s.Key, err)
		}
		res.Stories[s.Key] = story.ID
		if s.Scores != nil {
			if _, err := svc.SetStoryMetrics(ctx, story.ID, s.Points, *s.Scores); err != nil {
				return nil, fmt.Errorf("story %s: %w", s.Key, err)
			}
		}
	}

	for _, s := range p.Stories {
		id := res.Stories[s.Key]
		if len(s.DependsOn) > 0 {
			deps := make([]string, len(s.DependsOn))
			for i, key := range s.DependsOn {
				deps[i] = res.Stories[key]
			}
			if _, err := svc.SetDependencies(ctx, id, deps); err != nil {
				return nil, fmt.Errorf("story %s: %w", s.Key, err)
			}
		}
		for _, t := range s.Tasks {
			task, err := svc.CreateTask(ctx, id, t.Title, t.Description, t.Estimate)
			if err != nil {
				return nil, fmt.Errorf("story %s task %q: %w", s.Key, t.Title, err)
			}
			if t.Assignee != "" {
				if _, err := svc.AssignTask(ctx, task.ID, t.Assignee); err != nil {
					return nil, fmt.Errorf("story %s task %q: %w", s.Key, t.Title, err)
				}
			}
			res.Tasks++
		}
	}

	for i, sp := range p.Sprints {
		params, err := sp.params()
		if err != nil {
			return nil, err
		}
		created, err := svc.CreateSprint(ctx, project.Key, params)
		if err != nil {
			return nil, fmt.Errorf("sprint %d: %w", i+1, err)
		}
		for _, key := range sp.Stories {
			if _, err := svc.AddStoryToSprint(ctx, created.ID, res.Stories[key]); err != nil {
				return nil, fmt.Errorf("sprint %d story %s: %w", created.Number, key, err)
			}
		}
		res.Sprints = append(res.Sprints, created.ID)
	}
	return res, nil
}

// Export renders a project as a plan. Statuses, hours and priorities are
// not part of a plan and are left out.
func Export(ctx context.Context, svc *agile.Service, projectKey string) (*Plan, error) {
	project, err := svc.GetProject(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	p := &Plan{Project: Project{Key: project.Key, Name: project.Name, Description: project.Description}}

	users, err := svc.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	usernames := make(map[string]string, len(users))
	for _, u := range users {
		usernames[u.ID] = u.Username
	}

	epics, err := svc.ListEpics(ctx, project.Key)
	if err != nil {
		return nil, err
	}
	epicNames := make(map[string]string, len(epics))
	for _, e := range epics {
		epicNames[e.ID] = e.Name
		p.Epics = append(p.Epics, Epic{Name: e.Name, Title: e.Title, Description: e.Description})
	}

	stories, err := svc.ListStories(ctx, project.Key, store.StoryFilter{})
	if err != nil {
		return nil, err
	}
	assignees := make(map[string]bool)
	for _, st := range stories {
		tasks, err := svc.StoryTasks(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		ps := Story{
			Key:       st.ID,
			Title:     st.Title,
			Points:    st.Points,
			Epic:      epicNames[st.EpicID],
			DependsOn: st.Dependencies,
		}
		if st.Description.Valid() {
			d := st.Description
			ps.Description = &d
		}
		if st.Criteria.Valid() {
			c := st.Criteria
			ps.Criteria = &c
		}
		if st.BusinessValue > 0 {
			ps.Scores = &workflow.Scores{
				BusinessValue:   st.BusinessValue,
				Urgency:         st.Urgency,
				TimeCriticality: st.TimeCriticality,
				RiskReduction:   st.RiskReduction,
			}
		}
		for _, t := range tasks {
			name := usernames[t.AssigneeID]
			if name != "" {
				assignees[name] = true
			}
			ps.Tasks = append(ps.Tasks, Task{Title: t.Title, Description: t.Description, Estimate: t.EstimatedHours, Assignee: name})
		}
		p.Stories = append(p.Stories, ps)
	}
	for _, u := range users {
		if assignees[u.Username] {
			p.Users = append(p.Users, u.Username)
		}
	}

	sprints, err := svc.ListSprints(ctx, project.Key, "")
	if err != nil {
		return nil, err
	}
	for _, sp := range sprints {
		if workflow.IsClosed(sp) {
			continue
		}
		ps := Sprint{
			Number:   sp.Number,
			Goal:     sp.Goal,
			Start:    sp.StartDate.Format(time.DateOnly),
			End:      sp.EndDate.Format(time.DateOnly),
			Capacity: sp.Capacity,
		}
		for _, st := range stories {
			if st.SprintID == sp.ID {
				ps.Stories = append(ps.Stories, st.ID)
			}
		}
		p.Sprints = append(p.Sprints, ps)
	}
	return p, nil
}
