package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/satyaki-up/agileflow/internal/workflow"
)

const storyColumns = `id, project_id, backlog_id, epic_id, sprint_id, title, role, action, purpose, criteria,
	points, priority, business_value, urgency, time_criticality, risk_reduction, dependencies,
	status, pre_block_status, created_at, updated_at, version`

type StoryFilter struct {
	ProjectID string
	BacklogID string
	SprintID  string
	EpicID    string
	Status    workflow.Status
	IDs       []string
}

func scanStory(row scanner) (*workflow.Story, error) {
	var s workflow.Story
	var epic, sprint sql.NullString
	var criteriaRaw, depsRaw, created, updated string
	if err := row.Scan(
		&s.ID,
		&s.ProjectID,
		&s.BacklogID,
		&epic,
		&sprint,
		&s.Title,
		&s.Description.Role,
		&s.Description.Action,
		&s.Description.Purpose,
		&criteriaRaw,
		&s.Points,
		&s.Priority,
		&s.BusinessValue,
		&s.Urgency,
		&s.TimeCriticality,
		&s.RiskReduction,
		&depsRaw,
		&s.Status,
		&s.PreBlockStatus,
		&created,
		&updated,
		&s.Version,
	); err != nil {
		return nil, err
	}
	s.EpicID = epic.String
	s.SprintID = sprint.String

	if strings.TrimSpace(criteriaRaw) != "" {
		if err := json.Unmarshal([]byte(criteriaRaw), &s.Criteria); err != nil {
			return nil, fmt.Errorf("parse criteria for %s: %w", s.ID, err)
		}
	}
	s.Dependencies = []string{}
	if strings.TrimSpace(depsRaw) != "" {
		if err := json.Unmarshal([]byte(depsRaw), &s.Dependencies); err != nil {
			return nil, fmt.Errorf("parse dependencies for %s: %w", s.ID, err)
		}
	}

	var err error
	if s.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &s, nil
}

func storyJSON(s *workflow.Story) (criteria, deps string, err error) {
	c, err := json.Marshal(s.Criteria)
	if err != nil {
		return "", "", fmt.Errorf("marshal criteria: %w", err)
	}
	d := s.Dependencies
	if d == nil {
		d = []string{}
	}
	dj, err := json.Marshal(d)
	if err != nil {
		return "", "", fmt.Errorf("marshal dependencies: %w", err)
	}
	return string(c), string(dj), nil
}

func (t *Tx) CreateStory(s *workflow.Story) error {
	criteria, deps, err := storyJSON(s)
	if err != nil {
		return err
	}
	s.Version = 1
	_, err = t.exec(`INSERT INTO stories(`+storyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, s.BacklogID, nullString(s.EpicID), nullString(s.SprintID), s.Title,
		s.Description.Role, s.Description.Action, s.Description.Purpose, criteria,
		s.Points, s.Priority, s.BusinessValue, s.Urgency, s.TimeCriticality, s.RiskReduction, deps,
		string(s.Status), string(s.PreBlockStatus), formatTime(s.CreatedAt), formatTime(s.UpdatedAt), s.Version)
	return err
}

func (t *Tx) GetStory(id string) (*workflow.Story, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+storyColumns+` FROM stories WHERE id = ?`, id)
	s, err := scanStory(row)
	if err != nil {
		return nil, notFound(err, "story", id)
	}
	return s, nil
}

// SaveStory writes s if its version is current and bumps the version.
func (t *Tx) SaveStory(s *workflow.Story) error {
	criteria, deps, err := storyJSON(s)
	if err != nil {
		return err
	}
	res, err := t.exec(`
		UPDATE stories SET
			epic_id = ?, sprint_id = ?, title = ?, role = ?, action = ?, purpose = ?, criteria = ?,
			points = ?, priority = ?, business_value = ?, urgency = ?, time_criticality = ?, risk_reduction = ?,
			dependencies = ?, status = ?, pre_block_status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, nullString(s.EpicID), nullString(s.SprintID), s.Title, s.Description.Role, s.Description.Action, s.Description.Purpose, criteria,
		s.Points, s.Priority, s.BusinessValue, s.Urgency, s.TimeCriticality, s.RiskReduction,
		deps, string(s.Status), string(s.PreBlockStatus), formatTime(s.UpdatedAt), s.ID, s.Version)
	if err != nil {
		return err
	}
	if err := t.checkVersioned(res, "stories", "story", s.ID, s.Version); err != nil {
		return err
	}
	s.Version++
	return nil
}

func (t *Tx) DeleteStory(id string) error {
	return t.deleteByID("stories", "story", id)
}

func (t *Tx) ListStories(f StoryFilter) ([]*workflow.Story, error) {
	conds := []string{"1=1"}
	var args []any
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if f.ProjectID != "" {
		add("project_id = ?", f.ProjectID)
	}
	if f.BacklogID != "" {
		add("backlog_id = ?", f.BacklogID)
	}
	if f.SprintID != "" {
		add("sprint_id = ?", f.SprintID)
	}
	if f.EpicID != "" {
		add("epic_id = ?", f.EpicID)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return nil, nil
		}
		ph, idArgs := in(f.IDs)
		conds = append(conds, "id IN ("+ph+")")
		args = append(args, idArgs...)
	}
	query := fmt.Sprintf(`
		SELECT %s FROM stories
		WHERE %s
		ORDER BY CASE WHEN priority = 0 THEN 1 ELSE 0 END, priority, created_at, id
	`, storyColumns, strings.Join(conds, " AND "))

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*workflow.Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StoryIndex loads the given stories plus everything they depend on.
func (t *Tx) StoryIndex(stories ...*workflow.Story) (workflow.StoryIndex, error) {
	idx := workflow.IndexStories(stories...)
	var missing []string
	for _, s := range stories {
		for _, dep := range s.Dependencies {
			if _, ok := idx[dep]; !ok {
				missing = append(missing, dep)
			}
		}
	}
	if len(missing) == 0 {
		return idx, nil
	}
	deps, err := t.ListStories(StoryFilter{IDs: missing})
	if err != nil {
		return nil, err
	}
	for _, d := range deps {
		idx[d.ID] = d
	}
	return idx, nil
}

// DependencyGraph maps every story of the project to its dependencies.
func (t *Tx) DependencyGraph(projectID string) (map[string][]string, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT id, dependencies FROM stories WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	graph := make(map[string][]string)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var deps []string
		if err := json.Unmarshal([]byte(raw), &deps); err != nil {
			return nil, fmt.Errorf("parse dependencies for %s: %w", id, err)
		}
		graph[id] = deps
	}
	return graph, rows.Err()
}
