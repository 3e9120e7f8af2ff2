package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/satyaki-up/agileflow/internal/workflow"
)

const taskColumns = `id, story_id, sprint_id, assignee_id, title, description, estimated_hours, actual_hours,
	status, blocked, block_reason, blocked_at, blocked_by, completed_at, created_at, updated_at, version`

type TaskFilter struct {
	StoryID    string
	StoryIDs   []string
	SprintID   string
	AssigneeID string
	Status     workflow.Status
	Blocked    bool
}

func scanTask(row scanner) (*workflow.Task, error) {
	var t workflow.Task
	var sprint, assignee, blockedAt, completedAt sql.NullString
	var created, updated string
	if err := row.Scan(
		&t.ID,
		&t.StoryID,
		&sprint,
		&assignee,
		&t.Title,
		&t.Description,
		&t.EstimatedHours,
		&t.ActualHours,
		&t.Status,
		&t.Blocked,
		&t.BlockReason,
		&blockedAt,
		&t.BlockedBy,
		&completedAt,
		&created,
		&updated,
		&t.Version,
	); err != nil {
		return nil, err
	}
	t.SprintID = sprint.String
	t.AssigneeID = assignee.String

	var err error
	if t.BlockedAt, err = parseNullTime(blockedAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tx) CreateTask(task *workflow.Task) error {
	task.Version = 1
	_, err := t.exec(`INSERT INTO tasks(`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.StoryID, nullString(task.SprintID), nullString(task.AssigneeID), task.Title, task.Description,
		task.EstimatedHours, task.ActualHours, string(task.Status), task.Blocked, task.BlockReason,
		nullTime(task.BlockedAt), task.BlockedBy, nullTime(task.CompletedAt),
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt), task.Version)
	return err
}

func (t *Tx) GetTask(id string) (*workflow.Task, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		return nil, notFound(err, "task", id)
	}
	return task, nil
}

func (t *Tx) SaveTask(task *workflow.Task) error {
	res, err := t.exec(`
		UPDATE tasks SET
			sprint_id = ?, assignee_id = ?, title = ?, description = ?, estimated_hours = ?, actual_hours = ?,
			status = ?, blocked = ?, block_reason = ?, blocked_at = ?, blocked_by = ?, completed_at = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, nullString(task.SprintID), nullString(task.AssigneeID), task.Title, task.Description, task.EstimatedHours, task.ActualHours,
		string(task.Status), task.Blocked, task.BlockReason, nullTime(task.BlockedAt), task.BlockedBy, nullTime(task.CompletedAt),
		formatTime(task.UpdatedAt), task.ID, task.Version)
	if err != nil {
		return err
	}
	if err := t.checkVersioned(res, "tasks", "task", task.ID, task.Version); err != nil {
		return err
	}
	task.Version++
	return nil
}

func (t *Tx) DeleteTask(id string) error {
	return t.deleteByID("tasks", "task", id)
}

func (t *Tx) ListTasks(f TaskFilter) ([]*workflow.Task, error) {
	conds := []string{"1=1"}
	var args []any
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if f.StoryID != "" {
		add("story_id = ?", f.StoryID)
	}
	if f.StoryIDs != nil {
		if len(f.StoryIDs) == 0 {
			return nil, nil
		}
		ph, idArgs := in(f.StoryIDs)
		conds = append(conds, "story_id IN ("+ph+")")
		args = append(args, idArgs...)
	}
	if f.SprintID != "" {
		add("sprint_id = ?", f.SprintID)
	}
	if f.AssigneeID != "" {
		add("assignee_id = ?", f.AssigneeID)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Blocked {
		conds = append(conds, "blocked = 1")
	}
	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE %s
		ORDER BY created_at ASC, id ASC
	`, taskColumns, strings.Join(conds, " AND "))

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*workflow.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}
