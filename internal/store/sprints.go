package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/satyaki-up/agileflow/internal/workflow"
)

const sprintColumns = `id, project_id, number, name, goal, start_date, end_date, status, capacity, created_at, updated_at, version`

type SprintFilter struct {
	ProjectID string
	Status    workflow.SprintStatus
}

func scanSprint(row scanner) (*workflow.Sprint, error) {
	var sp workflow.Sprint
	var start, end, created, updated string
	var capacity sql.NullInt64
	if err := row.Scan(
		&sp.ID,
		&sp.ProjectID,
		&sp.Number,
		&sp.Name,
		&sp.Goal,
		&start,
		&end,
		&sp.Status,
		&capacity,
		&created,
		&updated,
		&sp.Version,
	); err != nil {
		return nil, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		sp.Capacity = &c
	}
	var err error
	if sp.StartDate, err = time.ParseInLocation(dateLayout, start, time.UTC); err != nil {
		return nil, fmt.Errorf("parse start date for %s: %w", sp.ID, err)
	}
	if sp.EndDate, err = time.ParseInLocation(dateLayout, end, time.UTC); err != nil {
		return nil, fmt.Errorf("parse end date for %s: %w", sp.ID, err)
	}
	if sp.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if sp.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &sp, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func (t *Tx) CreateSprint(sp *workflow.Sprint) error {
	sp.Version = 1
	_, err := t.exec(`INSERT INTO sprints(`+sprintColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.ProjectID, sp.Number, sp.Name, sp.Goal,
		sp.StartDate.Format(dateLayout), sp.EndDate.Format(dateLayout), string(sp.Status), nullInt(sp.Capacity),
		formatTime(sp.CreatedAt), formatTime(sp.UpdatedAt), sp.Version)
	return err
}

func (t *Tx) GetSprint(id string) (*workflow.Sprint, error) {
	sp, err := scanSprint(t.tx.QueryRowContext(t.ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "sprint", id)
	}
	return sp, nil
}

func (t *Tx) GetSprintByNumber(projectID string, number int) (*workflow.Sprint, error) {
	sp, err := scanSprint(t.tx.QueryRowContext(t.ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE project_id = ? AND number = ?`, projectID, number))
	if err != nil {
		return nil, notFound(err, "sprint", fmt.Sprintf("%d", number))
	}
	return sp, nil
}

func (t *Tx) SaveSprint(sp *workflow.Sprint) error {
	res, err := t.exec(`
		UPDATE sprints SET
			name = ?, goal = ?, start_date = ?, end_date = ?, status = ?, capacity = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`, sp.Name, sp.Goal, sp.StartDate.Format(dateLayout), sp.EndDate.Format(dateLayout), string(sp.Status),
		nullInt(sp.Capacity), formatTime(sp.UpdatedAt), sp.ID, sp.Version)
	if err != nil {
		return err
	}
	if err := t.checkVersioned(res, "sprints", "sprint", sp.ID, sp.Version); err != nil {
		return err
	}
	sp.Version++
	return nil
}

func (t *Tx) DeleteSprint(id string) error {
	return t.deleteByID("sprints", "sprint", id)
}

func (t *Tx) ListSprints(f SprintFilter) ([]*workflow.Sprint, error) {
	conds := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	query := fmt.Sprintf(`SELECT %s FROM sprints WHERE %s ORDER BY project_id, number`,
		sprintColumns, strings.Join(conds, " AND "))
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*workflow.Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// CountSprints counts sprints of a project in status, ignoring excludeID.
func (t *Tx) CountSprints(projectID string, status workflow.SprintStatus, excludeID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COUNT(*) FROM sprints WHERE project_id = ? AND status = ? AND id != ?`,
		projectID, string(status), excludeID).Scan(&n)
	return n, err
}

func (t *Tx) MaxSprintNumber(projectID string) (int, error) {
	var n sql.NullInt64
	err := t.tx.QueryRowContext(t.ctx, `SELECT MAX(number) FROM sprints WHERE project_id = ?`, projectID).Scan(&n)
	return int(n.Int64), err
}
