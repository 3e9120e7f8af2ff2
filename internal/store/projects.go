package store

import (
	"github.com/satyaki-up/agileflow/internal/workflow"
)

const projectColumns = `id, key, name, description, created_at`

func scanProject(row scanner) (*workflow.Project, error) {
	var p workflow.Project
	var created string
	if err := row.Scan(&p.ID, &p.Key, &p.Name, &p.Description, &created); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = t
	return &p, nil
}

func (t *Tx) CreateProject(p *workflow.Project) error {
	_, err := t.exec(`INSERT INTO projects(`+projectColumns+`) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Key, p.Name, p.Description, formatTime(p.CreatedAt))
	return err
}

func (t *Tx) GetProject(id string) (*workflow.Project, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

func (t *Tx) GetProjectByKey(key string) (*workflow.Project, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+projectColumns+` FROM projects WHERE key = ?`, key)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, "project", key)
	}
	return p, nil
}

func (t *Tx) ListProjects() ([]*workflow.Project, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+projectColumns+` FROM projects ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*workflow.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const backlogColumns = `id, project_id, name, method, total_business_value, version`

func scanBacklog(row scanner) (*workflow.Backlog, error) {
	var b workflow.Backlog
	if err := row.Scan(&b.ID, &b.ProjectID, &b.Name, &b.Method, &b.TotalBusinessValue, &b.Version); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *Tx) CreateBacklog(b *workflow.Backlog) error {
	b.Version = 1
	_, err := t.exec(`INSERT INTO backlogs(`+backlogColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.ProjectID, b.Name, string(b.Method), b.TotalBusinessValue, b.Version)
	return err
}

func (t *Tx) GetBacklog(id string) (*workflow.Backlog, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+backlogColumns+` FROM backlogs WHERE id = ?`, id)
	b, err := scanBacklog(row)
	if err != nil {
		return nil, notFound(err, "backlog", id)
	}
	return b, nil
}

func (t *Tx) GetBacklogByProject(projectID string) (*workflow.Backlog, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+backlogColumns+` FROM backlogs WHERE project_id = ?`, projectID)
	b, err := scanBacklog(row)
	if err != nil {
		return nil, notFound(err, "backlog for project", projectID)
	}
	return b, nil
}

func (t *Tx) SaveBacklog(b *workflow.Backlog) error {
	res, err := t.exec(`
		UPDATE backlogs SET name = ?, method = ?, total_business_value = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, b.Name, string(b.Method), b.TotalBusinessValue, b.ID, b.Version)
	if err != nil {
		return err
	}
	if err := t.checkVersioned(res, "backlogs", "backlog", b.ID, b.Version); err != nil {
		return err
	}
	b.Version++
	return nil
}

func (t *Tx) CreateUser(u *workflow.User) error {
	_, err := t.exec(`INSERT INTO users(id, username) VALUES (?, ?)`, u.ID, u.Username)
	return err
}

func (t *Tx) GetUser(id string) (*workflow.User, error) {
	var u workflow.User
	err := t.tx.QueryRowContext(t.ctx, `SELECT id, username FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Username)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (t *Tx) GetUserByName(username string) (*workflow.User, error) {
	var u workflow.User
	err := t.tx.QueryRowContext(t.ctx, `SELECT id, username FROM users WHERE username = ?`, username).Scan(&u.ID, &u.Username)
	if err != nil {
		return nil, notFound(err, "user", username)
	}
	return &u, nil
}

func (t *Tx) ListUsers() ([]*workflow.User, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT id, username FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*workflow.User
	for rows.Next() {
		var u workflow.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

const epicColumns = `id, backlog_id, name, title, description, created_at`

func scanEpic(row scanner) (*workflow.Epic, error) {
	var e workflow.Epic
	var created string
	if err := row.Scan(&e.ID, &e.BacklogID, &e.Name, &e.Title, &e.Description, &created); err != nil {
		return nil, err
	}
	ts, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = ts
	return &e, nil
}

func (t *Tx) CreateEpic(e *workflow.Epic) error {
	_, err := t.exec(`INSERT INTO epics(`+epicColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.BacklogID, e.Name, e.Title, e.Description, formatTime(e.CreatedAt))
	return err
}

func (t *Tx) GetEpic(id string) (*workflow.Epic, error) {
	e, err := scanEpic(t.tx.QueryRowContext(t.ctx, `SELECT `+epicColumns+` FROM epics WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "epic", id)
	}
	return e, nil
}

func (t *Tx) GetEpicByName(backlogID, name string) (*workflow.Epic, error) {
	e, err := scanEpic(t.tx.QueryRowContext(t.ctx,
		`SELECT `+epicColumns+` FROM epics WHERE backlog_id = ? AND name = ?`, backlogID, name))
	if err != nil {
		return nil, notFound(err, "epic", name)
	}
	return e, nil
}

func (t *Tx) ListEpics(backlogID string) ([]*workflow.Epic, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+epicColumns+` FROM epics WHERE backlog_id = ? ORDER BY name`, backlogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*workflow.Epic
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
