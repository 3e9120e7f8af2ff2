// Package store persists workflow aggregates in SQLite. Every write checks
// the aggregate's version column and reports stale writes as
// workflow.ErrConflict.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/satyaki-up/agileflow/internal/workflow"
)

var ErrDuplicate = fmt.Errorf("%w: already exists", workflow.ErrInvalidState)

const (
	timeLayout = time.RFC3339Nano
	dateLayout = time.DateOnly
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Update runs fn in a transaction, committing when fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&Tx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// View runs fn in a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	return fn(&Tx{ctx: ctx, tx: tx})
}

// Tx is one unit of work against the store.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// NewID returns a short identifier under prefix, e.g. "cat-1f3a9b2c".
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *Tx) exec(query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil && isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return res, err
}

// checkVersioned turns a zero-row versioned update into NotFound or Conflict.
func (t *Tx) checkVersioned(res sql.Result, table, kind, id string, version int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists int
	err = t.tx.QueryRowContext(t.ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %q", workflow.ErrNotFound, kind, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: stale write to %s %q; expected version %d", workflow.ErrConflict, kind, id, version)
}

func (t *Tx) deleteByID(table, kind, id string) error {
	res, err := t.exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: %s %q", workflow.ErrNotFound, kind, id)
	}
	return nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %q", workflow.ErrNotFound, kind, id)
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05", value, time.UTC)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

// in expands a slice into "?,?,?" placeholders and args.
func in(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
