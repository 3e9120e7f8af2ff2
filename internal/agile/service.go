// Package agile exposes one operation per workflow transition and metric.
// Every operation loads its aggregates, applies the workflow rules and
// saves the result inside a single store transaction.
package agile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/satyaki-up/agileflow/internal/logging"
	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/telemetry"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

var projectKeyRe = regexp.MustCompile(`^[a-z0-9]{3}$`)

const defaultRetryBudget = 2 * time.Second

type Service struct {
	store       *store.Store
	clock       workflow.Clock
	log         *slog.Logger
	rec         *telemetry.Recorder
	retryBudget time.Duration
}

type Option func(*Service)

func WithClock(c workflow.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithRecorder(r *telemetry.Recorder) Option {
	return func(s *Service) { s.rec = r }
}

// WithRetryBudget bounds how long an operation retries on version conflicts.
func WithRetryBudget(d time.Duration) Option {
	return func(s *Service) { s.retryBudget = d }
}

func NewService(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		store:       store.New(db),
		clock:       workflow.SystemClock{},
		log:         logging.Discard(),
		retryBudget: defaultRetryBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rec == nil {
		s.rec = telemetry.NewRecorder("")
	}
	return s
}

// update runs fn in a write transaction, retrying the whole operation while
// the store reports a stale version.
func (s *Service) update(ctx context.Context, op string, fn func(tx *store.Tx, now time.Time) error, attrs ...attribute.KeyValue) error {
	ctx, end := s.rec.Start(ctx, op, attrs...)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = s.retryBudget

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := s.store.Update(ctx, func(tx *store.Tx) error {
			return fn(tx, s.clock.Now())
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, workflow.ErrConflict) {
			s.log.Warn("version conflict, retrying", "op", op, "attempt", attempt, "err", err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))

	end(err)
	return err
}

func (s *Service) view(ctx context.Context, op string, fn func(tx *store.Tx) error, attrs ...attribute.KeyValue) error {
	ctx, end := s.rec.Start(ctx, op, attrs...)
	err := s.store.View(ctx, fn)
	end(err)
	return err
}

func (s *Service) CreateProject(ctx context.Context, key, name, description string) (*workflow.Project, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	name = strings.TrimSpace(name)
	if !projectKeyRe.MatchString(key) {
		return nil, fmt.Errorf("%w: project key must be exactly 3 lowercase alphanumeric chars", workflow.ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", workflow.ErrValidation)
	}

	var p *workflow.Project
	err := s.update(ctx, "CreateProject", func(tx *store.Tx, now time.Time) error {
		p = &workflow.Project{
			ID:          uuid.NewString(),
			Key:         key,
			Name:        name,
			Description: strings.TrimSpace(description),
			CreatedAt:   now,
		}
		if err := tx.CreateProject(p); err != nil {
			return err
		}
		return tx.CreateBacklog(&workflow.Backlog{
			ID:        key + "-backlog",
			ProjectID: p.ID,
			Name:      name + " backlog",
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("project created", "project", key)
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, key string) (*workflow.Project, error) {
	var p *workflow.Project
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		p, err = tx.GetProjectByKey(strings.ToLower(strings.TrimSpace(key)))
		return err
	})
	return p, err
}

func (s *Service) ListProjects(ctx context.Context) ([]*workflow.Project, error) {
	var out []*workflow.Project
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListProjects()
		return err
	})
	return out, err
}

func (s *Service) GetBacklog(ctx context.Context, projectKey string) (*workflow.Backlog, error) {
	var b *workflow.Backlog
	err := s.store.View(ctx, func(tx *store.Tx) error {
		_, backlog, err := projectBacklog(tx, projectKey)
		b = backlog
		return err
	})
	return b, err
}

func projectBacklog(tx *store.Tx, projectKey string) (*workflow.Project, *workflow.Backlog, error) {
	p, err := tx.GetProjectByKey(strings.ToLower(strings.TrimSpace(projectKey)))
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.GetBacklogByProject(p.ID)
	if err != nil {
		return nil, nil, err
	}
	return p, b, nil
}

func (s *Service) CreateUser(ctx context.Context, username string) (*workflow.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", workflow.ErrValidation)
	}
	u := &workflow.User{ID: uuid.NewString(), Username: username}
	err := s.update(ctx, "CreateUser", func(tx *store.Tx, _ time.Time) error {
		return tx.CreateUser(u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]*workflow.User, error) {
	var out []*workflow.User
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListUsers()
		return err
	})
	return out, err
}

func (s *Service) CreateEpic(ctx context.Context, projectKey, name, title, description string) (*workflow.Epic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: epic name is required", workflow.ErrValidation)
	}
	var e *workflow.Epic
	err := s.update(ctx, "CreateEpic", func(tx *store.Tx, now time.Time) error {
		p, b, err := projectBacklog(tx, projectKey)
		if err != nil {
			return err
		}
		e = &workflow.Epic{
			ID:          store.NewID(p.Key + "-e"),
			BacklogID:   b.ID,
			Name:        name,
			Title:       strings.TrimSpace(title),
			Description: strings.TrimSpace(description),
			CreatedAt:   now,
		}
		return tx.CreateEpic(e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) ListEpics(ctx context.Context, projectKey string) ([]*workflow.Epic, error) {
	var out []*workflow.Epic
	err := s.store.View(ctx, func(tx *store.Tx) error {
		_, b, err := projectBacklog(tx, projectKey)
		if err != nil {
			return err
		}
		out, err = tx.ListEpics(b.ID)
		return err
	})
	return out, err
}
