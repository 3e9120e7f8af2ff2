// Package cli implements the af command tree.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/agileflow/internal/agile"
	"github.com/satyaki-up/agileflow/internal/config"
	"github.com/satyaki-up/agileflow/internal/db"
	"github.com/satyaki-up/agileflow/internal/logging"
	"github.com/satyaki-up/agileflow/internal/telemetry"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

const serviceName = "af"

var appVersion = "dev"

// SetVersion is called from main with the build version.
func SetVersion(v string) {
	if v != "" {
		appVersion = v
	}
}

// app holds what every command needs once the root's pre-run has opened
// the database.
type app struct {
	out    io.Writer
	errOut io.Writer

	dbPath   string
	project  string
	logLevel string
	jsonOut  bool

	cfg      *config.Config
	database *sql.DB
	svc      *agile.Service
	st       styles
	now      func() time.Time
	opts     []agile.Option
}

// Execute runs af with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{out: stdout, errOut: stderr, now: time.Now}
	return a.execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	err := root.ExecuteContext(ctx)
	a.close(ctx)
	if err != nil {
		return a.renderError(err)
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "af",
		Short: "Agile workflow engine for stories, tasks, sprints and the backlog",
		Long: `af tracks user stories and their tasks through a shared workflow,
plans them into time-boxed sprints, reports sprint metrics and health,
and ranks the backlog with MoSCoW, WSJF or value/effort scoring.

Settings are read from the nearest afconfig file and AF_* environment
variables; flags win over both.`,
		Version:           appVersion,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.dbPath, "db", "", "SQLite database path")
	pf.StringVarP(&a.project, "project", "p", "", "project key (3 lowercase alphanumerics)")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&a.jsonOut, "json", false, "print JSON")

	root.AddCommand(
		a.projectCmd(),
		a.userCmd(),
		a.epicCmd(),
		a.storyCmd(),
		a.taskCmd(),
		a.sprintCmd(),
		a.backlogCmd(),
		a.reportCmd(),
		a.checkCmd(),
		a.planCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	a.cfg, err = config.Load(cwd)
	if err != nil {
		return fmt.Errorf("load %s: %w", config.FileName, err)
	}

	level := a.logLevel
	if level == "" {
		level = a.cfg.LogLevel
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrValidation, err)
	}
	logger := logging.New(a.errOut, lvl)

	if err := telemetry.Init(ctx, a.cfg.Telemetry, a.errOut, serviceName, appVersion); err != nil {
		return err
	}

	path := strings.TrimSpace(a.dbPath)
	if path == "" {
		path = a.cfg.DBPath
	}
	if path == "" {
		path = db.DefaultPath()
	}
	a.database, err = db.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	logger.Debug("database open", "path", path)

	opts := append([]agile.Option{
		agile.WithLogger(logger),
		agile.WithRecorder(telemetry.NewRecorder("")),
	}, a.opts...)
	a.svc = agile.NewService(a.database, opts...)
	a.st = newStyles(a.out)
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.database != nil {
		_ = a.database.Close()
		a.database = nil
	}
	if a.cfg != nil && a.cfg.Telemetry {
		telemetry.Shutdown(ctx)
	}
}

// projectKey resolves --project, falling back to the configured default.
func (a *app) projectKey() (string, error) {
	key := strings.TrimSpace(a.project)
	if key == "" && a.cfg != nil {
		key = a.cfg.Project
	}
	if key == "" {
		return "", fmt.Errorf("%w: no project given; pass --project or set project in %s", workflow.ErrValidation, config.FileName)
	}
	return strings.ToLower(key), nil
}

// exitCode maps domain errors to process exit codes. Cycle errors also
// match ErrInvalidState, so conflicts are tested first.
func exitCode(err error) int {
	switch {
	case errors.Is(err, workflow.ErrConflict), errors.Is(err, workflow.ErrCycleDetected):
		return 4
	case errors.Is(err, workflow.ErrValidation), errors.Is(err, workflow.ErrInvalidState):
		return 2
	case errors.Is(err, workflow.ErrNotFound):
		return 3
	default:
		return 1
	}
}

func (a *app) renderError(err error) int {
	fmt.Fprintf(a.errOut, "error: %v\n", err)
	return exitCode(err)
}
