package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/satyaki-up/agileflow/internal/agile"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

var t0 = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	dbPath string
	clock  *workflow.FixedClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range []string{"AF_DB", "AF_PROJECT", "AF_LOG_LEVEL", "AF_TELEMETRY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return &harness{t: t, dbPath: filepath.Join(dir, "agile.db"), clock: workflow.NewFixedClock(t0)}
}

// run executes one af invocation against the harness database.
func (h *harness) run(args ...string) (string, string, int) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	a := &app{
		out:    &out,
		errOut: &errOut,
		now:    h.clock.Now,
		opts:   []agile.Option{agile.WithClock(h.clock)},
	}
	code := a.execute(context.Background(), append([]string{"--db", h.dbPath}, args...))
	return out.String(), errOut.String(), code
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, errOut, code := h.run(args...)
	if code != 0 {
		h.t.Fatalf("af %s: exit %d: %s", strings.Join(args, " "), code, errOut)
	}
	return out
}

// id runs a --json command and returns the "id" field of its output.
func (h *harness) id(args ...string) string {
	h.t.Helper()
	var v struct {
		ID string `json:"id"`
	}
	out := h.mustRun(append([]string{"--json"}, args...)...)
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		h.t.Fatalf("decode %q: %v", out, err)
	}
	if v.ID == "" {
		h.t.Fatalf("no id in %s", out)
	}
	return v.ID
}

func seed(h *harness) {
	h.t.Helper()
	h.mustRun("project", "create", "cat", "--name", "Catalog")
	h.mustRun("user", "create", "ana")
}

func readyStory(h *harness, title string, points int) string {
	h.t.Helper()
	return h.id("-p", "cat", "story", "create", title,
		"--points", fmt.Sprint(points),
		"--role", "shopper", "--action", "to pay by card", "--purpose", "I can finish checkout")
}

func TestStoryFlowThroughSprint(t *testing.T) {
	h := newHarness(t)
	seed(h)

	story := readyStory(h, "Card payments", 5)
	task := h.id("task", "create", story, "Wire the gateway", "--estimate", "8")
	sprint := h.id("-p", "cat", "sprint", "create", "--goal", "take money",
		"--start", "2026-03-04", "--end", "2026-03-18", "--capacity", "10")
	if sprint != "cat-s1" {
		t.Fatalf("expected first sprint cat-s1, got %s", sprint)
	}

	h.mustRun("sprint", "add", sprint, story)
	h.mustRun("sprint", "start", sprint)
	h.mustRun("task", "assign", task, "ana")

	out := h.mustRun("task", "start", task)
	if !strings.Contains(out, "story "+story+" is now in_progress") {
		t.Fatalf("expected story to start with its task, got:\n%s", out)
	}
	h.mustRun("task", "log", task, "6.5")
	h.mustRun("task", "review", task)
	h.mustRun("task", "test", task)

	var outcome agile.TaskOutcome
	if err := json.Unmarshal([]byte(h.mustRun("--json", "task", "complete", task)), &outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if !outcome.StoryChanged || outcome.Story.Status != workflow.StatusDone {
		t.Fatalf("expected story done, got %+v", outcome.Story)
	}

	var m workflow.Metrics
	if err := json.Unmarshal([]byte(h.mustRun("--json", "sprint", "metrics", sprint)), &m); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if m.CompletedPoints != 5 || m.ActualHours != 6.5 || m.Status != workflow.SprintActive {
		t.Fatalf("unexpected metrics: %+v", m)
	}

	out = h.mustRun("sprint", "health", sprint)
	if !strings.HasPrefix(out, "Health ") {
		t.Fatalf("unexpected health output:\n%s", out)
	}
	out = h.mustRun("-p", "cat", "report")
	if !strings.Contains(out, "cat-s1") || !strings.Contains(out, "5/5 points") {
		t.Fatalf("report is missing the sprint:\n%s", out)
	}
}

func TestExitCodes(t *testing.T) {
	h := newHarness(t)
	seed(h)
	a := readyStory(h, "Card payments", 5)
	b := readyStory(h, "Refunds", 3)
	h.mustRun("story", "deps", b, a)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown story", []string{"story", "show", "cat-00000000"}, 3},
		{"bad project key", []string{"project", "create", "toolong", "--name", "X"}, 2},
		{"no project", []string{"story", "list"}, 2},
		{"cycle", []string{"story", "deps", a, b}, 4},
		{"bad method", []string{"-p", "cat", "backlog", "prioritize", "fifo"}, 2},
		{"unmet dependency blocks start check", []string{"check", "task-start", h.id("task", "create", b, "Reverse charge")}, 2},
		{"unparseable hours", []string{"task", "log", "cat-t-00000000", "lots"}, 2},
		{"unknown command", []string{"nope"}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, errOut, code := h.run(tc.args...)
			if code != tc.code {
				t.Fatalf("expected exit %d, got %d (%s)", tc.code, code, errOut)
			}
			if !strings.HasPrefix(errOut, "error: ") {
				t.Fatalf("expected an error line, got %q", errOut)
			}
		})
	}
}

func TestExitCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("save: %w", workflow.ErrConflict), 4},
		{workflow.ErrCycleDetected, 4},
		{fmt.Errorf("%w: title", workflow.ErrValidation), 2},
		{&workflow.StateError{Op: "start sprint 1"}, 2},
		{fmt.Errorf("story x: %w", workflow.ErrNotFound), 3},
		{errors.New("disk full"), 1},
	}
	for _, tc := range tests {
		if got := exitCode(tc.err); got != tc.code {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.code)
		}
	}
}

func TestBacklogPrioritizeApply(t *testing.T) {
	h := newHarness(t)
	seed(h)
	low := readyStory(h, "Wishlist", 8)
	high := readyStory(h, "Checkout", 2)
	h.mustRun("story", "metrics", low, "--value", "2", "--urgency", "2", "--time-criticality", "1", "--risk-reduction", "1")
	h.mustRun("story", "metrics", high, "--value", "9", "--urgency", "8", "--time-criticality", "8", "--risk-reduction", "5")

	var ranked []workflow.Ranked
	if err := json.Unmarshal([]byte(h.mustRun("--json", "-p", "cat", "backlog", "prioritize", "wsjf", "--apply")), &ranked); err != nil {
		t.Fatalf("decode ranking: %v", err)
	}
	if len(ranked) != 2 || ranked[0].Story.ID != high || ranked[0].Priority != 1 {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}

	var s workflow.Story
	if err := json.Unmarshal([]byte(h.mustRun("--json", "story", "show", low)), &s); err != nil {
		t.Fatalf("decode story: %v", err)
	}
	if s.Priority != 2 || s.Points != 8 {
		t.Fatalf("expected priority 2 with points kept, got priority %d points %d", s.Priority, s.Points)
	}

	out := h.mustRun("-p", "cat", "backlog", "show")
	if !strings.Contains(out, "wsjf") {
		t.Fatalf("backlog should record the method:\n%s", out)
	}
}

func TestSprintCloneAndUpdate(t *testing.T) {
	h := newHarness(t)
	seed(h)
	first := h.id("-p", "cat", "sprint", "create", "--goal", "take money",
		"--start", "2026-03-02", "--end", "2026-03-13", "--capacity", "10")

	var next workflow.Sprint
	if err := json.Unmarshal([]byte(h.mustRun("--json", "sprint", "clone", first)), &next); err != nil {
		t.Fatalf("decode clone: %v", err)
	}
	if next.Number != 2 || next.Goal != "take money" || next.StartDate.Format(time.DateOnly) != "2026-03-14" {
		t.Fatalf("unexpected clone: %+v", next)
	}

	var updated workflow.Sprint
	out := h.mustRun("--json", "sprint", "update", next.ID, "--goal", "refunds", "--no-capacity")
	if err := json.Unmarshal([]byte(out), &updated); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if updated.Goal != "refunds" || updated.Capacity != nil || !updated.StartDate.Equal(next.StartDate) {
		t.Fatalf("update should only touch the given flags: %+v", updated)
	}
}

func TestPlanImportExport(t *testing.T) {
	h := newHarness(t)
	planFile := filepath.Join(t.TempDir(), "plan.yaml")
	doc := `project: {key: shp, name: Shop}
users: [ana]
stories:
  - key: cards
    title: Card payments
    points: 5
    tasks:
      - {title: Wire the gateway, estimate: 8, assignee: ana}
sprints:
  - {goal: take money, start: 2026-03-02, end: 2026-03-13, stories: [cards]}
`
	if err := os.WriteFile(planFile, []byte(doc), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	out := h.mustRun("plan", "import", planFile)
	if !strings.Contains(out, "1 stories, 1 tasks, 1 sprints") {
		t.Fatalf("unexpected import summary: %s", out)
	}

	exported := h.mustRun("-p", "shp", "plan", "export")
	if !strings.Contains(exported, "Wire the gateway") || !strings.Contains(exported, "2026-03-02") {
		t.Fatalf("unexpected export:\n%s", exported)
	}
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2026-03-09", t0)
	if err != nil || got.Format(time.DateOnly) != "2026-03-09" {
		t.Fatalf("parse ISO date: %v %v", got, err)
	}
	got, err = parseDate("tomorrow", t0)
	if err != nil || got.Format(time.DateOnly) != "2026-03-05" {
		t.Fatalf("parse tomorrow: %v %v", got, err)
	}
	if _, err := parseDate("purple elephant", t0); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
