package agile_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/satyaki-up/agileflow/internal/agile"
	"github.com/satyaki-up/agileflow/internal/db"
	"github.com/satyaki-up/agileflow/internal/logging"
	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return t0.AddDate(0, 0, n)
}

func newTestService(t *testing.T, opts ...agile.Option) (*agile.Service, *workflow.FixedClock) {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "agile.db")
	database, err := db.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	clock := workflow.NewFixedClock(t0)
	opts = append([]agile.Option{agile.WithClock(clock)}, opts...)
	return agile.NewService(database, opts...), clock
}

func seedProject(t *testing.T, svc *agile.Service) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.CreateProject(ctx, "cat", "Catalog", ""); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := svc.CreateUser(ctx, "ana"); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

var checkoutDesc = workflow.Description{Role: "shopper", Action: "to pay by card", Purpose: "I can finish checkout"}

func createStory(t *testing.T, svc *agile.Service, title string, points int) *workflow.Story {
	t.Helper()
	s, err := svc.CreateStory(context.Background(), "cat", agile.NewStory{
		Title:       title,
		Points:      points,
		Description: checkoutDesc,
	})
	if err != nil {
		t.Fatalf("create story %q: %v", title, err)
	}
	return s
}

func intp(v int) *int { return &v }

func createSprint(t *testing.T, svc *agile.Service, capacity *int) *workflow.Sprint {
	t.Helper()
	sp, err := svc.CreateSprint(context.Background(), "cat", workflow.SprintParams{
		Goal:      "ship checkout",
		StartDate: day(0),
		EndDate:   day(10),
		Capacity:  capacity,
	})
	if err != nil {
		t.Fatalf("create sprint: %v", err)
	}
	return sp
}

func TestTaskLifecycleCascadesIntoStoryAndSprint(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	seedProject(t, svc)

	done := createStory(t, svc, "Card payments", 5)
	open := createStory(t, svc, "Gift cards", 3)
	task, err := svc.CreateTask(ctx, done.ID, "Wire the gateway", "", 8)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	openTask, err := svc.CreateTask(ctx, open.ID, "Design voucher codes", "", 4)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	sp := createSprint(t, svc, intp(10))
	for _, id := range []string{done.ID, open.ID} {
		if _, err := svc.AddStoryToSprint(ctx, sp.ID, id); err != nil {
			t.Fatalf("add story %s: %v", id, err)
		}
	}
	inherited, err := svc.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if inherited.SprintID != sp.ID {
		t.Fatalf("expected task to inherit sprint %s, got %q", sp.ID, inherited.SprintID)
	}
	if _, err := svc.StartSprint(ctx, sp.ID); err != nil {
		t.Fatalf("start sprint: %v", err)
	}

	if _, err := svc.StartTask(ctx, task.ID); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected invalid state starting unassigned task, got %v", err)
	}
	if _, err := svc.AssignTask(ctx, task.ID, "ana"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	started, err := svc.StartTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("start task: %v", err)
	}
	if !started.StoryChanged || started.Story.Status != workflow.StatusInProgress {
		t.Fatalf("expected story to auto-start, got %+v", started.Story.Lifecycle)
	}

	clock.Advance(24 * time.Hour)
	if _, err := svc.MoveTaskToReview(ctx, task.ID); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("expected validation error without logged hours, got %v", err)
	}
	if _, err := svc.LogHours(ctx, task.ID, 1); err != nil {
		t.Fatalf("log hours: %v", err)
	}
	if _, err := svc.MoveTaskToReview(ctx, task.ID); err != nil {
		t.Fatalf("move to review: %v", err)
	}
	if _, err := svc.MoveTaskToTesting(ctx, task.ID); err != nil {
		t.Fatalf("move to testing: %v", err)
	}
	completed, err := svc.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if !completed.StoryChanged || completed.Story.Status != workflow.StatusDone {
		t.Fatalf("expected story to auto-complete, got %s", completed.Story.Status)
	}
	if completed.Task.CompletedAt == nil || !completed.Task.CompletedAt.Equal(clock.Now()) {
		t.Fatalf("expected completion date %v, got %v", clock.Now(), completed.Task.CompletedAt)
	}

	if _, err := svc.AssignTask(ctx, openTask.ID, "ana"); err != nil {
		t.Fatalf("assign open task: %v", err)
	}
	if _, err := svc.StartTask(ctx, openTask.ID); err != nil {
		t.Fatalf("start open task: %v", err)
	}

	metrics, err := svc.SprintMetrics(ctx, sp.ID)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if metrics.Velocity != 5 || metrics.TotalPoints != 8 || metrics.ElapsedDays != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}

	final, err := svc.CompleteSprint(ctx, sp.ID)
	if err != nil {
		t.Fatalf("complete sprint: %v", err)
	}
	if final.Velocity != 5 || final.CompletedStories != 1 || final.Status != workflow.SprintCompleted {
		t.Fatalf("unexpected final metrics: %+v", final)
	}

	released, err := svc.GetStory(ctx, open.ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if released.SprintID != "" || released.Status != workflow.StatusInProgress {
		t.Fatalf("expected incomplete story detached with status kept, got sprint %q status %s", released.SprintID, released.Status)
	}
	releasedTask, err := svc.GetTask(ctx, openTask.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if releasedTask.SprintID != "" || releasedTask.Status != workflow.StatusInProgress {
		t.Fatalf("expected task detached with status kept, got sprint %q status %s", releasedTask.SprintID, releasedTask.Status)
	}
	kept, err := svc.GetStory(ctx, done.ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if kept.SprintID != sp.ID {
		t.Fatalf("expected done story to stay in sprint, got %q", kept.SprintID)
	}

	velocity, err := svc.Velocity(ctx, "cat", 0)
	if err != nil {
		t.Fatalf("velocity: %v", err)
	}
	if len(velocity.Sprints) != 1 || velocity.Average != 5 {
		t.Fatalf("unexpected velocity report: %+v", velocity)
	}
}

func TestDeleteTaskKeepsStoryCompletionConsistent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	seedProject(t, svc)

	story := createStory(t, svc, "Card payments", 5)
	var ids []string
	for _, title := range []string{"Wire the gateway", "Write the receipts"} {
		task, err := svc.CreateTask(ctx, story.ID, title, "", 2)
		if err != nil {
			t.Fatalf("create task: %v", err)
		}
		if _, err := svc.AssignTask(ctx, task.ID, "ana"); err != nil {
			t.Fatalf("assign: %v", err)
		}
		ids = append(ids, task.ID)
	}
	finished, leftover := ids[0], ids[1]
	if _, err := svc.StartTask(ctx, finished); err != nil {
		t.Fatalf("start: %v", err)
	}
	out, err := svc.CompleteTask(ctx, finished)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.StoryChanged {
		t.Fatalf("story should wait for %s", leftover)
	}

	if err := svc.DeleteTask(ctx, finished); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected invalid state deleting a done task, got %v", err)
	}
	if _, err := svc.GetTask(ctx, finished); err != nil {
		t.Fatalf("done task should survive: %v", err)
	}

	if err := svc.DeleteTask(ctx, leftover); err != nil {
		t.Fatalf("delete todo task: %v", err)
	}
	if _, err := svc.GetTask(ctx, leftover); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected deleted task to be gone, got %v", err)
	}
	got, err := svc.GetStory(ctx, story.ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if got.Status != workflow.StatusDone {
		t.Fatalf("expected story done once only done tasks remain, got %s", got.Status)
	}
}

func TestDeleteOnlyTaskLeavesStoryAlone(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	seedProject(t, svc)

	story := createStory(t, svc, "Gift cards", 3)
	task, err := svc.CreateTask(ctx, story.ID, "Design voucher codes", "", 4)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := svc.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := svc.GetStory(ctx, story.ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if got.Status != workflow.StatusTodo {
		t.Fatalf("story without tasks should stay todo, got %s", got.Status)
	}
}

func TestSprintCapacityRejectsOverflow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	seedProject(t, svc)

	big := createStory(t, svc, "Search", 6)
	extra := createStory(t, svc, "Filters", 5)
	sp := createSprint(t, svc, intp(10))

	if _, err := svc.AddStoryToSprint(ctx, sp.ID, big.ID); err != nil {
		t.Fatalf("add first story: %v", err)
	}
	if _, err := svc.AddStoryToSprint(ctx, sp.ID, big.ID); err != nil {
		t.Fatalf("re-adding a member should be a no-op, got %v", err)
	}
	_, err := svc.AddStoryToSprint(ctx, sp.ID, extra.ID)
	if !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("expected validation error for 11 > 10, got %v", err)
	}

	c, err := svc.CheckStoryAdd(ctx, sp.ID, extra.ID)
	if err != nil {
		t.Fatalf("check story add: %v", err)
	}
	if c.OK() {
		t.Fatal("expected preflight to report the capacity overflow")
	}

	got, err := svc.GetStory(ctx, extra.ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if got.SprintID != "" {
		t.Fatalf("rejected story must stay in the backlog, got sprint %q", got.SprintID)
	}
}

func TestDependenciesGateSprintsAndRejectCycles(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	seedProject(t, svc)

	a := createStory(t, svc, "Accounts", 3)
	b := createStory(t, svc, "Billing", 3)
	c := createStory(t, svc, "Coupons", 2)

	if _, err := svc.SetDependencies(ctx, b.ID, []string{a.ID, " " + a.ID}); err != nil {
		t.Fatalf("set deps: %v", err)
	}
	if _, err := svc.SetDependencies(ctx, c.ID, []string{b.ID}); err != nil {
		t.Fatalf("set deps: %v", err)
	}
	_, err := svc.SetDependencies(ctx, a.ID, []string{c.ID})
	if !errors.Is(err, workflow.ErrCycleDetected) || !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if !strings.Contains(err.Error(), a.ID+" -> "+c.ID) {
		t.Fatalf("expected cycle path in error, got %v", err)
	}
	if _, err := svc.SetDependencies(ctx, a.ID, []string{a.ID}); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("expected validation error for self dependency, got %v", err)
	}
	if _, err := svc.SetDependencies(ctx, a.ID, []string{"cat-missing"}); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected not found for unknown dependency, got %v", err)
	}

	sp := createSprint(t, svc, nil)
	_, err = svc.AddStoryToSprint(ctx, sp.ID, b.ID)
	var stateErr *workflow.StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected state error, got %v", err)
	}
	if len(stateErr.Offending) != 1 || stateErr.Offending[0] != a.ID {
		t.Fatalf("expected unmet dependency %s, got %v", a.ID, stateErr.Offending)
	}

	if _, err := svc.StartStory(ctx, b.ID); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected start to fail on unmet deps, got %v", err)
	}
	if _, err := svc.StartStory(ctx, a.ID); err != nil {
		t.Fatalf("start story: %v", err)
	}
	if _, err := svc.CompleteStory(ctx, a.ID); err != nil {
		t.Fatalf("complete story without tasks: %v", err)
	}
	if _, err := svc.AddStoryToSprint(ctx, sp.ID, b.ID); err != nil {
		t.Fatalf("add story once deps are done: %v", err)
	}
	if _, err := svc.StartSprint(ctx, sp.ID); err != nil {
		t.Fatalf("start sprint: %v", err)
	}

	if err := svc.DeleteStory(ctx, b.ID); err != nil {
		t.Fatalf("delete story: %v", err)
	}
	dependent, err := svc.GetStory(ctx, c.ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if len(dependent.Dependencies) != 0 {
		t.Fatalf("expected deleted story dropped from dependencies, got %v", dependent.Dependencies)
	}
}

func TestSingleActiveSprintPerProject(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	seedProject(t, svc)

	first := createSprint(t, svc, nil)
	second := createSprint(t, svc, nil)
	if second.Number != first.Number+1 || second.ID != "cat-s2" {
		t.Fatalf("expected next sprint number, got %d (%s)", second.Number, second.ID)
	}

	if _, err := svc.StartSprint(ctx, first.ID); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected empty sprint to be rejected, got %v", err)
	}

	s1 := createStory(t, svc, "Login", 2)
	s2 := createStory(t, svc, "Logout", 1)
	if _, err := svc.AddStoryToSprint(ctx, first.ID, s1.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddStoryToSprint(ctx, second.ID, s2.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddStoryToSprint(ctx, second.ID, s1.ID); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected story in another open sprint to be rejected, got %v", err)
	}

	if _, err := svc.StartSprint(ctx, first.ID); err != nil {
		t.Fatalf("start first sprint: %v", err)
	}
	if _, err := svc.StartSprint(ctx, first.ID); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected restarting an active sprint to fail, got %v", err)
	}
	c, err := svc.CheckSprintStart(ctx, second.ID)
	if err != nil {
		t.Fatalf("check sprint start: %v", err)
	}
	if c.OK() {
		t.Fatal("expected preflight to flag the active sprint")
	}
	if _, err := svc.StartSprint(ctx, second.ID); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected second active sprint to be rejected, got %v", err)
	}

	sp, err := svc.GetSprint(ctx, first.ID)
	if err != nil {
		t.Fatalf("get sprint: %v", err)
	}
	if sp.Status != workflow.SprintActive {
		t.Fatalf("expected active, got %s", sp.Status)
	}

	if err := svc.DeleteSprint(ctx, first.ID); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected active sprint delete to fail, got %v", err)
	}
	if _, err := svc.CancelSprint(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.StartSprint(ctx, second.ID); err != nil {
		t.Fatalf("start second sprint after cancel: %v", err)
	}
	back, err := svc.GetStory(ctx, s1.ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if back.SprintID != "" {
		t.Fatalf("expected cancelled sprint to release its stories, got %q", back.SprintID)
	}
}

func TestMoveStoryBetweenSprintsAndClone(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	seedProject(t, svc)

	story := createStory(t, svc, "Wishlist", 3)
	task, err := svc.CreateTask(ctx, story.ID, "Persist wishlist", "", 2)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	from := createSprint(t, svc, nil)
	to, err := svc.CloneSprint(ctx, from.ID, workflow.SprintParams{})
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if to.Goal != from.Goal || !to.StartDate.Equal(workflow.Date(day(11))) || !to.EndDate.Equal(workflow.Date(day(21))) {
		t.Fatalf("unexpected clone: %+v", to)
	}

	if _, err := svc.MoveStoryBetweenSprints(ctx, story.ID, to.ID); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected move of unscheduled story to fail, got %v", err)
	}
	if _, err := svc.AddStoryToSprint(ctx, from.ID, story.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	moved, err := svc.MoveStoryBetweenSprints(ctx, story.ID, to.ID)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.SprintID != to.ID {
		t.Fatalf("expected story in %s, got %q", to.ID, moved.SprintID)
	}
	movedTask, err := svc.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if movedTask.SprintID != to.ID {
		t.Fatalf("expected task to follow story, got %q", movedTask.SprintID)
	}

	if err := svc.DeleteSprint(ctx, to.ID); err != nil {
		t.Fatalf("delete planned sprint: %v", err)
	}
	orphan, err := svc.GetStory(ctx, story.ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if orphan.SprintID != "" {
		t.Fatalf("expected story back in backlog, got %q", orphan.SprintID)
	}
}

func TestApplyPrioritizationIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	seedProject(t, svc)

	s := createStory(t, svc, "Checkout", 5)
	tStory := createStory(t, svc, "Express checkout", 3)
	if _, err := svc.SetStoryMetrics(ctx, s.ID, 5, workflow.Scores{BusinessValue: 8, Urgency: 6, TimeCriticality: 1, RiskReduction: 1}); err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if _, err := svc.SetStoryMetrics(ctx, tStory.ID, 3, workflow.Scores{BusinessValue: 4, Urgency: 9, TimeCriticality: 1, RiskReduction: 1}); err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if _, err := svc.SetDependencies(ctx, tStory.ID, []string{s.ID}); err != nil {
		t.Fatalf("deps: %v", err)
	}

	undescribed, err := svc.CreateStory(ctx, "cat", agile.NewStory{Title: "Mystery", Points: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.ApplyPrioritization(ctx, "cat", workflow.MethodMoSCoW)
	if !errors.Is(err, workflow.ErrValidation) || !strings.Contains(err.Error(), undescribed.ID) {
		t.Fatalf("expected validation error naming %s, got %v", undescribed.ID, err)
	}
	untouched, err := svc.GetStory(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if untouched.Priority != 0 {
		t.Fatalf("expected no priority written, got %d", untouched.Priority)
	}

	if _, err := svc.SetStoryDescription(ctx, undescribed.ID, checkoutDesc); err != nil {
		t.Fatalf("describe: %v", err)
	}
	if _, err := svc.SetStoryMetrics(ctx, undescribed.ID, 2, workflow.Scores{BusinessValue: 1, Urgency: 1, TimeCriticality: 1, RiskReduction: 1}); err != nil {
		t.Fatalf("metrics: %v", err)
	}

	ranked, err := svc.ApplyPrioritization(ctx, "cat", workflow.MethodMoSCoW)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(ranked) != 3 || ranked[0].Story.ID != s.ID || ranked[0].Score != 25 || ranked[1].Story.ID != tStory.ID || ranked[1].Score != 21 {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}

	stories, err := svc.ListStories(ctx, "cat", store.StoryFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, st := range stories {
		if st.Priority != i+1 {
			t.Fatalf("expected %s at priority %d, got %d", st.ID, i+1, st.Priority)
		}
	}
	backlog, err := svc.GetBacklog(ctx, "cat")
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if backlog.Method != workflow.MethodMoSCoW || backlog.TotalBusinessValue != 13 {
		t.Fatalf("unexpected backlog: %+v", backlog)
	}

	reordered, err := svc.ReorderBacklog(ctx, "cat", []string{undescribed.ID, tStory.ID, s.ID})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if reordered[0].ID != undescribed.ID || reordered[0].Priority != 1 {
		t.Fatalf("unexpected reorder result: %+v", reordered[0])
	}
	if _, err := svc.ReorderBacklog(ctx, "cat", []string{s.ID}); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("expected validation error for partial reorder, got %v", err)
	}
}

func TestEmptyBacklogPrioritizationIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	seedProject(t, svc)

	ranked, err := svc.ApplyPrioritization(ctx, "cat", workflow.MethodWSJF)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(ranked) != 0 {
		t.Fatalf("expected no ranking, got %d", len(ranked))
	}
	if _, err := svc.ApplyPrioritization(ctx, "cat", workflow.Method("dice")); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("expected unknown method to fail, got %v", err)
	}
}

func TestBlockAndMoveBackwardAreLogged(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	svc, _ := newTestService(t, agile.WithLogger(logging.New(&logs, slog.LevelInfo)))
	seedProject(t, svc)

	story := createStory(t, svc, "Reviews", 2)
	task, err := svc.CreateTask(ctx, story.ID, "Moderation queue", "", 3)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := svc.AssignTask(ctx, task.ID, "ana"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.BlockTask(ctx, task.ID, "  ", ""); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("expected empty reason to fail, got %v", err)
	}
	blocked, err := svc.BlockTask(ctx, task.ID, "waiting on legal", "")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if !blocked.Blocked || blocked.BlockedBy != "ana" || blocked.BlockedAt == nil {
		t.Fatalf("unexpected blocked task: %+v", blocked)
	}
	if _, err := svc.CompleteTask(ctx, task.ID); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected blocked task completion to fail, got %v", err)
	}
	unblocked, err := svc.UnblockTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if unblocked.Blocked || unblocked.BlockReason != "" || unblocked.Status != workflow.StatusInProgress {
		t.Fatalf("unexpected unblocked task: %+v", unblocked)
	}
	if _, err := svc.UnblockTask(ctx, task.ID); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("expected unblocking an unblocked task to fail, got %v", err)
	}

	if _, err := svc.LogHours(ctx, task.ID, 2); err != nil {
		t.Fatalf("log: %v", err)
	}
	if _, err := svc.LogHours(ctx, task.ID, -1); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("expected negative hours to fail, got %v", err)
	}
	if _, err := svc.MoveTaskToReview(ctx, task.ID); err != nil {
		t.Fatalf("review: %v", err)
	}
	back, err := svc.MoveTaskBackward(ctx, task.ID, "review rejected")
	if err != nil {
		t.Fatalf("move backward: %v", err)
	}
	if back.Status != workflow.StatusInProgress || back.ActualHours != 2 {
		t.Fatalf("unexpected task after backward move: %+v", back)
	}
	if !strings.Contains(logs.String(), `reason="review rejected"`) {
		t.Fatalf("expected backward reason in logs, got:\n%s", logs.String())
	}

	c, err := svc.CheckTaskCompletion(ctx, task.ID)
	if err != nil {
		t.Fatalf("check completion: %v", err)
	}
	if !c.OK() {
		t.Fatalf("expected completion preflight to pass, got %v", c.Errors)
	}
}

func TestProjectReportCoversEverySprint(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	seedProject(t, svc)

	for i := 0; i < 3; i++ {
		sp := createSprint(t, svc, nil)
		st := createStory(t, svc, "Story "+sp.Name, i+1)
		if _, err := svc.AddStoryToSprint(ctx, sp.ID, st.ID); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	ready := createStory(t, svc, "Ready one", 2)
	if _, err := svc.SetAcceptanceCriteria(ctx, ready.ID, workflow.AcceptanceCriteria{
		Given: []string{"a cart"}, When: []string{"I pay"}, Then: []string{"an order exists"},
	}); err != nil {
		t.Fatalf("criteria: %v", err)
	}

	report, err := svc.ProjectReport(ctx, "cat")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Sprints) != 3 {
		t.Fatalf("expected 3 sprint reports, got %d", len(report.Sprints))
	}
	for i, sr := range report.Sprints {
		if sr.Sprint.Number != i+1 || sr.Metrics.TotalPoints != i+1 {
			t.Fatalf("unexpected sprint report %d: %+v", i, sr.Metrics)
		}
	}
	if report.StoriesByState[workflow.StatusTodo] != 4 || report.ReadyStories != 1 {
		t.Fatalf("unexpected backlog summary: %+v ready=%d", report.StoriesByState, report.ReadyStories)
	}

	readyList, err := svc.ReadyStories(ctx, "cat")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if len(readyList) != 1 || readyList[0].ID != ready.ID {
		t.Fatalf("unexpected ready stories: %v", readyList)
	}
}

func TestUnknownIdentifiersAreNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	seedProject(t, svc)

	if _, err := svc.GetStory(ctx, "cat-nope"); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected not found story, got %v", err)
	}
	if _, err := svc.StartTask(ctx, "cat-t-nope"); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected not found task, got %v", err)
	}
	if _, err := svc.SprintHealth(ctx, "cat-s9"); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected not found sprint, got %v", err)
	}
	story := createStory(t, svc, "Orphan", 1)
	task, err := svc.CreateTask(ctx, story.ID, "Something", "", 1)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := svc.AssignTask(ctx, task.ID, "nobody"); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected unknown user to be not found, got %v", err)
	}
	if _, err := svc.CreateProject(ctx, "cat", "Again", ""); !errors.Is(err, workflow.ErrInvalidState) {
		t.Fatalf("expected duplicate project key to fail, got %v", err)
	}
	if _, err := svc.CreateProject(ctx, "TOOLONG", "x", ""); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("expected invalid key to fail, got %v", err)
	}
}
