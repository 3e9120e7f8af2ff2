package plan_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satyaki-up/agileflow/internal/agile"
	"github.com/satyaki-up/agileflow/internal/db"
	"github.com/satyaki-up/agileflow/internal/plan"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

const checkoutPlan = `
project:
  key: shp
  name: Shop
users: [ana, ben]
epics:
  - name: payments
    title: Payments
stories:
  - key: cards
    title: Card payments
    points: 5
    epic: payments
    description:
      role: shopper
      action: to pay by card
      purpose: I can finish checkout
    criteria:
      given: [a cart with items]
      when: [I pay with a valid card]
      then: [an order is created, the cart is emptied]
    scores:
      business_value: 8
      urgency: 6
      time_criticality: 5
      risk_reduction: 3
    tasks:
      - title: Wire the gateway
        estimate: 8
        assignee: ana
      - title: Receipt email
        estimate: 2
  - key: refunds
    title: Refunds
    points: 3
    depends_on: [cards]
sprints:
  - goal: take money
    start: 2026-03-02
    end: 2026-03-13
    capacity: 10
    stories: [cards]
`

func newTestService(t *testing.T) *agile.Service {
	t.Helper()
	database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "agile.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return agile.NewService(database)
}

func TestImportCreatesEverything(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	p, err := plan.Load(strings.NewReader(checkoutPlan))
	require.NoError(t, err)

	res, err := plan.Import(ctx, svc, p)
	require.NoError(t, err)
	assert.Equal(t, "shp", res.Project.Key)
	assert.Len(t, res.Stories, 2)
	assert.Equal(t, 2, res.Tasks)
	assert.Equal(t, []string{"shp-s1"}, res.Sprints)

	refunds, err := svc.GetStory(ctx, res.Stories["refunds"])
	require.NoError(t, err)
	assert.Equal(t, []string{res.Stories["cards"]}, refunds.Dependencies)

	cards, err := svc.GetStory(ctx, res.Stories["cards"])
	require.NoError(t, err)
	assert.Equal(t, "shp-s1", cards.SprintID)
	assert.True(t, workflow.IsReady(cards))
	assert.Equal(t, 8, cards.BusinessValue)
	assert.NotEmpty(t, cards.EpicID)

	tasks, err := svc.StoryTasks(ctx, cards.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.NotEmpty(t, tasks[0].AssigneeID)
	assert.Equal(t, "shp-s1", tasks[0].SprintID)
}

func TestExportRoundTrips(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	p, err := plan.Load(strings.NewReader(checkoutPlan))
	require.NoError(t, err)
	res, err := plan.Import(ctx, svc, p)
	require.NoError(t, err)

	exported, err := plan.Export(ctx, svc, "shp")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, exported.Write(&buf))
	reloaded, err := plan.Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, p.Project, reloaded.Project)
	assert.Equal(t, []string{"ana"}, reloaded.Users)
	require.Len(t, reloaded.Stories, 2)
	require.Len(t, reloaded.Sprints, 1)
	assert.Equal(t, []string{res.Stories["cards"]}, reloaded.Sprints[0].Stories)
	assert.Equal(t, 10, *reloaded.Sprints[0].Capacity)

	other := newTestService(t)
	again, err := plan.Import(ctx, other, reloaded)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Tasks)
}

func TestLoadRejectsBrokenReferences(t *testing.T) {
	tests := map[string]string{
		"unknown dependency": "project: {key: shp, name: Shop}\nstories:\n  - {key: a, title: A, points: 1, depends_on: [zzz]}\n",
		"unknown sprint story": "project: {key: shp, name: Shop}\nstories: []\nsprints:\n  - {start: 2026-03-02, end: 2026-03-09, stories: [zzz]}\n",
		"duplicate key":        "project: {key: shp, name: Shop}\nstories:\n  - {key: a, title: A, points: 1}\n  - {key: a, title: B, points: 1}\n",
		"bad date":             "project: {key: shp, name: Shop}\nstories: []\nsprints:\n  - {start: next week, end: 2026-03-09}\n",
		"unknown field":        "project: {key: shp, name: Shop}\nstories: []\ncolour: blue\n",
		"empty":                "",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := plan.Load(strings.NewReader(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, workflow.ErrValidation), "got %v", err)
		})
	}
}

func TestImportStopsOnRuleViolation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	doc := strings.Replace(checkoutPlan, "stories: [cards]", "stories: [refunds]", 1)
	p, err := plan.Load(strings.NewReader(doc))
	require.NoError(t, err)

	_, err = plan.Import(ctx, svc, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
	assert.Contains(t, err.Error(), "story refunds")
}
