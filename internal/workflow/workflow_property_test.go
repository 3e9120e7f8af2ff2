package workflow_test

import (
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/satyaki-up/agileflow/internal/workflow"
)

// TestPropertyLogHoursMonotonic verifies actual hours never decrease and
// negative entries leave them unchanged.
func TestPropertyLogHoursMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		task := &workflow.Task{ID: "t", EstimatedHours: 8}
		task.Status = workflow.StatusInProgress

		n := rapid.IntRange(1, 30).Draw(rt, "num_entries")
		for i := 0; i < n; i++ {
			h := float64(rapid.IntRange(-10, 10).Draw(rt, "hours"))
			before := task.ActualHours
			err := workflow.LogHours(task, h, t0)
			switch {
			case h < 0:
				if !errors.Is(err, workflow.ErrValidation) {
					rt.Fatalf("LogHours(%v) error = %v, want validation", h, err)
				}
				if task.ActualHours != before {
					rt.Fatalf("rejected LogHours changed hours %v -> %v", before, task.ActualHours)
				}
			case err != nil:
				rt.Fatalf("LogHours(%v) failed: %v", h, err)
			case task.ActualHours < before:
				rt.Fatalf("hours decreased %v -> %v", before, task.ActualHours)
			}
		}
	})
}

func drawStory(rt *rapid.T, i int) *workflow.Story {
	s := &workflow.Story{
		ID:              fmt.Sprintf("s%d", i),
		Description:     workflow.Description{Role: "user", Action: "act", Purpose: "benefit"},
		Points:          rapid.IntRange(1, 13).Draw(rt, "points"),
		BusinessValue:   rapid.IntRange(1, 10).Draw(rt, "business_value"),
		Urgency:         rapid.IntRange(1, 10).Draw(rt, "urgency"),
		TimeCriticality: rapid.IntRange(1, 10).Draw(rt, "time_criticality"),
		RiskReduction:   rapid.IntRange(1, 10).Draw(rt, "risk_reduction"),
	}
	deps := rapid.IntRange(0, 3).Draw(rt, "deps")
	for d := 0; d < deps; d++ {
		s.Dependencies = append(s.Dependencies, fmt.Sprintf("x%d", d))
	}
	return s
}

func clone(stories []*workflow.Story) []*workflow.Story {
	out := make([]*workflow.Story, len(stories))
	for i, s := range stories {
		c := *s
		out[i] = &c
	}
	return out
}

// TestPropertyPrioritizationDeterministic verifies the same backlog always
// yields the same order and priorities 1..N.
func TestPropertyPrioritizationDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		method := rapid.SampledFrom(workflow.Methods).Draw(rt, "method")
		n := rapid.IntRange(0, 15).Draw(rt, "num_stories")
		var stories []*workflow.Story
		for i := 0; i < n; i++ {
			stories = append(stories, drawStory(rt, i))
		}

		first, second := clone(stories), clone(stories)
		r1, err := workflow.Prioritize(method, first)
		if err != nil {
			rt.Fatalf("prioritize: %v", err)
		}
		r2, err := workflow.Prioritize(method, second)
		if err != nil {
			rt.Fatalf("prioritize: %v", err)
		}
		for i := range r1 {
			if r1[i].Story.ID != r2[i].Story.ID {
				rt.Fatalf("rank %d: %s vs %s", i, r1[i].Story.ID, r2[i].Story.ID)
			}
			if r1[i].Priority != i+1 {
				rt.Fatalf("rank %d got priority %d", i, r1[i].Priority)
			}
			if i > 0 && r1[i].Score > r1[i-1].Score {
				rt.Fatalf("rank %d scores %v above rank %d", i, r1[i].Score, i-1)
			}
		}
	})
}

// TestPropertyBlockUnblockRoundTrip verifies block then unblock leaves a
// resumable status and no block reason.
func TestPropertyBlockUnblockRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		task := &workflow.Task{ID: "t", AssigneeID: "u"}
		task.Status = rapid.SampledFrom([]workflow.Status{
			workflow.StatusInProgress, workflow.StatusInReview, workflow.StatusTesting,
		}).Draw(rt, "status")
		before := task.Status
		reason := rapid.StringMatching(`[a-z]{1,20}`).Draw(rt, "reason")

		if err := workflow.BlockTask(task, reason, "ana", t0); err != nil {
			rt.Fatalf("block: %v", err)
		}
		if err := workflow.UnblockTask(task, t0); err != nil {
			rt.Fatalf("unblock: %v", err)
		}
		if task.Status != before {
			rt.Fatalf("status %s after round trip, want %s", task.Status, before)
		}
		if task.Blocked || task.BlockReason != "" {
			rt.Fatalf("block state not cleared: %+v", task)
		}
	})
}
