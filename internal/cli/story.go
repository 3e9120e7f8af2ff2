package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/agileflow/internal/agile"
	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

func parseStatus(v string) (workflow.Status, error) {
	s := workflow.Status(strings.ToLower(strings.TrimSpace(v)))
	if !workflow.IsValidStatus(s) {
		return "", fmt.Errorf("%w: unknown status %q", workflow.ErrValidation, v)
	}
	return s, nil
}

func parseCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (a *app) storyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "story",
		Short: "Write, size and move user stories",
	}
	cmd.AddCommand(
		a.storyCreateCmd(),
		a.storyShowCmd(),
		a.storyListCmd(),
		a.storyMetricsCmd(),
		a.storyDescribeCmd(),
		a.storyCriteriaCmd(),
		a.storyDepsCmd(),
		a.storyEpicCmd(),
		a.storyStatusCmd(),
		a.storyDeleteCmd(),
	)
	for _, tr := range []struct {
		use, short string
		fn         storyTransition
	}{
		{"start", "Move a story to in_progress", (*agile.Service).StartStory},
		{"complete", "Mark a story done", (*agile.Service).CompleteStory},
		{"block", "Block a story", (*agile.Service).BlockStory},
		{"unblock", "Unblock a story and restore its previous status", (*agile.Service).UnblockStory},
	} {
		cmd.AddCommand(a.storyTransitionCmd(tr.use, tr.short, tr.fn))
	}
	return cmd
}

func (a *app) showStory(ctx context.Context, s *workflow.Story) error {
	tasks, err := a.svc.StoryTasks(ctx, s.ID)
	if err != nil {
		return err
	}
	out := struct {
		*workflow.Story
		Tasks []*workflow.Task `json:"tasks"`
	}{s, tasks}
	return a.emit(out, func(w io.Writer) { a.printStory(w, s, tasks) })
}

func (a *app) storyCreateCmd() *cobra.Command {
	var (
		points                 int
		epic                   string
		role, action, purpose  string
		given, whenTxt, thenTx []string
	)
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Add a story to the project backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			s, err := a.svc.CreateStory(cmd.Context(), key, agile.NewStory{
				Title:       args[0],
				Points:      points,
				Epic:        epic,
				Description: workflow.Description{Role: role, Action: action, Purpose: purpose},
				Criteria:    workflow.AcceptanceCriteria{Given: given, When: whenTxt, Then: thenTx},
			})
			if err != nil {
				return err
			}
			return a.showStory(cmd.Context(), s)
		},
	}
	f := cmd.Flags()
	f.IntVar(&points, "points", 0, "story points")
	f.StringVar(&epic, "epic", "", "epic name or ID")
	f.StringVar(&role, "role", "", "As a <role>")
	f.StringVar(&action, "action", "", "I want <action>")
	f.StringVar(&purpose, "purpose", "", "so that <purpose>")
	f.StringArrayVar(&given, "given", nil, "Given clause, repeatable")
	f.StringArrayVar(&whenTxt, "when", nil, "When clause, repeatable")
	f.StringArrayVar(&thenTx, "then", nil, "Then clause, repeatable")
	return cmd
}

func (a *app) storyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a story with its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.GetStory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.showStory(cmd.Context(), s)
		},
	}
}

func (a *app) storyListCmd() *cobra.Command {
	var status, sprint, epic string
	var ready bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the project's stories in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			var stories []*workflow.Story
			if ready {
				stories, err = a.svc.ReadyStories(cmd.Context(), key)
			} else {
				f := store.StoryFilter{SprintID: sprint, EpicID: epic}
				if status != "" {
					if f.Status, err = parseStatus(status); err != nil {
						return err
					}
				}
				stories, err = a.svc.ListStories(cmd.Context(), key, f)
			}
			if err != nil {
				return err
			}
			return a.emit(stories, func(w io.Writer) {
				for _, s := range stories {
					a.storyLine(w, s)
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&status, "status", "", "only stories in this status")
	f.StringVar(&sprint, "sprint", "", "only stories in this sprint")
	f.StringVar(&epic, "epic", "", "only stories in this epic ID")
	f.BoolVar(&ready, "ready", false, "only backlog stories ready for sprint planning")
	return cmd
}

func (a *app) storyMetricsCmd() *cobra.Command {
	var points, value, urgency, timeCrit, risk int
	cmd := &cobra.Command{
		Use:   "metrics <id>",
		Short: "Set story points and prioritization scores",
		Long: `Set story points and the 1..10 scores used for prioritization.
Flags left out keep their current value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cur, err := a.svc.GetStory(ctx, args[0])
			if err != nil {
				return err
			}
			f := cmd.Flags()
			pick := func(name string, flagVal, current int) int {
				if f.Changed(name) {
					return flagVal
				}
				return current
			}
			s, err := a.svc.SetStoryMetrics(ctx, cur.ID, pick("points", points, cur.Points), workflow.Scores{
				BusinessValue:   pick("value", value, cur.BusinessValue),
				Urgency:         pick("urgency", urgency, cur.Urgency),
				TimeCriticality: pick("time-criticality", timeCrit, cur.TimeCriticality),
				RiskReduction:   pick("risk-reduction", risk, cur.RiskReduction),
			})
			if err != nil {
				return err
			}
			return a.showStory(ctx, s)
		},
	}
	f := cmd.Flags()
	f.IntVar(&points, "points", 0, "story points")
	f.IntVar(&value, "value", 0, "business value 1..10")
	f.IntVar(&urgency, "urgency", 0, "urgency 1..10")
	f.IntVar(&timeCrit, "time-criticality", 0, "time criticality 1..10")
	f.IntVar(&risk, "risk-reduction", 0, "risk reduction 1..10")
	return cmd
}

func (a *app) storyDescribeCmd() *cobra.Command {
	var d workflow.Description
	cmd := &cobra.Command{
		Use:   "describe <id>",
		Short: "Set the As a / I want / so that description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.SetStoryDescription(cmd.Context(), args[0], d)
			if err != nil {
				return err
			}
			return a.showStory(cmd.Context(), s)
		},
	}
	cmd.Flags().StringVar(&d.Role, "role", "", "As a <role>")
	cmd.Flags().StringVar(&d.Action, "action", "", "I want <action>")
	cmd.Flags().StringVar(&d.Purpose, "purpose", "", "so that <purpose>")
	return cmd
}

func (a *app) storyCriteriaCmd() *cobra.Command {
	var c workflow.AcceptanceCriteria
	cmd := &cobra.Command{
		Use:   "criteria <id>",
		Short: "Replace the Given/When/Then acceptance criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.SetAcceptanceCriteria(cmd.Context(), args[0], c)
			if err != nil {
				return err
			}
			return a.showStory(cmd.Context(), s)
		},
	}
	cmd.Flags().StringArrayVar(&c.Given, "given", nil, "Given clause, repeatable")
	cmd.Flags().StringArrayVar(&c.When, "when", nil, "When clause, repeatable")
	cmd.Flags().StringArrayVar(&c.Then, "then", nil, "Then clause, repeatable")
	return cmd
}

func (a *app) storyDepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <id> [dependency-id...]",
		Short: "Replace a story's dependencies; no IDs clears them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var deps []string
			for _, arg := range args[1:] {
				deps = append(deps, parseCSV(arg)...)
			}
			s, err := a.svc.SetDependencies(cmd.Context(), args[0], deps)
			if err != nil {
				return err
			}
			return a.showStory(cmd.Context(), s)
		},
	}
}

func (a *app) storyEpicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "epic <id> <epic>",
		Short: `Put a story in an epic; "" clears it`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.AssignEpic(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.showStory(cmd.Context(), s)
		},
	}
}

type storyTransition func(*agile.Service, context.Context, string) (*workflow.Story, error)

func (a *app) storyTransitionCmd(use, short string, fn storyTransition) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := fn(a.svc, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.showStory(cmd.Context(), s)
		},
	}
}

func (a *app) storyStatusCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a story to any status the workflow allows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatus(args[1])
			if err != nil {
				return err
			}
			s, err := a.svc.SetStoryStatus(cmd.Context(), args[0], status, reason)
			if err != nil {
				return err
			}
			return a.showStory(cmd.Context(), s)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the status changed")
	return cmd
}

func (a *app) storyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a story and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.DeleteStory(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.emit(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %s\n", args[0])
			})
		},
	}
}
