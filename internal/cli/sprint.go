package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/satyaki-up/agileflow/internal/agile"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

// sprintFlags are shared by create, update and clone. Only flags the user
// set override the base params.
type sprintFlags struct {
	number     int
	goal       string
	start, end string
	capacity   int
}

func (sf *sprintFlags) register(f *pflag.FlagSet, withNumber bool) {
	if withNumber {
		f.IntVar(&sf.number, "number", 0, "sprint number; defaults to the next one")
	}
	f.StringVar(&sf.goal, "goal", "", "sprint goal")
	f.StringVar(&sf.start, "start", "", `start date, YYYY-MM-DD or e.g. "next monday"`)
	f.StringVar(&sf.end, "end", "", `end date, YYYY-MM-DD or e.g. "in 2 weeks"`)
	f.IntVar(&sf.capacity, "capacity", 0, "capacity in story points")
}

func (a *app) applySprintFlags(f *pflag.FlagSet, sf *sprintFlags, p workflow.SprintParams) (workflow.SprintParams, error) {
	base := a.now()
	if f.Changed("number") {
		p.Number = sf.number
	}
	if f.Changed("goal") {
		p.Goal = sf.goal
	}
	if f.Changed("start") {
		t, err := parseDate(sf.start, base)
		if err != nil {
			return p, err
		}
		p.StartDate = t
		base = t
	}
	if f.Changed("end") {
		t, err := parseDate(sf.end, base)
		if err != nil {
			return p, err
		}
		p.EndDate = t
	}
	if f.Changed("capacity") {
		c := sf.capacity
		p.Capacity = &c
	}
	return p, nil
}

type sprintView func(*agile.Service, context.Context, string) (*workflow.Sprint, error)

func (a *app) sprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sprint",
		Short: "Plan, run and measure sprints",
	}
	cmd.AddCommand(
		a.sprintCreateCmd(),
		a.sprintUpdateCmd(),
		a.sprintCloneCmd(),
		a.sprintListCmd(),
		a.sprintCompleteCmd(),
		a.sprintDeleteCmd(),
		a.sprintMemberCmd("add", "Commit a backlog story to a sprint", (*agile.Service).AddStoryToSprint),
		a.sprintMemberCmd("remove", "Return a story to the backlog", (*agile.Service).RemoveStoryFromSprint),
		a.sprintMoveCmd(),
		a.sprintMetricsCmd(),
		a.sprintBurndownCmd(),
		a.sprintHealthCmd(),
		a.sprintVelocityCmd(),
	)
	for _, v := range []struct {
		use, short string
		fn         sprintView
	}{
		{"show", "Show a sprint", (*agile.Service).GetSprint},
		{"start", "Start a planned sprint", (*agile.Service).StartSprint},
		{"cancel", "Cancel a sprint and release its unfinished stories", (*agile.Service).CancelSprint},
	} {
		cmd.AddCommand(a.sprintViewCmd(v.use, v.short, v.fn))
	}
	return cmd
}

func (a *app) showSprint(sp *workflow.Sprint) error {
	return a.emit(sp, func(w io.Writer) { a.sprintLine(w, sp) })
}

func (a *app) sprintCreateCmd() *cobra.Command {
	var sf sprintFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Plan a new sprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			p, err := a.applySprintFlags(cmd.Flags(), &sf, workflow.SprintParams{})
			if err != nil {
				return err
			}
			sp, err := a.svc.CreateSprint(cmd.Context(), key, p)
			if err != nil {
				return err
			}
			return a.showSprint(sp)
		},
	}
	sf.register(cmd.Flags(), true)
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (a *app) sprintUpdateCmd() *cobra.Command {
	var sf sprintFlags
	var clearCapacity bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a sprint's goal, dates or capacity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cur, err := a.svc.GetSprint(ctx, args[0])
			if err != nil {
				return err
			}
			p, err := a.applySprintFlags(cmd.Flags(), &sf, workflow.SprintParams{
				Number:    cur.Number,
				Goal:      cur.Goal,
				StartDate: cur.StartDate,
				EndDate:   cur.EndDate,
				Capacity:  cur.Capacity,
			})
			if err != nil {
				return err
			}
			if clearCapacity {
				p.Capacity = nil
			}
			sp, err := a.svc.UpdateSprint(ctx, cur.ID, p)
			if err != nil {
				return err
			}
			return a.showSprint(sp)
		},
	}
	sf.register(cmd.Flags(), false)
	cmd.Flags().BoolVar(&clearCapacity, "no-capacity", false, "remove the capacity limit")
	cmd.MarkFlagsMutuallyExclusive("capacity", "no-capacity")
	return cmd
}

func (a *app) sprintCloneCmd() *cobra.Command {
	var sf sprintFlags
	cmd := &cobra.Command{
		Use:   "clone <id>",
		Short: "Plan the next sprint from an existing one",
		Long: `Plan a new sprint from an existing one. The goal and capacity are
copied, and the new sprint starts the day after the source ends and runs
for the same number of days unless overridden.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.applySprintFlags(cmd.Flags(), &sf, workflow.SprintParams{})
			if err != nil {
				return err
			}
			sp, err := a.svc.CloneSprint(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			return a.showSprint(sp)
		},
	}
	sf.register(cmd.Flags(), true)
	return cmd
}

func (a *app) sprintListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the project's sprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			st := workflow.SprintStatus(status)
			if status != "" && !workflow.IsValidSprintStatus(st) {
				return fmt.Errorf("%w: unknown sprint status %q", workflow.ErrValidation, status)
			}
			sprints, err := a.svc.ListSprints(cmd.Context(), key, st)
			if err != nil {
				return err
			}
			return a.emit(sprints, func(w io.Writer) {
				for _, sp := range sprints {
					a.sprintLine(w, sp)
				}
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "planned, active, completed or cancelled")
	return cmd
}

func (a *app) sprintViewCmd(use, short string, fn sprintView) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := fn(a.svc, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.showSprint(sp)
		},
	}
}

func (a *app) sprintCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Close an active sprint and report its final metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.svc.CompleteSprint(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(m, func(w io.Writer) { a.printMetrics(w, m) })
		},
	}
}

func (a *app) sprintDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a planned sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.DeleteSprint(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.emit(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %s\n", args[0])
			})
		},
	}
}

func (a *app) sprintMemberCmd(use, short string, fn func(*agile.Service, context.Context, string, string) (*workflow.Story, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <sprint-id> <story-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := fn(a.svc, cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.emit(s, func(w io.Writer) { a.storyLine(w, s) })
		},
	}
}

func (a *app) sprintMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <story-id> <sprint-id>",
		Short: "Move a story from its sprint into another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.MoveStoryBetweenSprints(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.emit(s, func(w io.Writer) { a.storyLine(w, s) })
		},
	}
}

func (a *app) sprintMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <id>",
		Short: "Points, tasks, hours and pace of a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.svc.SprintMetrics(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(m, func(w io.Writer) { a.printMetrics(w, m) })
		},
	}
}

func (a *app) sprintBurndownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "burndown <id>",
		Short: "Remaining points against the ideal line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.svc.SprintBurndown(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(b, func(w io.Writer) { a.printBurndown(w, b) })
		},
	}
}

func (a *app) sprintHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health <id>",
		Short: "Score a sprint and list what threatens it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.svc.SprintHealth(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(h, func(w io.Writer) { a.printHealth(w, h) })
		},
	}
}

func (a *app) sprintVelocityCmd() *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "velocity",
		Short: "Completed points of recent sprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			r, err := a.svc.Velocity(cmd.Context(), key, last)
			if err != nil {
				return err
			}
			return a.emit(r, func(w io.Writer) {
				for _, v := range r.Sprints {
					fmt.Fprintf(w, "%-10s %3d\n", v.SprintID, v.Velocity)
				}
				fmt.Fprintf(w, "%s %.1f\n", a.st.header.Render("average"), r.Average)
			})
		},
	}
	cmd.Flags().IntVar(&last, "last", 3, "how many completed sprints; 0 for all")
	return cmd
}
