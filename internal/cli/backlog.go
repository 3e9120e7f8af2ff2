package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

func (a *app) backlogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Rank and reorder the project backlog",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "List open backlog stories in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			b, err := a.svc.GetBacklog(cmd.Context(), key)
			if err != nil {
				return err
			}
			stories, err := a.svc.ListStories(cmd.Context(), key, store.StoryFilter{BacklogID: b.ID})
			if err != nil {
				return err
			}
			out := struct {
				Backlog *workflow.Backlog `json:"backlog"`
				Stories []*workflow.Story `json:"stories"`
			}{b, stories}
			return a.emit(out, func(w io.Writer) {
				method := string(b.Method)
				if method == "" {
					method = "unranked"
				}
				fmt.Fprintf(w, "%s %s, business value %d\n", a.st.header.Render(b.Name), method, b.TotalBusinessValue)
				for _, s := range stories {
					if s.Status != workflow.StatusDone {
						a.storyLine(w, s)
					}
				}
			})
		},
	}

	var apply bool
	prioritize := &cobra.Command{
		Use:   "prioritize <method>",
		Short: "Rank the backlog with moscow, wsjf or value_effort",
		Long: `Rank the open backlog stories. Without --apply the ranking is only
shown; with --apply priorities 1..N are written, provided every story has
a description and points.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: methodNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			m, err := workflow.ParseMethod(args[0])
			if err != nil {
				return err
			}
			var ranked []workflow.Ranked
			if apply {
				ranked, err = a.svc.ApplyPrioritization(cmd.Context(), key, m)
			} else {
				ranked, err = a.svc.PreviewPrioritization(cmd.Context(), key, m)
			}
			if err != nil {
				return err
			}
			return a.emit(ranked, func(w io.Writer) { a.printRanked(w, m, ranked) })
		},
	}
	prioritize.Flags().BoolVar(&apply, "apply", false, "write the priorities")

	reorder := &cobra.Command{
		Use:   "reorder <story-id>...",
		Short: "Set priorities by hand, highest first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			var ids []string
			for _, arg := range args {
				ids = append(ids, parseCSV(arg)...)
			}
			stories, err := a.svc.ReorderBacklog(cmd.Context(), key, ids)
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

	cmd.AddCommand(show, prioritize, reorder)
	return cmd
}

func methodNames() []string {
	names := make([]string, len(workflow.Methods))
	for i, m := range workflow.Methods {
		names[i] = string(m)
	}
	return names
}

func (a *app) checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Dry-run an operation and list what would stop it",
		Long: `Dry-run an operation. Errors would make the operation fail;
warnings would not. The exit code is 2 when any error is reported.`,
	}
	type checkFn func(cmd *cobra.Command, args []string) (workflow.Check, error)
	add := func(use, short string, nargs int, fn checkFn) {
		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nargs),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := fn(cmd, args)
				if err != nil {
					return err
				}
				if err := a.emit(c, func(w io.Writer) { a.printCheck(w, c) }); err != nil {
					return err
				}
				if !c.OK() {
					return fmt.Errorf("%w: %s", workflow.ErrInvalidState, strings.Join(c.Errors, "; "))
				}
				return nil
			},
		})
	}
	add("sprint-start <sprint-id>", "Could the sprint start", 1, func(cmd *cobra.Command, args []string) (workflow.Check, error) {
		return a.svc.CheckSprintStart(cmd.Context(), args[0])
	})
	add("story-add <sprint-id> <story-id>", "Could the story join the sprint", 2, func(cmd *cobra.Command, args []string) (workflow.Check, error) {
		return a.svc.CheckStoryAdd(cmd.Context(), args[0], args[1])
	})
	add("story-remove <sprint-id> <story-id>", "Could the story leave the sprint", 2, func(cmd *cobra.Command, args []string) (workflow.Check, error) {
		return a.svc.CheckStoryRemove(cmd.Context(), args[0], args[1])
	})
	add("task-start <task-id>", "Could the task start", 1, func(cmd *cobra.Command, args []string) (workflow.Check, error) {
		return a.svc.CheckTaskStart(cmd.Context(), args[0])
	})
	add("task-review <task-id>", "Could the task go to review", 1, func(cmd *cobra.Command, args []string) (workflow.Check, error) {
		return a.svc.CheckTaskReview(cmd.Context(), args[0])
	})
	add("task-complete <task-id>", "Could the task complete", 1, func(cmd *cobra.Command, args []string) (workflow.Check, error) {
		return a.svc.CheckTaskCompletion(cmd.Context(), args[0])
	})
	return cmd
}
