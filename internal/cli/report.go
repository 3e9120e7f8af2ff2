package cli

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/agileflow/internal/agile"
	"github.com/satyaki-up/agileflow/internal/plan"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Summarize the backlog and every sprint of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			r, err := a.svc.ProjectReport(cmd.Context(), key)
			if err != nil {
				return err
			}
			return a.emit(r, func(w io.Writer) { a.printReport(w, r) })
		},
	}
}

func (a *app) printReport(w io.Writer, r *agile.ProjectReport) {
	a.printProject(w, r.Project)
	fmt.Fprintf(w, "\n%s\n", a.st.header.Render("Stories"))
	for _, st := range []workflow.Status{
		workflow.StatusTodo, workflow.StatusInProgress, workflow.StatusInReview,
		workflow.StatusTesting, workflow.StatusBlocked, workflow.StatusDone,
	} {
		if n := r.StoriesByState[st]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", a.st.status(st), n)
		}
	}
	fmt.Fprintf(w, "  %d ready for planning\n", r.ReadyStories)

	sprints := slices.Clone(r.Sprints)
	slices.SortFunc(sprints, func(x, y agile.SprintReport) int { return x.Sprint.Number - y.Sprint.Number })
	for _, sr := range sprints {
		fmt.Fprintln(w)
		a.sprintLine(w, sr.Sprint)
		fmt.Fprintf(w, "  %d/%d points, health %d %s\n",
			sr.Metrics.CompletedPoints, sr.Metrics.TotalPoints, sr.Health.Score, a.st.health(sr.Health.Level))
	}
}

func (a *app) planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Seed a project from YAML or write one out",
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: `Create the project, stories, tasks and sprints in a plan file; "-" reads stdin`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			p, err := plan.Load(r)
			if err != nil {
				return err
			}
			res, err := plan.Import(cmd.Context(), a.svc, p)
			if err != nil {
				return err
			}
			return a.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "imported %s: %d stories, %d tasks, %d sprints\n",
					a.st.header.Render(res.Project.Key), len(res.Stories), res.Tasks, len(res.Sprints))
			})
		},
	}

	var outPath string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the project as a plan file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			p, err := plan.Export(cmd.Context(), a.svc, key)
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				return p.Write(a.out)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := p.Write(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	exportCmd.Flags().StringVarP(&outPath, "output", "o", "", "file to write; stdout by default")

	cmd.AddCommand(importCmd, exportCmd)
	return cmd
}
