package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/agileflow/internal/agile"
	"github.com/satyaki-up/agileflow/internal/store"
	"github.com/satyaki-up/agileflow/internal/workflow"
)

type taskTransition func(*agile.Service, context.Context, string) (*workflow.Task, error)

func (a *app) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Break stories into tasks and move them through the workflow",
	}
	cmd.AddCommand(
		a.taskCreateCmd(),
		a.taskShowCmd(),
		a.taskListCmd(),
		a.taskAssignCmd("assign", "Assign a task", (*agile.Service).AssignTask),
		a.taskAssignCmd("reassign", "Hand an assigned task to someone else", (*agile.Service).ReassignTask),
		a.taskOutcomeCmd("start", "Start a task; a todo story starts with it", (*agile.Service).StartTask),
		a.taskOutcomeCmd("complete", "Complete a task; the story completes with its last task", (*agile.Service).CompleteTask),
		a.taskBlockCmd(),
		a.taskBackCmd(),
		a.taskHoursCmd("log", "Add hours worked", (*agile.Service).LogHours),
		a.taskHoursCmd("estimate", "Replace the estimate", (*agile.Service).UpdateEstimate),
		a.taskDeleteCmd(),
	)
	for _, tr := range []struct {
		use, short string
		fn         taskTransition
	}{
		{"unassign", "Clear a task's assignee", (*agile.Service).UnassignTask},
		{"review", "Move a task to in_review", (*agile.Service).MoveTaskToReview},
		{"test", "Move a task to testing", (*agile.Service).MoveTaskToTesting},
		{"unblock", "Unblock a task", (*agile.Service).UnblockTask},
	} {
		cmd.AddCommand(a.taskTransitionCmd(tr.use, tr.short, tr.fn))
	}
	return cmd
}

func (a *app) showTask(t *workflow.Task) error {
	return a.emit(t, func(w io.Writer) { a.printTask(w, t) })
}

func (a *app) taskCreateCmd() *cobra.Command {
	var description string
	var estimate float64
	cmd := &cobra.Command{
		Use:   "create <story-id> <title>",
		Short: "Add a task to a story",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.svc.CreateTask(cmd.Context(), args[0], args[1], description, estimate)
			if err != nil {
				return err
			}
			return a.showTask(t)
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "estimated hours")
	return cmd
}

func (a *app) taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.svc.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.showTask(t)
		},
	}
}

func (a *app) taskListCmd() *cobra.Command {
	var story, sprint, assignee, status string
	var blocked bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f := store.TaskFilter{StoryID: story, SprintID: sprint, Blocked: blocked}
			if status != "" {
				s, err := parseStatus(status)
				if err != nil {
					return err
				}
				f.Status = s
			}
			if assignee != "" {
				id, err := a.userID(ctx, assignee)
				if err != nil {
					return err
				}
				f.AssigneeID = id
			}
			tasks, err := a.svc.ListTasks(ctx, f)
			if err != nil {
				return err
			}
			return a.emit(tasks, func(w io.Writer) {
				for _, t := range tasks {
					a.taskLine(w, t)
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&story, "story", "", "only tasks of this story")
	f.StringVar(&sprint, "sprint", "", "only tasks in this sprint")
	f.StringVar(&assignee, "assignee", "", "only tasks assigned to this username")
	f.StringVar(&status, "status", "", "only tasks in this status")
	f.BoolVar(&blocked, "blocked", false, "only blocked tasks")
	return cmd
}

func (a *app) userID(ctx context.Context, username string) (string, error) {
	users, err := a.svc.ListUsers(ctx)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.Username == username {
			return u.ID, nil
		}
	}
	return "", fmt.Errorf("%w: user %q", workflow.ErrNotFound, username)
}

func (a *app) taskAssignCmd(use, short string, fn func(*agile.Service, context.Context, string, string) (*workflow.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id> <username>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := fn(a.svc, cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.showTask(t)
		},
	}
}

func (a *app) taskOutcomeCmd(use, short string, fn func(*agile.Service, context.Context, string) (*agile.TaskOutcome, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := fn(a.svc, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(out, func(w io.Writer) {
				a.printTask(w, out.Task)
				if out.StoryChanged {
					fmt.Fprintf(w, "story %s is now %s\n", out.Story.ID, a.st.status(out.Story.Status))
				}
			})
		},
	}
}

func (a *app) taskTransitionCmd(use, short string, fn taskTransition) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := fn(a.svc, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.showTask(t)
		},
	}
}

func (a *app) taskBlockCmd() *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "block <id> <reason>",
		Short: "Block a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.svc.BlockTask(cmd.Context(), args[0], args[1], by)
			if err != nil {
				return err
			}
			return a.showTask(t)
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "who blocked it; defaults to the assignee")
	return cmd
}

func (a *app) taskBackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "back <id> <reason>",
		Short: "Send a task back one workflow step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.svc.MoveTaskBackward(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.showTask(t)
		},
	}
}

func (a *app) taskHoursCmd(use, short string, fn func(*agile.Service, context.Context, string, float64) (*workflow.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id> <hours>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHours(args[1])
			if err != nil {
				return err
			}
			t, err := fn(a.svc, cmd.Context(), args[0], h)
			if err != nil {
				return err
			}
			return a.showTask(t)
		},
	}
}

func (a *app) taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.emit(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %s\n", args[0])
			})
		},
	}
}

func parseHours(v string) (float64, error) {
	h, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: hours %q is not a number", workflow.ErrValidation, v)
	}
	return h, nil
}
