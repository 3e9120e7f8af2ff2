package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/agileflow/internal/workflow"
)

func (a *app) projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Create and inspect projects",
	}

	var name, description string
	create := &cobra.Command{
		Use:   "create <key>",
		Short: "Create a project and its backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.svc.CreateProject(cmd.Context(), args[0], name, description)
			if err != nil {
				return err
			}
			return a.emit(p, func(w io.Writer) { a.printProject(w, p) })
		},
	}
	create.Flags().StringVar(&name, "name", "", "project name")
	create.Flags().StringVar(&description, "description", "", "project description")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projects, err := a.svc.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(projects, func(w io.Writer) {
				for _, p := range projects {
					fmt.Fprintf(w, "%s  %s\n", a.st.header.Render(p.Key), p.Name)
				}
			})
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the current project and its backlog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			p, err := a.svc.GetProject(cmd.Context(), key)
			if err != nil {
				return err
			}
			b, err := a.svc.GetBacklog(cmd.Context(), key)
			if err != nil {
				return err
			}
			out := struct {
				Project *workflow.Project `json:"project"`
				Backlog *workflow.Backlog `json:"backlog"`
			}{p, b}
			return a.emit(out, func(w io.Writer) {
				a.printProject(w, p)
				method := string(b.Method)
				if method == "" {
					method = "unranked"
				}
				fmt.Fprintf(w, "  backlog %s: %s, business value %d\n", b.ID, method, b.TotalBusinessValue)
			})
		},
	}

	cmd.AddCommand(create, list, show)
	return cmd
}

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage task assignees",
	}
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.svc.CreateUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(u, func(w io.Writer) { fmt.Fprintf(w, "%s %s\n", u.Username, a.st.muted.Render(u.ID)) })
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := a.svc.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(users, func(w io.Writer) {
				for _, u := range users {
					fmt.Fprintf(w, "%s %s\n", u.Username, a.st.muted.Render(u.ID))
				}
			})
		},
	}
	cmd.AddCommand(create, list)
	return cmd
}

func (a *app) epicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epic",
		Short: "Group stories into epics",
	}

	var title, description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an epic in the project backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			e, err := a.svc.CreateEpic(cmd.Context(), key, args[0], title, description)
			if err != nil {
				return err
			}
			return a.emit(e, func(w io.Writer) { fmt.Fprintf(w, "%s %s\n", a.st.header.Render(e.ID), e.Name) })
		},
	}
	create.Flags().StringVar(&title, "title", "", "epic title")
	create.Flags().StringVar(&description, "description", "", "epic description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the project's epics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.projectKey()
			if err != nil {
				return err
			}
			epics, err := a.svc.ListEpics(cmd.Context(), key)
			if err != nil {
				return err
			}
			return a.emit(epics, func(w io.Writer) {
				for _, e := range epics {
					fmt.Fprintf(w, "%-16s %-12s %s\n", e.ID, e.Name, e.Title)
				}
			})
		},
	}
	cmd.AddCommand(create, list)
	return cmd
}
