package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:     "projects",
	Aliases: []string{"project", "p"},
	Short:   "Manage timelapse projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			projects, err := a.projects.List(ctx)
			if err != nil {
				return err
			}
			selected, _ := a.selection.Reconcile(ctx)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tNAME\tCLIPS\tCREATED")
			for _, p := range projects {
				mark := ""
				if p.ID == selected {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", mark, p.ID, p.Name, len(p.Clips), humanize.Time(p.CreatedAt))
			}
			return tw.Flush()
		})
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		sel, _ := cmd.Flags().GetBool("select")

		return withApp(func(ctx context.Context, a *app) error {
			p, err := a.projects.Create(ctx, name)
			if err != nil {
				return err
			}
			if sel {
				if err := a.selection.Set(ctx, p.ID); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created project %s (%s)\n", p.ID, p.Name)
			return nil
		})
	},
}

var projectsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			p, err := a.projects.Rename(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed project %s to %s\n", p.ID, p.Name)
			return nil
		})
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project and its clip list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.projects.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted project %s\n", args[0])
			return nil
		})
	},
}

var projectsMoveCmd = &cobra.Command{
	Use:   "move <id> <position>",
	Short: "Move a project to a position in the list (0 is the top)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		position, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("position must be an integer: %w", err)
		}
		return withApp(func(ctx context.Context, a *app) error {
			if _, err := a.projects.Move(ctx, args[0], position); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved project %s\n", args[0])
			return nil
		})
	},
}

var projectsSelectCmd = &cobra.Command{
	Use:   "select [id]",
	Short: "Select the project that clips and exports act on",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unset, _ := cmd.Flags().GetBool("clear")

		return withApp(func(ctx context.Context, a *app) error {
			switch {
			case unset:
				return a.selection.Set(ctx, "")
			case len(args) == 0:
				id, err := a.selection.Reconcile(ctx)
				if err != nil {
					return err
				}
				if id == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "no project selected")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}

			if _, err := a.projects.Get(ctx, args[0]); err != nil {
				return err
			}
			return a.selection.Set(ctx, args[0])
		})
	},
}

// withApp opens the app with logs on stderr, runs fn and closes it.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

// projectOrSelected returns the --project flag or the selected project.
func projectOrSelected(ctx context.Context, cmd *cobra.Command, a *app) (string, error) {
	id, _ := cmd.Flags().GetString("project")
	if id != "" {
		return id, nil
	}
	id, err := a.selection.Reconcile(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("no project selected, pass --project or run 'studiolapse projects select'")
	}
	return id, nil
}

func init() {
	projectsCreateCmd.Flags().Bool("select", false, "Select the new project")
	projectsSelectCmd.Flags().Bool("clear", false, "Clear the selection")

	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsCreateCmd)
	projectsCmd.AddCommand(projectsRenameCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)
	projectsCmd.AddCommand(projectsMoveCmd)
	projectsCmd.AddCommand(projectsSelectCmd)
}
