package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/labtiva/curator/internal/entity"
	"github.com/labtiva/curator/internal/ui"
)

type inspectOptions struct {
	Snapshot   bool
	Repository string
}

func newInspectCommand(e *env) *cobra.Command {
	opts := inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Show every known attribute of one index or snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := entity.KindIndex
			if opts.Snapshot {
				kind = entity.KindSnapshot
				if opts.Repository == "" {
					return invalidFlags("--snapshot requires --repository")
				}
			}
			rep, err := e.reporter(cmd)
			if err != nil {
				return err
			}
			client, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			en, err := client.Catalog(opts.Repository).GetEntity(cmd.Context(), kind, args[0])
			if err != nil {
				return err
			}
			return rep.Entity(en)
		},
	}
	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "Look up a snapshot instead of an index")
	cmd.Flags().StringVar(&opts.Repository, "repository", "", "Snapshot repository")
	return cmd
}

func newHealthCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show cluster health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := e.reporter(cmd)
			if err != nil {
				return err
			}
			client, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			h, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			version, err := client.Version(cmd.Context())
			if err != nil {
				version = "-"
			}
			headers := []string{"CLUSTER", "VERSION", "STATUS", "NODES", "ACTIVE", "RELOCATING", "UNASSIGNED"}
			rows := [][]string{{
				h.ClusterName,
				version,
				h.Status,
				strconv.Itoa(h.NumberOfNodes),
				ui.FormatNumber(strconv.Itoa(h.ActiveShards)),
				strconv.Itoa(h.RelocatingShards),
				strconv.Itoa(h.UnassignedShards),
			}}
			return rep.Table(headers, rows, h)
		},
	}
}

type tasksOptions struct {
	Cancel string
	Yes    bool
}

func newTasksCommand(e *env) *cobra.Command {
	opts := tasksOptions{}
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List running reindex, force merge, shrink, rollover and snapshot tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Cancel != "" {
				if !opts.Yes && interactive(cmd) {
					ok, err := ui.Confirm("Cancel task "+opts.Cancel+"?", "")
					if err != nil || !ok {
						return err
					}
				}
				if err := client.CancelTask(cmd.Context(), opts.Cancel); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", opts.Cancel)
				return nil
			}

			rep, err := e.reporter(cmd)
			if err != nil {
				return err
			}
			tasks, err := client.Tasks(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{t.ID, t.Action, t.Node, t.RunningTime, ui.Truncate(t.Description, 60)})
			}
			return rep.Table([]string{"ID", "ACTION", "NODE", "RUNNING", "DESCRIPTION"}, rows, tasks)
		},
	}
	cmd.Flags().StringVar(&opts.Cancel, "cancel", "", "Cancel the task with this ID")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
