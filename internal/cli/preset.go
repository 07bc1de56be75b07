package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labtiva/curator/internal/config"
	"github.com/labtiva/curator/internal/storage"
)

func newPresetCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage saved filter lists",
	}
	cmd.AddCommand(newPresetListCommand(e))
	cmd.AddCommand(newPresetSaveCommand())
	cmd.AddCommand(newPresetDeleteCommand())
	return cmd
}

func newPresetListCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved filter lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := e.reporter(cmd)
			if err != nil {
				return err
			}
			presets, err := storage.LoadPresets()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(presets.Items))
			for _, p := range presets.Items {
				rows = append(rows, []string{p.Name, p.Target.Plural(), p.Filters})
			}
			return rep.Table([]string{"NAME", "SELECTS", "FILTERS"}, rows, presets.Items)
		},
	}
}

type presetSaveOptions struct {
	Target     string
	FilterList string
}

func newPresetSaveCommand() *cobra.Command {
	opts := presetSaveOptions{}
	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a filter list under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(opts.Target)
			if err != nil {
				return err
			}
			if opts.FilterList == "" {
				return invalidFlags("--filter-list is required")
			}
			if _, err := config.ParseFilterList(opts.FilterList, kind); err != nil {
				return err
			}

			presets, err := storage.LoadPresets()
			if err != nil {
				return err
			}
			presets.Add(storage.Preset{Name: args[0], Target: kind, Filters: opts.FilterList})
			if err := storage.SavePresets(presets); err != nil {
				return fmt.Errorf("saving presets: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved preset %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Target, "target", "indices", "Entities the filter list selects (indices, snapshots)")
	cmd.Flags().StringVar(&opts.FilterList, "filter-list", "", "Filter list as JSON")
	return cmd
}

func newPresetDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved filter list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := storage.LoadPresets()
			if err != nil {
				return err
			}
			if !presets.Delete(args[0]) {
				return invalidFlags(fmt.Sprintf("preset %q not found", args[0]))
			}
			if err := storage.SavePresets(presets); err != nil {
				return fmt.Errorf("saving presets: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted preset %s\n", args[0])
			return nil
		},
	}
}
