package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labtiva/curator/internal/es"
	"github.com/labtiva/curator/internal/ui"
)

func newRepoCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage snapshot repositories",
	}
	cmd.AddCommand(newRepoListCommand(e))
	cmd.AddCommand(newRepoCreateCommand(e))
	cmd.AddCommand(newRepoDeleteCommand(e))
	return cmd
}

func newRepoListCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshot repositories",
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
			repos, err := client.Repositories(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(repos))
			for _, r := range repos {
				rows = append(rows, []string{r.Name, r.Type, repoLocation(r)})
			}
			return rep.Table([]string{"NAME", "TYPE", "LOCATION"}, rows, repos)
		},
	}
}

// repoLocation is the setting that says where a repository keeps its
// data, which differs by type.
func repoLocation(r es.Repository) string {
	for _, key := range []string{"location", "bucket", "container", "url", "path"} {
		if v, ok := r.Settings[key]; ok {
			if base, ok := r.Settings["base_path"]; ok && key != "location" {
				return fmt.Sprintf("%v/%v", v, base)
			}
			return fmt.Sprint(v)
		}
	}
	return "-"
}

type repoCreateOptions struct {
	Type     string
	Location string
	Settings string
	Verify   bool
}

func newRepoCreateCommand(e *env) *cobra.Command {
	opts := repoCreateOptions{}
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a snapshot repository",
		Example: `  curator repo create backups --type fs --location /mnt/backups
  curator repo create archive --type s3 --settings '{"bucket":"es-archive","base_path":"prod"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repoFromOptions(args[0], opts)
			if err != nil {
				return err
			}
			client, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.CreateRepository(cmd.Context(), repo, opts.Verify); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created repository %s\n", repo.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", "fs", "Repository type (fs, s3, gcs, azure, url)")
	cmd.Flags().StringVar(&opts.Location, "location", "", "Shared file system path for fs repositories")
	cmd.Flags().StringVar(&opts.Settings, "settings", "", "Repository settings as a JSON object")
	cmd.Flags().BoolVar(&opts.Verify, "verify", true, "Have every node check access to the repository")
	return cmd
}

func repoFromOptions(name string, opts repoCreateOptions) (es.Repository, error) {
	repo := es.Repository{Name: name, Type: opts.Type, Settings: map[string]any{}}
	if opts.Settings != "" {
		if err := json.Unmarshal([]byte(opts.Settings), &repo.Settings); err != nil {
			return es.Repository{}, invalidFlags(fmt.Sprintf("--settings: %v", err))
		}
	}
	if opts.Location != "" {
		repo.Settings["location"] = opts.Location
	}
	if repo.Type == "fs" && repo.Settings["location"] == nil {
		return es.Repository{}, invalidFlags("fs repositories need --location")
	}
	return repo, nil
}

type repoDeleteOptions struct {
	Yes bool
}

func newRepoDeleteCommand(e *env) *cobra.Command {
	opts := repoDeleteOptions{}
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Unregister a snapshot repository; its snapshots stay in storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !opts.Yes && interactive(cmd) {
				ok, err := ui.Confirm("Unregister repository "+name+"?", "")
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}
			client, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.DeleteRepository(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted repository %s\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
