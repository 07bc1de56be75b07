package cli

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/labtiva/curator/internal/entity"
	"github.com/labtiva/curator/internal/es"
	"github.com/labtiva/curator/internal/filter"
	"github.com/labtiva/curator/internal/ui"
)

type listOptions struct {
	FilterList string
	Preset     string
	Repository string
	Names      bool
}

func addListFlags(cmd *cobra.Command, opts *listOptions) {
	cmd.Flags().StringVar(&opts.FilterList, "filter-list", "", "Filter list as JSON")
	cmd.Flags().StringVar(&opts.Preset, "preset", "", "Use a saved filter list")
	cmd.Flags().StringVar(&opts.Repository, "repository", "", "Snapshot repository")
}

func newShowCommand(e *env) *cobra.Command {
	opts := listOptions{}
	cmd := &cobra.Command{
		Use:       "show indices|snapshots",
		Short:     "Print the entities a filter list selects",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"indices", "snapshots"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			rep, err := e.reporter(cmd)
			if err != nil {
				return err
			}
			client, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			list, candidates, err := selectEntities(cmd, client, kind, opts)
			if err != nil {
				return err
			}
			if opts.Names {
				return rep.Names(list)
			}
			return rep.List(list, candidates)
		},
	}
	addListFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.Names, "names", false, "Print only names, one per line")
	return cmd
}

func newReviewCommand(e *env) *cobra.Command {
	opts := listOptions{}
	cmd := &cobra.Command{
		Use:       "review indices|snapshots",
		Short:     "Browse the entities a filter list selects",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"indices", "snapshots"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			if !interactive(cmd) {
				return invalidFlags("review needs a terminal; use show instead")
			}
			client, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			list, candidates, err := selectEntities(cmd, client, kind, opts)
			if err != nil {
				return err
			}
			_, err = ui.RunReview(ui.ReviewInput{
				Host:       e.cfg.DisplayHost(),
				Health:     healthStatus(cmd.Context(), client),
				Kind:       kind,
				Entities:   list.Entities(),
				Candidates: candidates,
				Failures:   list.Failures(),
			})
			return err
		},
	}
	addListFlags(cmd, &opts)
	return cmd
}

// selectEntities builds the entity list of kind and applies the filter
// list. It also returns the number of entities before filtering.
func selectEntities(cmd *cobra.Command, client *es.Client, kind entity.Kind, opts listOptions) (*entity.List, int, error) {
	specs, err := filters(kind, opts.FilterList, opts.Preset)
	if err != nil {
		return nil, 0, err
	}
	chain := filter.NewChain(specs, log.Logger)
	if err := chain.Validate(kind); err != nil {
		return nil, 0, err
	}

	list, err := entity.Build(cmd.Context(), client.Catalog(opts.Repository), kind, time.Now().UTC())
	switch {
	case errors.Is(err, entity.ErrEmptyClusterState) && list != nil:
		log.Info().Msgf("cluster has no %s", kind.Plural())
	case err != nil:
		return nil, 0, err
	}

	filtered, err := chain.Apply(list)
	if err != nil {
		return nil, 0, err
	}
	return filtered, list.Len(), nil
}
