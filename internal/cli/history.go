package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/labtiva/curator/internal/report"
	"github.com/labtiva/curator/internal/storage"
)

type historyOptions struct {
	Last   int
	Action string
}

func newHistoryCommand(e *env) *cobra.Command {
	opts := historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := e.reporter(cmd)
			if err != nil {
				return err
			}
			history, err := storage.LoadHistory()
			if err != nil {
				return err
			}

			var runs []storage.RunRecord
			if opts.Action != "" {
				if r := history.LastByAction(opts.Action); r != nil {
					runs = append(runs, *r)
				}
			} else {
				runs = history.Last(opts.Last)
			}
			if runs == nil {
				runs = []storage.RunRecord{}
			}
			return rep.Table(
				[]string{"STARTED", "ACTION", "SOURCE", "RESULT"},
				historyRows(runs),
				runs,
			)
		},
	}
	cmd.Flags().IntVarP(&opts.Last, "last", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&opts.Action, "action", "", "Show only the last run of this action")
	return cmd
}

func historyRows(runs []storage.RunRecord) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		source := r.Source
		if r.ActionID > 0 {
			source += "#" + strconv.Itoa(r.ActionID)
		}
		started := "-"
		if !r.Result.StartedAt.IsZero() {
			started = r.Result.StartedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{started, r.Result.Name(), source, report.Summary(r.Result)})
	}
	return rows
}
