package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/labtiva/curator/internal/action"
	"github.com/labtiva/curator/internal/config"
	"github.com/labtiva/curator/internal/entity"
	"github.com/labtiva/curator/internal/es"
	"github.com/labtiva/curator/internal/report"
	"github.com/labtiva/curator/internal/runner"
	"github.com/labtiva/curator/internal/safety"
	"github.com/labtiva/curator/internal/storage"
	"github.com/labtiva/curator/internal/ui"
)

// SingletonSource is the history source of runs started with the action
// command.
const SingletonSource = "singleton"

var errDeclined = errors.New("declined by user")

type runOptions struct {
	DryRun bool
	Yes    bool
	Review bool
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report what would be done without changing the cluster")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&opts.Review, "review", false, "Review and trim each selection before it runs")
}

func newRunCommand(e *env) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run <action-file>",
		Short: "Run every action of an action file in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := config.LoadActions(args[0])
			if err != nil {
				return err
			}
			return e.execute(cmd, args[0], actions, opts)
		},
	}
	addRunFlags(cmd, &opts)
	return cmd
}

type singletonOptions struct {
	runOptions
	FilterList string
	Options    string
	Option     []string
	Preset     string
}

func newActionCommand(e *env) *cobra.Command {
	opts := singletonOptions{}
	cmd := &cobra.Command{
		Use:   "action <name>",
		Short: "Run a single action given on the command line",
		Example: `  curator action delete_indices --filter-list '[{"filtertype":"pattern","kind":"prefix","value":"logs-"}]'
  curator action replicas --option count=0 --preset old-logs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := singleton(args[0], opts)
			if err != nil {
				return err
			}
			return e.execute(cmd, SingletonSource, []config.Action{a}, opts.runOptions)
		},
	}
	addRunFlags(cmd, &opts.runOptions)
	cmd.Flags().StringVar(&opts.FilterList, "filter-list", "", "Filter list as JSON")
	cmd.Flags().StringVar(&opts.Options, "options", "", "Action options as a JSON object")
	cmd.Flags().StringArrayVar(&opts.Option, "option", nil, "Action option as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Preset, "preset", "", "Use a saved filter list")
	return cmd
}

func singleton(name string, opts singletonOptions) (config.Action, error) {
	_, target, err := action.ParseName(name)
	if err != nil {
		return config.Action{}, invalidFlags(err.Error())
	}
	filterList, err := filterSource(target, opts.FilterList, opts.Preset)
	if err != nil {
		return config.Action{}, err
	}

	options := opts.Options
	if len(opts.Option) > 0 {
		if options != "" {
			return config.Action{}, invalidFlags("--options and --option are mutually exclusive")
		}
		if options, err = optionPairs(opts.Option); err != nil {
			return config.Action{}, err
		}
	}
	return config.ParseSingleton(name, options, filterList)
}

// optionPairs turns key=value pairs into an options document. Values are
// read as YAML scalars, so count=2 is a number and partial=true a bool.
func optionPairs(pairs []string) (string, error) {
	doc := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return "", invalidFlags(fmt.Sprintf("--option %q: want key=value", pair))
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		doc[key] = value
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding options: %w", err)
	}
	return string(out), nil
}

// execute runs actions in order and reports every result. A refused or
// failed action stops the run unless it allows continuing.
func (e *env) execute(cmd *cobra.Command, source string, actions []config.Action, opts runOptions) error {
	ctx := cmd.Context()
	cfg, err := e.config()
	if err != nil {
		return err
	}
	rep, err := e.reporter(cmd)
	if err != nil {
		return err
	}
	client, err := e.connect(ctx)
	if err != nil {
		return err
	}

	var metrics *report.Metrics
	if cfg.PushgatewayURL != "" {
		metrics = report.NewMetrics()
	}

	var (
		results []action.Result
		runErr  error
	)
	for _, a := range actions {
		spec := a.Spec
		if opts.DryRun {
			spec.DisableAction = true
		}
		alog := log.With().Int("id", a.ID).Str("action", spec.Name()).Logger()
		if spec.Description != "" {
			alog.Info().Msg(spec.Description)
		}

		res, err := e.runAction(cmd, client, runner.Task{Spec: spec, Filters: a.Filters}, opts, alog)
		if err != nil {
			runErr = err
			break
		}
		results = append(results, res)
		if metrics != nil {
			metrics.Observe(res)
		}
		if cfg.History {
			if err := storage.AppendRun(storage.RunRecord{Source: source, ActionID: a.ID, Result: res}); err != nil {
				alog.Warn().Err(err).Msg("could not record run history")
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if res.Partial() {
			runErr = errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("%s: %d of %d %s failed", res.Name(), len(res.Failed), len(res.Attempted), res.Target.Plural())).
				WithCause(errPartialFailure)
			if !spec.ContinueOnFailure {
				break
			}
		}
	}

	if err := rep.Results(results); err != nil {
		return err
	}
	if metrics != nil {
		if err := metrics.Push(context.WithoutCancel(ctx), cfg.PushgatewayURL); err != nil {
			log.Warn().Err(err).Msg("could not push metrics")
		}
	}
	return runErr
}

func (e *env) runAction(cmd *cobra.Command, client *es.Client, task runner.Task, opts runOptions, alog zerolog.Logger) (action.Result, error) {
	ctx := cmd.Context()
	r := e.runner(client, task.Spec.Options.Repository)

	plan, err := r.Prepare(ctx, task)
	if err != nil {
		if plan != nil {
			alog.Error().Strs("selected", plan.List.Names()).Msg("refused")
		}
		return action.Result{}, err
	}

	if !task.Spec.DisableAction && !plan.List.Empty() {
		if err := e.approve(cmd, client, plan, opts); err != nil {
			return action.Result{}, err
		}
	}
	return r.Execute(ctx, plan)
}

// approve asks the user before a plan runs. Without a terminal, or with
// --yes, it approves silently.
func (e *env) approve(cmd *cobra.Command, client *es.Client, plan *runner.Plan, opts runOptions) error {
	spec := plan.Task.Spec
	if opts.Yes {
		return nil
	}
	if opts.Review {
		if !interactive(cmd) {
			return invalidFlags("--review needs a terminal")
		}
		return e.reviewPlan(cmd.Context(), client, plan)
	}
	if !spec.Action.Destructive() || !interactive(cmd) {
		return nil
	}

	ok, err := ui.Confirm(
		fmt.Sprintf("Run %s on %d %s?", spec.Name(), plan.List.Len(), spec.Target.Plural()),
		preview(plan.List.Names(), 10),
	)
	if err != nil {
		return err
	}
	if !ok {
		return declined(spec)
	}
	return nil
}

func (e *env) reviewPlan(ctx context.Context, client *es.Client, plan *runner.Plan) error {
	spec := plan.Task.Spec
	out, err := ui.RunReview(ui.ReviewInput{
		Action:      spec.Name(),
		Destructive: spec.Action.Destructive(),
		Host:        e.cfg.DisplayHost(),
		Health:      healthStatus(ctx, client),
		Kind:        spec.Target,
		Entities:    plan.List.Entities(),
		Candidates:  plan.Candidates,
		Failures:    plan.Failures(),
	})
	if err != nil {
		return err
	}
	if !out.Approved {
		return declined(spec)
	}
	if len(out.Excluded) == 0 {
		return nil
	}

	dropped := make(map[string]bool, len(out.Excluded))
	for _, name := range out.Excluded {
		dropped[name] = true
	}
	plan.List = plan.List.Filter("review", func(en entity.Entity) (bool, error) {
		return !dropped[en.Name], nil
	})
	log.Info().Strs("dropped", out.Excluded).Str("action", spec.Name()).Msg("entities dropped in review")
	return safety.Validate(plan.List, spec)
}

func healthStatus(ctx context.Context, client *es.Client) string {
	h, err := client.Health(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("cluster health unavailable")
		return ""
	}
	return h.Status
}

func declined(spec action.Spec) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(spec.Name() + " not confirmed").
		WithCause(errDeclined)
}

// preview lists up to n names, sorted, with a count of the rest.
func preview(names []string, n int) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	if len(sorted) <= n {
		return strings.Join(sorted, "\n")
	}
	return strings.Join(sorted[:n], "\n") + fmt.Sprintf("\n... and %d more", len(sorted)-n)
}
