// Package runner wires the curation pipeline together: build the entity
// list, narrow it with the filter chain, check it, then run the action.
package runner

import (
	"context"
	"errors"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/labtiva/curator/internal/action"
	"github.com/labtiva/curator/internal/entity"
	"github.com/labtiva/curator/internal/filter"
	"github.com/labtiva/curator/internal/safety"
)

// Task is one action and the filters that select its entities.
type Task struct {
	Spec    action.Spec
	Filters []filter.Spec
}

// Plan is a task whose entity list has been built, filtered and checked.
type Plan struct {
	Task Task
	// Candidates is the number of entities the cluster reported.
	Candidates int
	List       *entity.List
}

// Failures are the entities the filter chain could not evaluate.
func (p *Plan) Failures() []entity.Failure {
	return p.List.Failures()
}

type Options struct {
	Clock  clock.Clock
	Logger zerolog.Logger
}

type Runner struct {
	source entity.Lister
	exec   *action.Executor
	clock  clock.Clock
	log    zerolog.Logger
}

func New(source entity.Lister, exec *action.Executor, opts Options) *Runner {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	return &Runner{
		source: source,
		exec:   exec,
		clock:  opts.Clock,
		log:    opts.Logger.With().Str("component", "runner").Logger(),
	}
}

// Prepare builds and filters the entity list for task and runs the safety
// checks. Configuration errors are reported before the cluster is
// contacted. When the safety checks refuse the task, the plan is returned
// with the error so callers can show what was refused.
func (r *Runner) Prepare(ctx context.Context, task Task) (*Plan, error) {
	if err := task.Spec.Validate(); err != nil {
		return nil, err
	}
	chain := filter.NewChain(task.Filters, r.log)
	if err := chain.Validate(task.Spec.Target); err != nil {
		return nil, err
	}

	log := r.log.With().Str("action", task.Spec.Name()).Logger()

	list, err := entity.Build(ctx, r.source, task.Spec.Target, r.clock.Now())
	switch {
	case errors.Is(err, entity.ErrEmptyClusterState) && list != nil:
		log.Info().Msgf("cluster has no %s", task.Spec.Target.Plural())
	case err != nil:
		return nil, err
	}
	candidates := list.Len()

	filtered, err := chain.Apply(list)
	if err != nil {
		return nil, err
	}
	for _, f := range filtered.Failures() {
		log.Warn().Str("entity", f.Name).Str("filter", f.Step).Str("reason", f.Reason).Msg("entity could not be evaluated")
	}
	log.Info().Int("candidates", candidates).Int("selected", filtered.Len()).Msg("filters applied")

	plan := &Plan{Task: task, Candidates: candidates, List: filtered}
	if err := safety.Validate(filtered, task.Spec); err != nil {
		return plan, err
	}
	return plan, nil
}

func (r *Runner) Execute(ctx context.Context, plan *Plan) (action.Result, error) {
	return r.exec.Run(ctx, plan.Task.Spec, plan.List)
}

func (r *Runner) Run(ctx context.Context, task Task) (action.Result, error) {
	plan, err := r.Prepare(ctx, task)
	if err != nil {
		return action.Result{}, err
	}
	return r.Execute(ctx, plan)
}
