package action

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/labtiva/curator/internal/entity"
	"github.com/labtiva/curator/internal/timestring"
)

// Request is one cluster mutation. Batched actions carry every selected
// name in a single request; the others carry exactly one.
type Request struct {
	Action  Kind
	Target  entity.Kind
	Names   []string
	Options Options
	// Now is the run's start time, used to render name templates.
	Now time.Time
}

// Mutator performs cluster mutations. Implementations return a *Failure
// so the executor can tell transient errors from permanent ones.
type Mutator interface {
	Mutate(ctx context.Context, req Request) error
}

type Config struct {
	// Workers bounds the number of in-flight calls. Defaults to 1.
	Workers int
	// MaxRetries is the number of retries after the first attempt of a
	// transient failure.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// Timeout bounds each cluster call. Zero means no timeout.
	Timeout time.Duration
	// RequestsPerSecond limits dispatch rate. Zero means unlimited.
	RequestsPerSecond float64
	Clock             clock.Clock
	Logger            zerolog.Logger
}

type Executor struct {
	mutator Mutator
	cfg     Config
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewExecutor(m Mutator, cfg Config) *Executor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = cfg.RetryDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	e := &Executor{
		mutator: m,
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "executor").Logger(),
	}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return e
}

// unit is one cluster call and the entities it covers.
type unit struct {
	names []string
}

// Run applies spec to every entity of list in list order. The returned
// error is only set when spec itself is unusable; cluster failures end up
// in the Result.
func (e *Executor) Run(ctx context.Context, spec Spec, list *entity.List) (Result, error) {
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	if list.Kind() != spec.Target {
		return Result{}, invalidSpec("%s cannot run on a list of %s", spec.Name(), list.Kind().Plural())
	}

	started := e.cfg.Clock.Now()
	res := Result{
		Action:      spec.Action,
		Target:      spec.Target,
		Description: spec.Description,
		Attempted:   []string{},
		Succeeded:   []string{},
		Failed:      []EntityFailure{},
		Skipped:     []string{},
		DryRun:      spec.DisableAction,
		StartedAt:   started,
	}
	log := e.log.With().Str("action", spec.Name()).Logger()

	if spec.DisableAction {
		res.Attempted = list.Names()
		res.Duration = e.cfg.Clock.Now().Sub(started)
		log.Info().Int("entities", len(res.Attempted)).Msg("dry run, no changes made")
		return res, nil
	}

	units, skipped := plan(spec, list)
	res.Skipped = append(res.Skipped, skipped...)
	if len(skipped) > 0 {
		log.Debug().Strs("skipped", skipped).Msg("entities not selected by action")
	}

	e.dispatch(ctx, spec, started, units, &res, log)

	res.Duration = e.cfg.Clock.Now().Sub(started)
	log.Info().
		Int("attempted", len(res.Attempted)).
		Int("succeeded", len(res.Succeeded)).
		Int("failed", len(res.Failed)).
		Int("skipped", len(res.Skipped)).
		Dur("duration", res.Duration).
		Msg("action finished")
	return res, nil
}

func (e *Executor) dispatch(ctx context.Context, spec Spec, now time.Time, units []unit, res *Result, log zerolog.Logger) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		aborted bool
	)
	sem := semaphore.NewWeighted(int64(e.cfg.Workers))

	skipFrom := func(i int) {
		mu.Lock()
		defer mu.Unlock()
		for _, u := range units[i:] {
			res.Skipped = append(res.Skipped, u.names...)
		}
	}

	for i, u := range units {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("run cancelled, skipping remaining entities")
			skipFrom(i)
			break
		}
		mu.Lock()
		stop := aborted
		mu.Unlock()
		if stop || ctx.Err() != nil {
			sem.Release(1)
			skipFrom(i)
			break
		}
		if err := e.pace(ctx, spec, i); err != nil {
			sem.Release(1)
			log.Warn().Err(err).Msg("run cancelled, skipping remaining entities")
			skipFrom(i)
			break
		}

		mu.Lock()
		res.Attempted = append(res.Attempted, u.names...)
		mu.Unlock()

		wg.Add(1)
		go func(u unit) {
			defer wg.Done()
			defer sem.Release(1)

			err := e.call(ctx, spec, now, u, log)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				res.Succeeded = append(res.Succeeded, u.names...)
				return
			}
			kind := KindOf(err)
			for _, n := range u.names {
				res.Failed = append(res.Failed, EntityFailure{Name: n, Kind: kind, Message: err.Error()})
			}
			log.Error().Err(err).Strs("entities", u.names).Str("kind", string(kind)).Msg("action failed")
			if !spec.ContinueOnFailure {
				aborted = true
			}
		}(u)
	}
	wg.Wait()
}

// pace waits for the rate limiter and, for forcemerge, the configured delay
// between calls.
func (e *Executor) pace(ctx context.Context, spec Spec, i int) error {
	if spec.Action == ForceMerge && i > 0 && spec.Options.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.cfg.Clock.After(spec.Options.Delay):
		}
	}
	if e.limiter != nil {
		return e.limiter.Wait(ctx)
	}
	return nil
}

// call runs one unit with retries. Once dispatched, a call is not
// interrupted by cancellation of ctx, only by its timeout; cancellation
// stops further retries.
func (e *Executor) call(ctx context.Context, spec Spec, now time.Time, u unit, log zerolog.Logger) error {
	detached := context.WithoutCancel(ctx)
	timeout := e.cfg.Timeout
	if spec.TimeoutOverride > 0 {
		timeout = spec.TimeoutOverride
	}
	req := Request{
		Action:  spec.Action,
		Target:  spec.Target,
		Names:   u.names,
		Options: spec.Options,
		Now:     now,
	}
	if spec.Action == Snapshot {
		name := spec.Options.Name
		if name == "" {
			name = DefaultSnapshotName
		}
		req.Options.Name = timestring.Format(name, now)
	}

	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			callCtx := detached
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(detached, timeout)
				defer cancel()
			}
			log.Debug().Strs("entities", u.names).Msg("calling cluster")
			err := e.mutator.Mutate(callCtx, req)
			if err != nil && spec.Action.absentIsDone() && KindOf(err) == NotFound {
				log.Debug().Strs("entities", u.names).Msg("already absent, nothing to do")
				err = nil
			}
			lastErr = err
			return err
		},
		IsFatalError: func(err error) bool {
			return !KindOf(err).Retryable()
		},
		NotifyFunc: func(err error, attempt int) {
			log.Warn().Err(err).Int("attempt", attempt).Strs("entities", u.names).Msg("transient failure, retrying")
		},
		Attempts:    e.cfg.MaxRetries + 1,
		Delay:       e.cfg.RetryDelay,
		MaxDelay:    e.cfg.MaxRetryDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       e.cfg.Clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if retry.IsAttemptsExceeded(err) {
		log.Debug().Int("attempts", e.cfg.MaxRetries+1).Msg("giving up after retries")
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("calling cluster: %w", err)
}

// plan splits the list into cluster calls in list order. Batched actions
// select the entities they apply to and report the rest as skipped.
func plan(spec Spec, list *entity.List) ([]unit, []string) {
	items := list.Entities()
	if len(items) == 0 {
		return nil, nil
	}

	switch spec.Action {
	case Snapshot:
		return []unit{{names: list.Names()}}, nil
	case Restore:
		return selectOne(items, restoreTarget(spec, items))
	case Rollover:
		return selectOne(items, rolloverTarget(spec, items))
	}

	units := make([]unit, len(items))
	for i, it := range items {
		units[i] = unit{names: []string{it.Name}}
	}
	return units, nil
}

func selectOne(items []entity.Entity, name string) ([]unit, []string) {
	var skipped []string
	for _, it := range items {
		if it.Name != name {
			skipped = append(skipped, it.Name)
		}
	}
	if name == "" {
		return nil, skipped
	}
	return []unit{{names: []string{name}}}, skipped
}

// restoreTarget picks the named snapshot, or the most recent completed one.
func restoreTarget(spec Spec, items []entity.Entity) string {
	if spec.Options.Name != "" {
		for _, it := range items {
			if it.Name == spec.Options.Name {
				return it.Name
			}
		}
		return ""
	}
	var done []entity.Entity
	for _, it := range items {
		if it.State == entity.StateCompleted {
			done = append(done, it)
		}
	}
	if len(done) == 0 {
		return ""
	}
	sort.SliceStable(done, func(i, j int) bool {
		if c := done[i].CreationTime.Compare(done[j].CreationTime); c != 0 {
			return c > 0
		}
		return done[i].Name > done[j].Name
	})
	return done[0].Name
}

// rolloverTarget finds the write index behind the rollover alias.
func rolloverTarget(spec Spec, items []entity.Entity) string {
	for _, it := range items {
		if it.IsWriteTarget && it.HasAlias(spec.Options.Name) {
			return it.Name
		}
	}
	return ""
}
