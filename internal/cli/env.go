package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/labtiva/curator/internal/action"
	"github.com/labtiva/curator/internal/config"
	"github.com/labtiva/curator/internal/entity"
	"github.com/labtiva/curator/internal/es"
	"github.com/labtiva/curator/internal/filter"
	"github.com/labtiva/curator/internal/report"
	"github.com/labtiva/curator/internal/runner"
	"github.com/labtiva/curator/internal/storage"
)

// env holds what the commands share once flags are parsed.
type env struct {
	v   *viper.Viper
	cfg *config.Config
}

func (e *env) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load(e.v)
	if err != nil {
		return nil, err
	}
	e.cfg = cfg
	return cfg, nil
}

// connect builds a client and checks that the cluster answers.
func (e *env) connect(ctx context.Context) (*es.Client, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	client, err := es.NewClient(cfg, log.Logger)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("creating client").
			WithCause(err)
	}
	if err := client.Ping(ctx); err != nil {
		return nil, entity.ClusterUnavailable("connecting to "+cfg.MaskedURL(), err)
	}
	log.Debug().Str("host", cfg.MaskedURL()).Msg("connected")
	return client, nil
}

func (e *env) reporter(cmd *cobra.Command) (*report.Reporter, error) {
	format, err := report.ParseFormat(e.v.GetString("format"))
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("--format").
			WithCause(err)
	}
	out := cmd.OutOrStdout()
	return report.New(out, format, colorEnabled(out)), nil
}

func (e *env) runner(client *es.Client, repository string) *runner.Runner {
	cfg := e.cfg
	exec := action.NewExecutor(client, action.Config{
		Workers:           cfg.Workers,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		MaxRetryDelay:     cfg.MaxRetryDelay,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            log.Logger,
	})
	return runner.New(client.Catalog(repository), exec, runner.Options{Logger: log.Logger})
}

// filters resolves a filter list given inline or by preset name. Giving
// both is an error.
func filters(kind entity.Kind, inline, preset string) ([]filter.Spec, error) {
	raw, err := filterSource(kind, inline, preset)
	if err != nil {
		return nil, err
	}
	return config.ParseFilterList(raw, kind)
}

func filterSource(kind entity.Kind, inline, preset string) (string, error) {
	if preset == "" {
		return inline, nil
	}
	if inline != "" {
		return "", invalidFlags("--filter-list and --preset are mutually exclusive")
	}
	presets, err := storage.LoadPresets()
	if err != nil {
		return "", fmt.Errorf("loading presets: %w", err)
	}
	p := presets.Get(preset)
	if p == nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("preset %q not found", preset))
	}
	if p.Target != kind {
		return "", invalidFlags(fmt.Sprintf("preset %q selects %s, not %s", preset, p.Target.Plural(), kind.Plural()))
	}
	return p.Filters, nil
}

func parseKind(arg string) (entity.Kind, error) {
	kind, err := entity.ParseKind(arg)
	if err != nil {
		return "", invalidFlags(err.Error())
	}
	return kind, nil
}

func invalidFlags(msg string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg).
		WithCause(config.ErrInvalidConfig)
}

func isTerminal(f interface{}) bool {
	file, ok := f.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd())
}

func colorEnabled(w io.Writer) bool {
	return os.Getenv("NO_COLOR") == "" && isTerminal(w)
}

// interactive reports whether the user can answer prompts.
func interactive(cmd *cobra.Command) bool {
	return isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout())
}
