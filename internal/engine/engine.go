// Package engine wires the backend, store, poller and bulk coordinator into
// the console the CLI drives.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"repodesk/internal/backend"
	"repodesk/internal/bulk"
	"repodesk/internal/config"
	gh "repodesk/internal/github"
	"repodesk/internal/logging"
	"repodesk/internal/model"
	"repodesk/internal/output"
	"repodesk/internal/poller"
	"repodesk/internal/store"
)

// Exit code contract:
// 0 = every entity succeeded
// 1 = every entity failed
// 2 = partial failure, or a job still pending when polling timed out
// 3 = fatal error (the action did not run)
const (
	ExitOK      = 0
	ExitFailed  = 1
	ExitPartial = 2
	ExitFatal   = 3
)

func exitCodeForRun(fatal, partial, allFailed bool) int {
	if fatal {
		return ExitFatal
	}
	if partial {
		return ExitPartial
	}
	if allFailed {
		return ExitFailed
	}
	return ExitOK
}

// ExitCode maps an aggregate result onto the exit code contract. Jobs that
// outlived polling count as partial.
func ExitCode(agg model.AggregateResult) int {
	timedOut := agg.StillPending() > 0
	switch agg.Status {
	case model.StatusAllSucceeded:
		return exitCodeForRun(false, timedOut, false)
	case model.StatusPartial, model.StatusPending:
		return exitCodeForRun(false, true, false)
	default:
		if len(agg.Results) == 0 {
			return ExitOK
		}
		return exitCodeForRun(false, timedOut, true)
	}
}

// Describer looks up a human description for a source URL. An empty
// description with a nil error means none is known.
type Describer interface {
	Describe(ctx context.Context, repoURL string) (string, error)
}

type Console struct {
	backend   backend.Backend
	store     *store.Store
	poller    *poller.Poller
	bulk      *bulk.Coordinator
	out       *output.Manager
	describer Describer
	logger    *slog.Logger

	pollOpts    poller.Options
	concurrency int
	verbose     bool
}

type Option func(*Console)

func WithOutput(m *output.Manager) Option {
	return func(c *Console) { c.out = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Console) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDescriber enables description enrichment after successful clones.
func WithDescriber(d Describer) Option {
	return func(c *Console) { c.describer = d }
}

func WithPolling(opts poller.Options) Option {
	return func(c *Console) { c.pollOpts = opts }
}

func WithConcurrency(n int) Option {
	return func(c *Console) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithVerbose(v bool) Option {
	return func(c *Console) { c.verbose = v }
}

func NewConsole(b backend.Backend, opts ...Option) (*Console, error) {
	if b == nil {
		return nil, errors.New("engine: backend is nil")
	}
	c := &Console{
		backend:     b,
		logger:      slog.Default(),
		concurrency: 4,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(c)
		}
	}
	c.store = store.New(store.WithLogger(c.logger))
	c.poller = poller.New(b, poller.WithLogger(c.logger))
	c.bulk = bulk.New(b, c.store, c.poller,
		bulk.WithOutput(c.out),
		bulk.WithLogger(c.logger),
		bulk.WithConcurrency(c.concurrency),
		bulk.WithVerbose(c.verbose),
	)
	return c, nil
}

// FromConfig builds a console talking HTTP to cfg.Backend. The caller owns
// the returned output manager and must Close it.
func FromConfig(ctx context.Context, cfg *config.Config, stderr io.Writer) (*Console, *output.Manager, error) {
	if cfg == nil {
		return nil, nil, errors.New("engine: config is nil")
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := logging.New(cfg.Runtime.LogLevel, cfg.Runtime.LogFormat, stderr)

	client, err := backend.NewClient(cfg.Backend.URL,
		backend.WithToken(cfg.Backend.Token),
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithVerbose(cfg.Runtime.Verbose, stderr),
		backend.WithThrottle(backend.NewThrottle()),
		backend.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create backend client: %w", err)
	}

	outMgr, err := SetupOutputManager(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create output sinks: %w", err)
	}

	opts := []Option{
		WithOutput(outMgr),
		WithLogger(logger),
		WithPolling(poller.Options{Interval: cfg.Polling.Interval, Timeout: cfg.Polling.Timeout}),
		WithConcurrency(cfg.Runtime.Concurrency),
		WithVerbose(cfg.Runtime.Verbose),
	}
	if cfg.GitHub.Enrich {
		token, source, err := gh.ResolveAuthToken(ctx, cfg.GitHub.Token)
		if err != nil {
			logger.Warn("github token resolution failed; continuing unauthenticated", "error", err)
		} else if token != "" {
			logger.Debug("github token resolved", "source", source)
		}
		ghClient, err := gh.NewClient(ctx, token,
			gh.WithVerbose(cfg.Runtime.Verbose, stderr),
			gh.WithTimeout(cfg.Backend.Timeout),
		)
		if err != nil {
			_ = outMgr.Close()
			return nil, nil, fmt.Errorf("create github client: %w", err)
		}
		opts = append(opts, WithDescriber(ghClient))
	}

	c, err := NewConsole(client, opts...)
	if err != nil {
		_ = outMgr.Close()
		return nil, nil, err
	}
	return c, outMgr, nil
}

// SetupOutputManager attaches the sinks cfg.Output asks for: the console
// unless suppressed, one emit stream per --emit, the --out file and the
// Markdown report.
func SetupOutputManager(cfg *config.Config) (*output.Manager, error) {
	var sinks []func() (output.Sink, error)
	if !cfg.Output.NoConsole {
		sinks = append(sinks, func() (output.Sink, error) {
			return output.NewConsoleSink(nil, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterOutcome), nil
		})
	}
	for _, format := range cfg.Output.Emit {
		sinks = append(sinks, func() (output.Sink, error) { return output.NewEmitSink(os.Stdout, format) })
	}
	if cfg.Output.Out != "" {
		sinks = append(sinks, func() (output.Sink, error) { return output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat) })
	}
	if cfg.Output.Report != "" {
		sinks = append(sinks, func() (output.Sink, error) { return output.NewReportSink(cfg.Output.Report) })
	}

	outMgr := output.NewManager()
	for _, open := range sinks {
		s, err := open()
		if err == nil {
			err = outMgr.AddSink(s)
		}
		if err != nil {
			_ = outMgr.Close()
			return nil, err
		}
	}
	return outMgr, nil
}

func (c *Console) Store() *store.Store      { return c.store }
func (c *Console) Poller() *poller.Poller   { return c.poller }
func (c *Console) Backend() backend.Backend { return c.backend }

// Load fetches the three lists concurrently and replaces the store's
// collections. Repositories are applied first so documentation can derive
// their DocStatus.
func (c *Console) Load(ctx context.Context) error {
	var (
		repos []model.Repository
		docs  []model.Documentation
		tpls  []model.Template
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		repos, err = c.backend.ListRepositories(gctx)
		if err != nil {
			return fmt.Errorf("list repositories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		docs, err = c.backend.ListDocumentation(gctx)
		if err != nil {
			return fmt.Errorf("list documentation: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tpls, err = c.backend.ListTemplates(gctx)
		if err != nil {
			return fmt.Errorf("list templates: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.store.LoadRepositories(repos)
	c.store.LoadDocumentation(docs)
	c.store.LoadTemplates(tpls)
	c.logger.Debug("lists loaded", "repositories", len(repos), "documentation", len(docs), "templates", len(tpls))
	return nil
}

// Apply runs a bulk action over ids.
func (c *Console) Apply(ctx context.Context, action model.Action, ids []string, payload bulk.Payload) (model.AggregateResult, error) {
	return c.bulk.Apply(ctx, action, ids, payload)
}

// Finish emits run.finished with the combined exit code of aggs and returns
// it. A follow-up phase, such as settling prompt regenerations, is passed
// after the action it belongs to.
func (c *Console) Finish(aggs ...model.AggregateResult) int {
	code := ExitOK
	var action model.Action
	for i, agg := range aggs {
		if i == 0 {
			action = agg.Action
			code = ExitCode(agg)
			continue
		}
		code = combineExitCodes(code, ExitCode(agg))
	}
	_ = c.out.Emit(output.RunFinished(action, code))
	return code
}

// Begin emits run.started for command, the invocation the run belongs to.
func (c *Console) Begin(command string) {
	_ = c.out.Emit(output.RunStarted(command))
}

func combineExitCodes(a, b int) int {
	switch {
	case a == b:
		return a
	case a == ExitOK:
		return b
	case b == ExitOK:
		return a
	case a == ExitFatal || b == ExitFatal:
		return ExitFatal
	default:
		return ExitPartial
	}
}
