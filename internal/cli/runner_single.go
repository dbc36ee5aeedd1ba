package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/johnqtcg/threaddigest/internal/config"
	"github.com/johnqtcg/threaddigest/internal/converter"
	"github.com/johnqtcg/threaddigest/internal/logger"
	"github.com/johnqtcg/threaddigest/internal/parser"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

// Runner executes the CLI application flow.
type Runner interface {
	Run(ctx context.Context, args []string) int
}

// AppDeps defines dependencies for CLI app construction.
type AppDeps struct {
	Loader          config.Loader
	Parser          parser.URLParser
	FetcherFactory  FetcherFactory
	AnalyzerFactory AnalyzerFactory
	RendererFactory RendererFactory
	Writer          OutputWriter
	InputReader     InputReader
	Stdout          io.Writer
	Stderr          io.Writer
	// Logger overrides the root logger built from the loaded config.
	Logger *zerolog.Logger
}

// App orchestrates CLI single and batch workflows.
type App struct {
	loader          config.Loader
	parser          parser.URLParser
	fetcherFactory  FetcherFactory
	analyzerFactory AnalyzerFactory
	rendererFactory RendererFactory
	writer          OutputWriter
	inputReader     InputReader
	stdout          io.Writer
	stderr          io.Writer
	logger          *zerolog.Logger
}

// pipeline is the per-run set of collaborators built from config.
type pipeline struct {
	fetcher  source.Fetcher
	renderer converter.Renderer
	engine   AnalysisEngine
	log      zerolog.Logger
}

// NewApp creates a CLI runner with injected dependencies.
func NewApp(deps AppDeps) Runner {
	app := &App{
		loader:          deps.Loader,
		parser:          deps.Parser,
		fetcherFactory:  deps.FetcherFactory,
		analyzerFactory: deps.AnalyzerFactory,
		rendererFactory: deps.RendererFactory,
		writer:          deps.Writer,
		inputReader:     deps.InputReader,
		stdout:          deps.Stdout,
		stderr:          deps.Stderr,
		logger:          deps.Logger,
	}
	app.setDefaults()
	return app
}

func (a *App) setDefaults() {
	if a.loader == nil {
		a.loader = config.NewLoader()
	}
	if a.parser == nil {
		a.parser = parser.New()
	}
	if a.fetcherFactory == nil {
		a.fetcherFactory = defaultFetcherFactory{}
	}
	if a.analyzerFactory == nil {
		a.analyzerFactory = defaultAnalyzerFactory{}
	}
	if a.rendererFactory == nil {
		a.rendererFactory = defaultRendererFactory{}
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}
	if a.writer == nil {
		a.writer = NewOutputWriter(a.stdout)
	}
	if a.inputReader == nil {
		a.inputReader = NewFileInputReader()
	}
}

// Run parses args with cobra, executes the workflow and returns an exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	code := ExitOK
	cmd := a.newCommand(&code)
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		writeErrorLine(a.stderr, err)
		return ResolveExitCode(err, false, 0)
	}
	return code
}

func (a *App) newCommand(code *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threaddigest [flags] <url>",
		Short: "Convert discussion threads into Markdown digests",
		Long: "threaddigest fetches a GitHub repository, issue, pull request or discussion, a Reddit post or subreddit,\n" +
			"a Hacker News story, a BlueSky post or a YouTube video with its full comment tree and renders it\n" +
			"as Markdown, JSON or a plain transcript, optionally with an AI analysis section.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = a.execute(cmd.Context(), cmd.Flags(), args)
			return nil
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	config.RegisterFlags(cmd.Flags())
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return config.WrapError("parse flags", config.NewValidationError("flags", err.Error()))
	})
	return cmd
}

func (a *App) execute(ctx context.Context, flags *pflag.FlagSet, positional []string) int {
	cfg, err := a.loader.Load(flags, positional)
	if err != nil {
		writeErrorLine(a.stderr, err)
		return ResolveExitCode(err, false, 0)
	}

	validated, err := ValidateArgs(cfg)
	if err != nil {
		writeErrorLine(a.stderr, err)
		return ResolveExitCode(err, false, 0)
	}

	p, err := a.buildPipeline(cfg)
	if err != nil {
		runErr := fmt.Errorf("build fetcher: %w", err)
		writeErrorLine(a.stderr, runErr)
		return ResolveExitCode(runErr, false, 0)
	}

	singleStatusOutput := a.stdout
	if validated.Mode == ModeSingle && (cfg.Stdout || cfg.Stream) {
		// Keep stdout pure document output.
		singleStatusOutput = a.stderr
	}

	switch validated.Mode {
	case ModeSingle:
		item, runErr := a.runSingle(ctx, cfg, validated, p)
		if runErr != nil {
			item.Status = StatusFailed
			item.Reason = runErr.Error()
			writeStatusLine(singleStatusOutput, item)
			return ResolveExitCode(runErr, false, 0)
		}
		writeStatusLine(singleStatusOutput, item)
		return ExitOK
	case ModeBatch:
		summary, runErr := a.runBatch(ctx, cfg, p)
		if runErr != nil {
			writeErrorLine(a.stderr, runErr)
		}
		if _, writeErr := fmt.Fprintln(a.stdout, FormatSummary(summary)); writeErr != nil {
			writeErrorLine(a.stderr, fmt.Errorf("write summary output: %w", writeErr))
		}
		return ResolveExitCode(runErr, true, summary.Failed)
	default:
		err = fmt.Errorf("unsupported mode %q", validated.Mode)
		writeErrorLine(a.stderr, err)
		return ResolveExitCode(err, false, 0)
	}
}

func (a *App) buildPipeline(cfg config.Config) (pipeline, error) {
	var log zerolog.Logger
	if a.logger != nil {
		log = *a.logger
	} else {
		logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "threaddigest"})
		log = logger.Named("cli")
	}

	fetcher, err := a.fetcherFactory.New(cfg, log)
	if err != nil {
		return pipeline{}, err
	}

	var (
		engine   AnalysisEngine
		analyzer converter.Analyzer
	)
	if cfg.Analysis.Enabled {
		engine = a.analyzerFactory.New(cfg, log)
		if engine != nil {
			analyzer = engine
		}
	}

	return pipeline{
		fetcher:  fetcher,
		renderer: a.rendererFactory.New(cfg, analyzer),
		engine:   engine,
		log:      log,
	}, nil
}

func (a *App) runSingle(ctx context.Context, cfg config.Config, args Args, p pipeline) (ItemResult, error) {
	item, containers, err := a.processOne(ctx, cfg, ModeSingle, args.URL, p)
	if err != nil {
		return item, fmt.Errorf("run single URL %q: %w", args.URL, err)
	}
	if cfg.Stream && cfg.Analysis.Enabled {
		a.streamAnalysis(ctx, p, containers)
	}
	return item, nil
}

func (a *App) processOne(ctx context.Context, cfg config.Config, mode Mode, rawURL string, p pipeline) (ItemResult, []thread.Container, error) {
	item := ItemResult{
		URL:    rawURL,
		Status: StatusFailed,
	}

	target, err := a.parser.Parse(rawURL)
	if err != nil {
		return item, nil, fmt.Errorf("parse URL: %w", err)
	}
	item.Target = target.String()

	containers, err := p.fetcher.Fetch(ctx, target)
	if err != nil {
		return item, nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	if len(containers) == 0 {
		return item, nil, fmt.Errorf("fetch %s: no threads found", target)
	}
	p.log.Debug().Str("target", target.String()).Int("containers", len(containers)).Msg("fetched")

	content, err := p.renderer.Render(ctx, containers, converter.RenderOptions{
		Format:          converter.Format(cfg.Format),
		IncludeComments: cfg.Fetch.IncludeComments,
		IncludeAnalysis: cfg.Analysis.Enabled && !cfg.Stream,
		SourceURL:       target.URL,
	})
	if err != nil {
		return item, nil, fmt.Errorf("render %s: %w", cfg.Format, err)
	}

	outputPath, err := a.writer.Write(cfg, mode, target, content)
	if err != nil {
		return item, nil, fmt.Errorf("write output: %w", err)
	}

	item.Status = StatusOK
	item.OutputPath = outputPath
	item.Containers = len(containers)
	for _, c := range containers {
		item.Comments += len(c.Comments)
	}
	return item, containers, nil
}

// streamAnalysis writes analysis fragments to stdout as they arrive. Failures
// degrade to a note on stderr, like the rendered analysis section does.
func (a *App) streamAnalysis(ctx context.Context, p pipeline, containers []thread.Container) {
	if p.engine == nil {
		writeNoteLine(a.stderr, "analysis skipped (analyzer not configured)")
		return
	}

	if _, err := io.WriteString(a.stdout, "\n## Analysis\n\n"); err != nil {
		return
	}
	for frag, err := range p.engine.StreamAnalyze(ctx, thread.Transcript(containers)) {
		if err != nil {
			p.log.Warn().Err(err).Msg("streamed analysis failed")
			writeNoteLine(a.stderr, fmt.Sprintf("analysis skipped (%v)", err))
			return
		}
		if _, err := io.WriteString(a.stdout, frag); err != nil {
			return
		}
	}
	if _, err := io.WriteString(a.stdout, "\n"); err != nil {
		return
	}
}

func writeStatusLine(w io.Writer, item ItemResult) {
	switch item.Status {
	case StatusOK:
		if _, err := fmt.Fprintf(w, "OK url=%s target=%s output=%s comments=%d\n", item.URL, item.Target, item.OutputPath, item.Comments); err != nil {
			return
		}
	default:
		if _, err := fmt.Fprintf(w, "FAILED url=%s target=%s reason=%s\n", item.URL, orUnknownTarget(item.Target), item.Reason); err != nil {
			return
		}
	}
}

func writeErrorLine(w io.Writer, err error) {
	if _, writeErr := fmt.Fprintf(w, "error: %v\n", err); writeErr != nil {
		return
	}
}

func writeNoteLine(w io.Writer, note string) {
	if _, err := fmt.Fprintf(w, "note: %s\n", note); err != nil {
		return
	}
}
