package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"winmanifests/internal/catalog"
	"winmanifests/internal/config"
	"winmanifests/internal/extract"
	"winmanifests/internal/fetch"
	gh "winmanifests/internal/github"
	"winmanifests/internal/metrics"
	"winmanifests/internal/output"
	"winmanifests/internal/tools"
	"winmanifests/internal/updates"
)

// Exit code contract:
// 0 = every update succeeded or was skipped
// 2 = partial failure (some updates failed)
// 3 = fatal error (run did not start, was interrupted, or fail-fast stopped it)
const (
	ExitOK      = 0
	ExitPartial = 2
	ExitFatal   = 3
)

func exitCodeForRun(fatal, partial bool) int {
	if fatal {
		return ExitFatal
	}
	if partial {
		return ExitPartial
	}
	return ExitOK
}

func setupOutputManager(cfg *config.Config, stdout io.Writer) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(rs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

// Engine wires configuration into a Pipeline run.
//
// Nil collaborators are built from the configuration; tests inject fakes.
type Engine struct {
	Stdout io.Writer
	Stderr io.Writer

	Catalog    Catalog
	Downloader tools.Downloader
	CabTool    tools.CabTool
	Updates    updates.FileGetter
}

func NewEngine() *Engine {
	return &Engine{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (e *Engine) stdout() io.Writer {
	if e.Stdout == nil {
		return os.Stdout
	}
	return e.Stdout
}

func (e *Engine) stderr() io.Writer {
	if e.Stderr == nil {
		return os.Stderr
	}
	return e.Stderr
}

// progress writes a diagnostic line to stderr unless the console is disabled.
func (e *Engine) progress(cfg *config.Config, format string, args ...any) {
	if cfg.Output.NoConsole {
		return
	}
	fmt.Fprintf(e.stderr(), format+"\n", args...)
}

// verboseWriter is where request logs and tool output go, or nil.
func (e *Engine) verboseWriter(cfg *config.Config) io.Writer {
	if !cfg.Runtime.Verbose {
		return nil
	}
	return e.stderr()
}

func (e *Engine) loadRules(cfg *config.Config) (config.Rules, error) {
	rules, err := config.LoadRules(cfg.Selection.RulesFile)
	if err != nil {
		return config.Rules{}, err
	}
	skips, err := config.ParseSkipVersions(cfg.Selection.SkipVersions)
	if err != nil {
		return config.Rules{}, err
	}
	return rules.WithSkips(skips, cfg.Selection.SkipURLs), nil
}

func (e *Engine) loadUpdates(ctx context.Context, cfg *config.Config) (updates.List, error) {
	if cfg.Input.UpdatesGitHub == "" {
		e.progress(cfg, "Loading updates from %s...", cfg.Input.Updates)
		return updates.Load(cfg.Input.Updates)
	}

	loc, err := gh.ParseLocation(cfg.Input.UpdatesGitHub)
	if err != nil {
		return nil, err
	}
	e.progress(cfg, "Loading updates from github.com/%s...", loc)

	getter := e.Updates
	if getter == nil {
		token, source, err := gh.ResolveToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve github token: %w", err)
		}
		if cfg.Runtime.Verbose {
			if source == "" {
				fmt.Fprintln(e.stderr(), "[verbose] github: no token found, using anonymous access")
			} else {
				fmt.Fprintf(e.stderr(), "[verbose] github: token from %s\n", source)
			}
		}
		client, err := gh.NewClient(ctx, token, gh.WithVerbose(e.verboseWriter(cfg)))
		if err != nil {
			return nil, err
		}
		getter = client
	}
	return updates.LoadGitHub(ctx, getter, loc)
}

func (e *Engine) buildDeps(cfg *config.Config) (Catalog, *fetch.Fetcher, *extract.Extractor, error) {
	cat := e.Catalog
	if cat == nil {
		c, err := catalog.NewClient(
			catalog.WithBaseURL(cfg.Catalog.BaseURL),
			catalog.WithRate(cfg.Catalog.Rate),
			catalog.WithVerbose(e.verboseWriter(cfg)),
		)
		if err != nil {
			return nil, nil, nil, err
		}
		cat = c
	}

	var runner tools.Runner = tools.ExecRunner{}
	if w := e.verboseWriter(cfg); w != nil {
		runner = tools.ExecRunner{Stdout: w, Stderr: w}
	}

	downloader := e.Downloader
	if downloader == nil {
		downloader = tools.Aria2c{Path: cfg.Tools.Aria2c, Connections: cfg.Tools.Connections, Runner: runner}
	}
	f, err := fetch.New(downloader)
	if err != nil {
		return nil, nil, nil, err
	}

	cab := e.CabTool
	if cab == nil {
		cab = tools.NewCabTool(cfg.Tools.CabTool, runner)
	}
	x, err := extract.New(cab)
	if err != nil {
		return nil, nil, nil, err
	}
	return cat, f, x, nil
}

// Run executes a full fetch run and returns the process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	rules, err := e.loadRules(cfg)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error loading rules: %v\n", err)
		return exitCodeForRun(true, false)
	}

	list, err := e.loadUpdates(ctx, cfg)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error loading updates: %v\n", err)
		return exitCodeForRun(true, false)
	}
	e.progress(cfg, "Found %d updates across %d Windows versions.", list.Len(), len(list))

	cat, f, x, err := e.buildDeps(cfg)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error configuring pipeline: %v\n", err)
		return exitCodeForRun(true, false)
	}

	outMgr, err := setupOutputManager(cfg, e.stdout())
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false)
	}
	defer outMgr.Close()

	rec := metrics.New()
	p, err := NewPipeline(NewSelector(rules), Deps{
		Catalog:   cat,
		Fetcher:   f,
		Extractor: x,
		Output:    outMgr,
		Metrics:   rec,
	}, Options{
		SkipVersions:             rules.SkipVersions(),
		SkipUpdateURLs:           rules.WindowsUpdateURLsToSkip,
		FailFast:                 cfg.Runtime.FailFast,
		ConcurrentExtraction:     cfg.Runtime.ConcurrentExtraction,
		MaxConcurrentExtractions: cfg.Runtime.MaxExtractions,
		OutDir:                   cfg.Input.OutDir,
		DryRun:                   cfg.Runtime.DryRun,
	})
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error configuring pipeline: %v\n", err)
		return exitCodeForRun(true, false)
	}

	runID := uuid.NewString()
	_ = outMgr.Write(output.Event{Type: output.EventRunStarted, RunID: runID, Versions: len(list), Updates: list.Len()})

	sum, runErr := p.Run(ctx, list)
	if runErr != nil {
		var ue *UpdateError
		if errors.As(runErr, &ue) {
			fmt.Fprintf(e.stderr(), "Stopped after failure of %s %s\n", ue.Version, ue.KB)
		} else {
			fmt.Fprintf(e.stderr(), "Error: %v\n", runErr)
		}
	}

	code := exitCodeForRun(runErr != nil, sum.Failed > 0)
	_ = outMgr.Write(output.Event{
		Type:     output.EventRunFinished,
		RunID:    runID,
		OK:       sum.OK,
		Failed:   sum.Failed,
		Skipped:  sum.Skipped,
		Aborted:  sum.Aborted,
		ExitCode: code,
	})

	if err := rec.WriteTextfile(cfg.Output.MetricsFile); err != nil {
		fmt.Fprintf(e.stderr(), "Error writing metrics: %v\n", err)
	}
	return code
}
