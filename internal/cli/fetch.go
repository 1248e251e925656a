package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"winmanifests/internal/catalog"
	"winmanifests/internal/config"
	"winmanifests/internal/engine"
	"winmanifests/internal/flags"
	"winmanifests/internal/tools"
)

var cfg = config.New()

const fetchHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}External tools:
	aria2c        downloads update packages (--aria2c). On Windows the copy
	              under tools\aria2c.exe is used by default.
	cabextract    unpacks cabinets on Linux and macOS (--cab-tool).
	expand        unpacks cabinets on Windows (--cab-tool).

Environment:
	--updates-github reads the update list through the GitHub API. A token is
	optional for public repositories.

	Sources (in order):
	1) GITHUB_TOKEN environment variable
	2) GH_TOKEN environment variable
	3) GitHub CLI (gh) authentication via gh auth token (if gh is installed and logged in)
{{if .HasAvailableSubCommands}}
Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download updates and extract their manifest files",
	Long: `Download every update of an update list and extract its manifest files.

The update list maps Windows versions to cumulative updates:

	{
	  "20H2": [{"updateKb": "KB5003173", "updateUrl": "https://support.microsoft.com/help/5003173"}],
	  "2004": [...]
	}

Versions are processed in document order. For each update the catalog is
searched for "<KB> <architecture>", server and dynamic editions are excluded,
and exactly one entry titled
"YYYY-MM Cumulative Update for <product> Version <version> for <arch>-based Systems (<KB>)"
must remain. A failed update is reported and the run continues with the next
one unless --fail-fast is set.

Manifests are written to <out>/manifests/<version>/<KB>.

Rules file (--rules-file, YAML):
	windowsVersionsToSkip:       # skipped version -> version whose searches also list it
	  "1909": "1903"
	windowsUpdateUrlsToSkip: ["https://support.microsoft.com/help/..."]
	excludeTerms: ["server", "Dynamic Cumulative Update"]
	product: "Windows 10"
	architecture: "x64"

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out-file / --out-format: write an aggregate JSON array or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown summary
	- --metrics-file: write Prometheus metrics in text format
	- --no-console: suppress the console sink (use with --emit/--out-file for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, version.started, version.skipped, update.started,
	update.downloaded, update.finished, run.finished). Update results are
	represented as an Event with type "update.finished" and a nested "result" object.

Exit codes:
	0 = every update succeeded or was skipped
	2 = partial failure (some updates failed)
	3 = fatal error (invalid configuration or input, interrupted, or stopped by --fail-fast)

Examples:
	# Process <out>/updates.json
	winmanifests fetch --out ./data

	# Read the list from GitHub and extract in the background
	winmanifests fetch --updates-github my-org/win-data/updates.json@main --concurrent-extraction

	# AI Agent: stream machine-readable events to stdout
	winmanifests fetch --no-console --emit ndjson
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(engine.ExitFatal)
		}
		os.Exit(runFetch(cfg))
	},
}

// runFetch runs the engine under a context canceled by SIGINT/SIGTERM and,
// when set, the --timeout deadline.
func runFetch(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runtime.Timeout)
		defer cancel()
	}

	return engine.NewEngine().Run(ctx, cfg)
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.SetHelpTemplate(fetchHelpTemplate)

	// Input
	fetchCmd.Flags().StringVar(&cfg.Input.OutDir, flags.FlagOutDir, cfg.Input.OutDir, "Output root; manifests land in <out>/manifests/<version>/<KB>")
	fetchCmd.Flags().StringVar(&cfg.Input.Updates, flags.FlagUpdates, "", "Update list JSON file (default: <out>/updates.json)")
	fetchCmd.Flags().StringVar(&cfg.Input.UpdatesGitHub, flags.FlagUpdatesGitHub, "", "Read the update list from GitHub as OWNER/REPO/PATH[@REF]")

	// Selection
	fetchCmd.Flags().StringVar(&cfg.Selection.RulesFile, flags.FlagRulesFile, "", "YAML rules file (skip rules, exclusion terms, product, architecture)")
	fetchCmd.Flags().StringSliceVar(&cfg.Selection.SkipVersions, flags.FlagSkipVersion, nil, "Skip a Windows version as VERSION or VERSION=CONTAINING_VERSION (repeatable; comma-separated accepted)")
	fetchCmd.Flags().StringSliceVar(&cfg.Selection.SkipURLs, flags.FlagSkipURL, nil, "Skip updates with this update URL (repeatable; comma-separated accepted)")

	// Catalog
	fetchCmd.Flags().StringVar(&cfg.Catalog.BaseURL, flags.FlagCatalogURL, catalog.DefaultBaseURL, "Microsoft Update Catalog base URL")
	fetchCmd.Flags().Float64Var(&cfg.Catalog.Rate, flags.FlagRate, catalog.DefaultRate, "Maximum catalog requests per second (0 = unlimited)")

	// Tools
	fetchCmd.Flags().StringVar(&cfg.Tools.Aria2c, flags.FlagAria2c, "", fmt.Sprintf("aria2c executable (default: %s)", tools.DefaultAria2cPath()))
	fetchCmd.Flags().StringVar(&cfg.Tools.CabTool, flags.FlagCabTool, "", fmt.Sprintf("Cabinet extraction executable, cabextract or expand (default: %s)", tools.DefaultCabToolPath()))
	fetchCmd.Flags().IntVar(&cfg.Tools.Connections, flags.FlagConnections, tools.DefaultConnections, fmt.Sprintf("Connections per download (1-%d)", tools.MaxConnections))

	// Output
	fetchCmd.Flags().StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson (default: text)")
	fetchCmd.Flags().StringSliceVar(&cfg.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Filter console output by status (OK, ERROR, SKIPPED). Comma-separated.")
	fetchCmd.Flags().StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown report to this path")
	fetchCmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOutFile, "", "Write structured output to this path")
	fetchCmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out-file: json|ndjson (default: inferred from file extension)")
	fetchCmd.Flags().StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	fetchCmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out-file/--report)")
	fetchCmd.Flags().StringVar(&cfg.Output.MetricsFile, flags.FlagMetricsFile, "", "Write Prometheus metrics (text format) to this path after the run")

	// Runtime
	fetchCmd.Flags().DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, 0, "Global timeout (0 = none)")
	fetchCmd.Flags().BoolVar(&cfg.Runtime.FailFast, flags.FlagFailFast, false, "Stop at the first failed update")
	fetchCmd.Flags().BoolVar(&cfg.Runtime.ConcurrentExtraction, flags.FlagConcurrentExtraction, false, "Extract in the background while the next update downloads")
	fetchCmd.Flags().IntVar(&cfg.Runtime.MaxExtractions, flags.FlagMaxExtractions, 0, "Maximum background extractions (0 = unbounded; requires --concurrent-extraction)")
	fetchCmd.Flags().BoolVar(&cfg.Runtime.DryRun, flags.FlagDryRun, false, "Select and resolve every update without downloading")
}
