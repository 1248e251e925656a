package flags

// Package flags defines canonical CLI flag names shared across the CLI and engine.
// Keeping these as constants helps avoid drift between Cobra flag wiring and other
// code paths that need to reference flags (e.g. validation error messages and the
// report's reproducibility command).
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Input.OutDir, flags.FlagOutDir, ".", "...")
//	arg := "--" + flags.FlagOutDir
const (
	// Input
	FlagOutDir        = "out"
	FlagUpdates       = "updates"
	FlagUpdatesGitHub = "updates-github"

	// Selection
	FlagRulesFile   = "rules-file"
	FlagSkipVersion = "skip-version"
	FlagSkipURL     = "skip-url"

	// Catalog
	FlagCatalogURL = "catalog-url"
	FlagRate       = "rate"

	// Tools
	FlagAria2c      = "aria2c"
	FlagCabTool     = "cab-tool"
	FlagConnections = "connections"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagReport              = "report"
	FlagOutFile             = "out-file"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"
	FlagMetricsFile         = "metrics-file"

	// Runtime
	FlagTimeout              = "timeout"
	FlagFailFast             = "fail-fast"
	FlagConcurrentExtraction = "concurrent-extraction"
	FlagMaxExtractions       = "max-extractions"
	FlagDryRun               = "dry-run"
	FlagVerbose              = "verbose"

	// Search
	FlagWindowsVersion = "windows-version"
)
