package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"winmanifests/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "winmanifests",
	Short: "Retrieve component manifests from Windows cumulative updates",
	Long: `winmanifests downloads Windows cumulative updates from the Microsoft Update
Catalog and unpacks the component manifest files they contain.

For every (Windows version, KB) pair of an update list it finds the single
matching catalog entry, resolves its download URL, fetches the package with
aria2c and extracts the nested cabinets (cabextract, or expand on Windows)
until the *.manifest files are left in <out>/manifests/<version>/<KB>.

Examples:
	# Show available commands and global flags
	winmanifests --help

	# Process ./updates.json
	winmanifests fetch

	# Look up catalog entries for a KB
	winmanifests search KB5003173 x64

	# Print build info
	winmanifests version

Output:
	By default, commands write human-readable output to stdout.
	The fetch command supports structured output via emitter flags (see fetch --help).`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every HTTP request and forwards tool output to stderr)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
