package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"winmanifests/internal/catalog"
	"winmanifests/internal/config"
	"winmanifests/internal/engine"
	"winmanifests/internal/flags"
)

var searchOpts struct {
	catalogURL     string
	windowsVersion string
	rulesFile      string
}

var searchCmd = &cobra.Command{
	Use:   "search <terms>...",
	Short: "Search the Microsoft Update Catalog",
	Long: `Search the Microsoft Update Catalog and list the entries it returns.

With --windows-version the first term must be a KB number. The entry that
fetch would select for that version is then resolved and its download URL
printed, which helps diagnose selection failures.

Examples:
  # List every entry for a KB
  winmanifests search KB5003173

  # Show what fetch would download for Windows 10 version 20H2
  winmanifests search KB5003173 --windows-version 20H2
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var verbose io.Writer
		if cfg.Runtime.Verbose {
			verbose = os.Stderr
		}
		client, err := catalog.NewClient(catalog.WithBaseURL(searchOpts.catalogURL), catalog.WithVerbose(verbose))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		w := cmd.OutOrStdout()
		if searchOpts.windowsVersion == "" {
			entries, err := client.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			printEntries(w, entries)
			return nil
		}

		rules, err := config.LoadRules(searchOpts.rulesFile)
		if err != nil {
			return err
		}
		q := engine.Query{Version: searchOpts.windowsVersion, KB: strings.ToUpper(args[0])}
		entry, err := engine.NewSelector(rules).Select(ctx, client, q)
		if err != nil {
			return err
		}
		dl, err := client.Resolve(ctx, entry.ID)
		if err != nil {
			return err
		}
		printEntries(w, []catalog.Entry{entry})
		fmt.Fprintf(w, "  url: %s\n", dl.URL)
		return nil
	},
}

func printEntries(w io.Writer, entries []catalog.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries found.")
		return
	}
	bold := color.New(color.Bold)
	for _, e := range entries {
		bold.Fprintln(w, e.Title)
		fmt.Fprintf(w, "  id: %s\n", e.ID)
	}
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchOpts.catalogURL, flags.FlagCatalogURL, catalog.DefaultBaseURL, "Microsoft Update Catalog base URL")
	searchCmd.Flags().StringVar(&searchOpts.windowsVersion, flags.FlagWindowsVersion, "", "Select and resolve the entry fetch would use for this Windows version")
	searchCmd.Flags().StringVar(&searchOpts.rulesFile, flags.FlagRulesFile, "", "YAML rules file used with --windows-version")
}
