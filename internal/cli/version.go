package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"winmanifests/internal/tools"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		version, commit, date := BuildInfo()
		w := cmd.OutOrStdout()
		if versionShort {
			fmt.Fprintln(w, version)
			return
		}
		fmt.Fprintf(w, "winmanifests %s\ncommit:   %s\nbuilt:    %s\nplatform: %s/%s\n", version, commit, date, runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(w, "tools:    %s, %s\n", tools.DefaultAria2cPath(), tools.DefaultCabToolPath())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version")
}
