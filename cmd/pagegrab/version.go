package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"pagegrab/pkg/ui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Output, "pagegrab %s\n", version)
		fmt.Fprintf(ui.Output, "  commit:  %s\n", gitCommit)
		fmt.Fprintf(ui.Output, "  built:   %s\n", buildDate)
		fmt.Fprintf(ui.Output, "  go:      %s\n", runtime.Version())
		fmt.Fprintf(ui.Output, "  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
