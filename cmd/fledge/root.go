package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fledge",
	Short: "Fledge turns a running HTTP application into a deployable static site.",
	Long: `Fledge boots your HTTP server as a child process, crawls it over HTTP,
and materializes the responses it finds as a static directory tree ready
to deploy.`,
}

func init() {
	rootCmd.AddCommand(staticCmd)
}

// Execute runs the command tree and returns the process exit code:
// 0 success, 1 config error, 2 boot failure, 3 partial failure,
// 130 aborted. Cobra's own usage/parse errors exit 1.
func Execute() int {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		if code, ok := asExitCode(err); ok {
			if code != 0 {
				fmt.Fprintln(os.Stderr, err)
			}
			return code
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
