package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "runner",
	Short: "Run request collections from the terminal",
	Long: `runner executes the requests of a project folder in order against one
environment and reports the outcome of each request.

Examples:
  runner projects
  runner run --project <id> --folder <id> --env production --stop-on-error`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd, projectsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
