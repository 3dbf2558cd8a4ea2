package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	rootCmd    = &cobra.Command{
		Use:   "gh-implement",
		Short: "gh-implement - priority-batched issue implementation",
		Long: `gh-implement works through GitHub issues one priority batch at a time.
Each issue gets its own git worktree and coding agent; pull requests are
reviewed and merged, failed issues are retried, and everything left behind
is cleaned up at the end of the run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug output and agent lines")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})
}

func main() {
	err := rootCmd.Execute()
	if err != nil && err.Error() != "" {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCodeFor(err))
}
