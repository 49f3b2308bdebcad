// Package handlers builds the cobra command tree for the CLI.
package handlers

import (
	"fmt"
	"os"

	"commentpulse/internal/config"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "commentpulse",
		Short: "CommentPulse analyzes audience comments into a sentiment report",
		Long: `CommentPulse ingests social-media comments for a content item and produces
an audience-sentiment report: filtered comments, per-comment sentiment and
emotions, clustered discussion themes with keywords, and a narrative summary.

Analyses run as jobs through a five-stage pipeline with progress tracking,
a 24-hour freshness cache, and bounded retries.`,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.commentpulse.yaml)")

	rootCmd.AddCommand(NewAnalyzeCmd())
	rootCmd.AddCommand(NewJobCmd())
	rootCmd.AddCommand(NewCacheCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}
