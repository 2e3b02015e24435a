/*
Package main is the entry point for the concepts CLI.

concepts turns a short brief into ranked ad concepts: it generates a batch,
scores every candidate on the arbiter panel, removes near-duplicates, repairs
weak candidates once and returns the best of them.

Usage:

	concepts [command]

Available Commands:

	generate     Generate ranked concepts for a brief
	usage        Show device and example exploration plus rejection stats
	history      List persisted concepts
	reset-usage  Zero the usage counters
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "concepts",
		Short: "Generate, score and rank ad concepts",
		Long: `concepts generates a batch of ad concepts from a brief, scores each one on
seven arbiters, drops near-duplicates, repairs weak candidates once and
prints the ranked survivors.

Configuration is read from a YAML file and overridden by environment
variables (BACKEND, CONCEPTS_DB, CODEC_ADDR, OPENAI_API_KEY, ...).`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "concepts.yaml", "Path to YAML config")

	root.AddCommand(newGenerateCmd(&configPath))
	root.AddCommand(newUsageCmd(&configPath))
	root.AddCommand(newHistoryCmd(&configPath))
	root.AddCommand(newResetUsageCmd(&configPath))
	return root
}

// #endregion main
