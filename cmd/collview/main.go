// Package main provides the entry point for the collview CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/collview/cmd/collview/commands"
	"github.com/Sumatoshi-tech/collview/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "collview",
		Short: "collview - live filtered and sorted views over mutable lists",
		Long: `collview drives the view engine outside an application.

Commands:
  bench     Random edit workload against a view, with timings
  verify    Replay scenario files and compare against a full recompute
  schema    Print the scenario JSON schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(commands.FlagConfig, "", "config file (default .collview.yaml in . or $HOME)")

	rootCmd.AddCommand(commands.NewBenchCommand())
	rootCmd.AddCommand(commands.NewVerifyCommand())
	rootCmd.AddCommand(commands.NewSchemaCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "collview %s\n", version.String())
		},
	}
}
