package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/concertview/concertview/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "concertview",
		Short:         "Multi-camera concert composition server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFlag == "" {
				return nil
			}
			if err := os.Setenv(config.EnvConfigFile, configFlag); err != nil {
				return fmt.Errorf("set config path: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "TOML configuration file path")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newSuggestCommand())
	rootCmd.AddCommand(newJobsCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "concertview %s (commit %s, built %s)\n",
				config.Version, config.GitCommit, config.BuildTime)
			return nil
		},
	}
}
