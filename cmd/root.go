package cmd

import (
	"github.com/spf13/cobra"
	"movement-analysis/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "movement-analysis",
		Short: "pose analysis for uploaded exercise videos",
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(analyze(config))
	return rootCmd
}
