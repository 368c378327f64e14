package cmd

import (
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render <metadata.docker.toml>",
	Short: "Print the Dockerfile for a compiled module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return renderAll(cmd.OutOrStdout(), args)
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
