package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "heraldd",
		Short: "Herald webhook delivery service",
		Long: `heraldd serves the Herald management API and delivers webhook events
to the endpoints organizations register.

Configuration is read from an optional YAML file and HERALD_* environment
variables, e.g. HERALD_SERVER_ADDR=:9090 or HERALD_HERALD_CONCURRENCY=20.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newVersionCmd(root))
	return root
}

func newVersionCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "heraldd %s\n", root.Version)
		},
	}
}
