package main

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "jobsched",
	Short: "jobsched - in-process job scheduler",
	Long: `jobsched runs keyed jobs on fixed-rate schedules with single-flight
execution, pause/resume, forced runs and hot-reloaded configuration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (json or yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(jobsCmd)
}
