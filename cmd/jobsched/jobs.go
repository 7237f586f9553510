package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jobsched/internal/config"
	"jobsched/internal/jobs"
)

var jobsMatch string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the jobs a config declares",
	RunE:  runJobs,
}

func init() {
	jobsCmd.Flags().StringVarP(&jobsMatch, "match", "m", "", `glob over job keys, e.g. "config/http/*"`)
}

func runJobs(cmd *cobra.Command, _ []string) error {
	m, err := jobs.CompileKeyPattern(jobsMatch)
	if err != nil {
		return err
	}
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return err
	}
	if err := builtinKinds().Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSCHEDULE\tSTATE\tDESCRIPTION")
	for _, jc := range cfg.Jobs {
		k := jc.Key()
		if !m.Match(k) {
			continue
		}
		state := "enabled"
		if jc.Disabled {
			state = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k, jc.Schedule, state, jc.Description)
	}
	return tw.Flush()
}
