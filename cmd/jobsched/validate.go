package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"jobsched/internal/config"
	"jobsched/internal/jobs"
	logx "jobsched/pkg/logx"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file without starting anything",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewConfigManager(cfgPath).Parse()
		if err != nil {
			return err
		}
		if err := builtinKinds().Validate(cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d jobs)\n", cfgPath, len(cfg.Jobs))
		return nil
	},
}

// builtinKinds is only used to validate and list; nothing runs.
func builtinKinds() *jobs.Registry {
	return jobs.NewBuiltinRegistry(jobs.Deps{Log: logx.Nop(), HTTP: http.DefaultClient})
}
