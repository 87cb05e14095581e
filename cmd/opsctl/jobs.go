package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newJobsCmd(rt func() *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List or run scheduled jobs once, outside the cron lock",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print the registered job names",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				r := rt()
				registry, err := r.domain.CronJobs(r.params)
				if err != nil {
					return err
				}
				for _, job := range registry.Jobs() {
					fmt.Fprintln(cmd.OutOrStdout(), job.Name())
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "run <name>",
			Short: "Run one job now",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r := rt()
				registry, err := r.domain.CronJobs(r.params)
				if err != nil {
					return err
				}
				job, ok := registry.Lookup(args[0])
				if !ok {
					return fmt.Errorf("unknown job %q", args[0])
				}
				start := time.Now()
				if err := job.Run(cmd.Context()); err != nil {
					return fmt.Errorf("%s: %w", job.Name(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s finished in %s\n", job.Name(), time.Since(start).Round(time.Millisecond))
				return nil
			},
		},
	)
	return cmd
}
