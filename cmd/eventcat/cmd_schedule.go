package main

import (
	"github.com/spf13/cobra"

	"eventcat/internal/app"
)

func newScheduleCmd() *cobra.Command {
	var (
		f     runFlags
		every string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run imports periodically until interrupted",
		Long: "Run imports on a schedule. --every accepts a cron expression, a Go duration\n" +
			"(\"6h\") or an HH:MM interval (\"06:30\"). Falls back to schedule.every in the config.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(f.options(cmd))
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Schedule(cmd.Context(), every)
		},
	}
	bindRun(cmd, &f)
	cmd.Flags().StringVar(&every, "every", "", "schedule spec")
	return cmd
}
