package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"eventcat/internal/app"
)

func newTasksCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks in dispatch order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(f.options(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			ds, err := a.Tasks()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPRIORITY\tACTIVE\tREF")
			for _, d := range ds {
				fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", d.Name, d.Priority, d.Active, d.Ref())
			}
			return w.Flush()
		},
	}
	bindSelection(cmd, &f)
	return cmd
}
