package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eventcat/internal/app"
)

func newImportCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run the selected import tasks, then the derivation pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(f.options(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.Import(cmd.Context())
			if rep.RunID != "" {
				fmt.Fprintln(cmd.OutOrStdout(), rep.String())
			}
			return err
		},
	}
	bindRun(cmd, &f)
	return cmd
}
