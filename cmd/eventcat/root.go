package main

import (
	"github.com/spf13/cobra"

	"eventcat/internal/app"
)

// runFlags are shared by the commands that resolve and run tasks.
type runFlags struct {
	config    string
	tasks     []string
	yes       []string
	no        []string
	deleteOld bool
	travis    bool
	archived  bool
	refresh   []string
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "eventcat",
		Short:         "Astronomical transient catalog importer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "./config.json", "path to config file (json, yaml or toml)")

	cmd.AddCommand(
		newImportCmd(),
		newTasksCmd(),
		newScheduleCmd(),
	)
	return cmd
}

func bindSelection(cmd *cobra.Command, f *runFlags) {
	fl := cmd.Flags()
	fl.StringSliceVar(&f.tasks, "tasks", nil, "run only these tasks")
	fl.StringSliceVar(&f.yes, "yes", nil, "force these tasks active")
	fl.StringSliceVar(&f.no, "no", nil, "force these tasks inactive")
}

func bindRun(cmd *cobra.Command, f *runFlags) {
	bindSelection(cmd, f)
	fl := cmd.Flags()
	fl.BoolVar(&f.deleteOld, "delete-old", false, "wipe the journal before the first task")
	fl.BoolVar(&f.travis, "travis", false, "bound per-task iteration for constrained CI runs")
	fl.BoolVar(&f.archived, "archived", false, "reuse cached copies of external data")
	fl.StringSliceVar(&f.refresh, "refresh", nil, "tasks that re-fetch even with --archived")
}

// options maps the flags onto app.Options. Only flags given on the command
// line override the config file.
func (f *runFlags) options(cmd *cobra.Command) app.Options {
	f.config, _ = cmd.Flags().GetString("config")
	opts := app.Options{ConfigPath: f.config, Refresh: f.refresh}
	changed := cmd.Flags().Changed
	if changed("tasks") {
		opts.Selection.Tasks = nonNil(f.tasks)
	}
	if changed("yes") {
		opts.Selection.Yes = nonNil(f.yes)
	}
	if changed("no") {
		opts.Selection.No = nonNil(f.no)
	}
	for name, dst := range map[string]**bool{
		"delete-old": &opts.DeleteOld,
		"travis":     &opts.Travis,
		"archived":   &opts.Archived,
	} {
		if changed(name) {
			v, _ := cmd.Flags().GetBool(name)
			*dst = &v
		}
	}
	return opts
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
