package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCommand creates a version sub-command which prints the build
// information. It does not need a configuration.
func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the smarthouse version",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(a.stdout, "smarthouse %s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}
