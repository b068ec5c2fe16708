// Package cli handles the command-line interface logic using the Cobra
// library.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	opts := &MigrateOptions{}

	rootCmd := &cobra.Command{
		Use:   "cmigrate [type]",
		Short: "cmigrate - legacy content migration",
		Long: `cmigrate copies content types out of legacy systems (relational CMS
schemas, XML-RPC document stores, MongoDB collections) into MongoDB or
Postgres. Run a type by key, "all" for every type, or no type to list them.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return runMigration(cmd, opts, name)
		},
	}
	opts.bindFlags(rootCmd)

	rootCmd.AddCommand(newListCmd(opts))
	return rootCmd
}

func newListCmd(opts *MigrateOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the migration types with their counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}
}
