package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/cmigrate/internal/orchestrator"
)

type MigrateOptions struct {
	DefinitionsFile string
	IDs             []string
	Limit           int
	Offset          int
	Update          bool
	Force           bool
	Progress        bool
	Status          bool
	Tenant          string
	Interactive     bool
	Debug           bool
}

func (o *MigrateOptions) bindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVar(&o.IDs, "id", nil, "Only migrate these source ids (comma separated)")
	flags.IntVar(&o.Limit, "limit", 0, "Migrate at most this many records")
	flags.IntVar(&o.Offset, "offset", 0, "Skip this many records first")
	flags.BoolVar(&o.Update, "update", false, "Update records that were already migrated")
	flags.BoolVar(&o.Force, "force", false, "Import records again even if already migrated")
	flags.BoolVar(&o.Progress, "progress", false, "Show a progress bar")
	flags.BoolVar(&o.Status, "status", false, "Only print how many records are migrated")
	flags.BoolVar(&o.Interactive, "interactive", false, "Ask for a type when the requested one is unknown")

	pflags := cmd.PersistentFlags()
	pflags.StringVarP(&o.DefinitionsFile, "definitions", "d", "configs/definitions.json", "Path to definitions file")
	pflags.StringVar(&o.Tenant, "blog_id", "", "Tenant (site) to migrate")
	pflags.BoolVar(&o.Debug, "debug", false, "Print debug messages")
}

func (o *MigrateOptions) orchestratorOptions() orchestrator.Options {
	return orchestrator.Options{
		RunOptions: orchestrator.RunOptions{
			IDs:      o.IDs,
			Limit:    o.Limit,
			Offset:   o.Offset,
			Update:   o.Update,
			Force:    o.Force,
			Progress: o.Progress,
		},
		StatusOnly: o.Status,
		Tenant:     o.Tenant,
	}
}
