package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BartekS5/cmigrate/internal/app"
	"github.com/BartekS5/cmigrate/internal/config"
	"github.com/BartekS5/cmigrate/internal/orchestrator"
	"github.com/BartekS5/cmigrate/internal/output"
)

// session is everything one command needs; close releases its connections.
type session struct {
	app          *app.App
	reporter     *output.Reporter
	orchestrator *orchestrator.Orchestrator
}

func (s *session) close() {
	s.app.Close()
}

func newSession(cmd *cobra.Command, opts *MigrateOptions) (*session, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	defs, err := config.LoadDefinitions(opts.DefinitionsFile)
	if err != nil {
		return nil, err
	}

	reporter := output.New(cmd.OutOrStdout(),
		output.WithDebug(opts.Debug),
		output.WithProgress(opts.Progress))
	a := app.New(cmd.Context(), cfg, defs, reporter)
	reg, err := a.Registry()
	if err != nil {
		a.Close()
		return nil, err
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithDelay(cfg.FanOutDelay),
		orchestrator.WithPolicy(cfg.FanOutPolicy),
	}
	if opts.Interactive {
		orchOpts = append(orchOpts, orchestrator.WithPrompter(&output.LinePrompter{
			In:  cmd.InOrStdin(),
			Out: cmd.OutOrStdout(),
		}))
	}
	return &session{
		app:          a,
		reporter:     reporter,
		orchestrator: orchestrator.New(reg, reporter, orchOpts...),
	}, nil
}

func runMigration(cmd *cobra.Command, opts *MigrateOptions, name string) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	if _, err := s.orchestrator.Run(cmd.Context(), name, opts.orchestratorOptions()); err != nil {
		return err
	}
	if n := s.reporter.Errors(); n > 0 {
		return fmt.Errorf("%d record errors reported", n)
	}
	return nil
}

func runList(cmd *cobra.Command, opts *MigrateOptions) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	s.orchestrator.List(cmd.Context(), opts.Tenant)
	if n := s.reporter.Errors(); n > 0 {
		return fmt.Errorf("%d types could not be counted", n)
	}
	return nil
}
