// Package query reads legacy records from relational databases whose content
// is spread over a base table, a revision table, per-content-type tables,
// per-field tables, file and taxonomy tables. Each configured field says
// where its value lives and the builder assembles a single grouped SELECT.
package query

import (
	"context"
	"fmt"

	"github.com/BartekS5/cmigrate/internal/output"
	"github.com/BartekS5/cmigrate/internal/source"
	"github.com/BartekS5/cmigrate/pkg/database"
)

// Source is a source.Source backed by one built query.
type Source struct {
	source.Set

	client   database.Client
	cfg      Config
	reporter *output.Reporter
	last     Query
}

// New validates cfg and returns a source that has not fetched anything yet.
func New(client database.Client, cfg Config, reporter *output.Reporter) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reporter == nil {
		reporter = output.Discard()
	}
	return &Source{client: client, cfg: cfg, reporter: reporter}, nil
}

// Init runs the query for w once and materializes every row.
func (s *Source) Init(ctx context.Context, w source.Window) (int, error) {
	s.last = Build(&s.cfg, w)
	s.reporter.Debug("%s query: %s %v", s.cfg.Table, s.last.SQL, s.last.Args)

	rows, err := s.client.Query(ctx, s.last.SQL, s.last.Args...)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", s.cfg.Table, err)
	}
	records := make([]source.Record, 0, len(rows))
	for _, row := range rows {
		rec := make(source.Record, len(row))
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[k] = v
		}
		records = append(records, rec)
	}
	s.Load(records)
	s.reporter.Debug("%s: %d records", s.cfg.Table, len(records))
	return len(records), nil
}

// LastQuery is the statement the latest Init ran.
func (s *Source) LastQuery() Query {
	return s.last
}
