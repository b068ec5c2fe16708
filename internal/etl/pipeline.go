// Package etl holds the generic copy unit: it walks a source, transforms
// every record and writes it through a loader, correlating keys in a map so
// repeated runs update or skip instead of duplicating.
package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/cmigrate/internal/keymap"
	"github.com/BartekS5/cmigrate/internal/orchestrator"
	"github.com/BartekS5/cmigrate/internal/output"
	"github.com/BartekS5/cmigrate/internal/source"
	"github.com/BartekS5/cmigrate/pkg/logger"
)

// CopyUnit migrates one type. Loader may be nil for a unit that is only
// asked for Stats.
type CopyUnit struct {
	Key         string
	KeyField    string
	Source      source.Source
	Map         keymap.Map
	Loader      Loader
	Transformer *Transformer
	Validator   *Validator
	Reporter    *output.Reporter
}

// Counts is the outcome of one Run.
type Counts struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
}

func (u *CopyUnit) reporter() *output.Reporter {
	if u.Reporter == nil {
		return output.Discard()
	}
	return u.Reporter
}

// Run copies the records in the window of opts. Record failures are reported
// and counted; source, map and store failures end the run. Deferred map
// writes are flushed however Run returns.
func (u *CopyUnit) Run(ctx context.Context, opts orchestrator.RunOptions) (orchestrator.Stats, error) {
	if u.Loader == nil {
		return orchestrator.Stats{}, errors.New("copy unit: no loader")
	}
	var (
		stats  orchestrator.Stats
		counts Counts
	)
	err := keymap.Use(ctx, u.Map, func(m keymap.Map) error {
		n, err := u.Source.Init(ctx, source.Window{IDs: opts.IDs, Limit: opts.Limit, Offset: opts.Offset})
		if err != nil {
			return fmt.Errorf("init source: %w", err)
		}
		defer u.Source.Cleanup()
		stats.Total = n

		var bar *output.Progress
		if opts.Progress {
			bar = u.reporter().StartProgress(u.Key, n)
		}
		defer bar.Done()

		start := time.Now()
		for i, rec := range u.Source.All() {
			bar.Tick()
			if err := u.copyRecord(ctx, m, i, rec, opts, &counts); err != nil {
				return err
			}
		}

		duration := time.Since(start)
		rate := 0.0
		if duration.Seconds() > 0 {
			rate = float64(n) / duration.Seconds()
		}
		logger.Infof("%s done. Total: %d. Rate: %.2f records/sec", u.Key, n, rate)
		return nil
	})
	stats.Imported = counts.Inserted + counts.Updated
	u.reporter().Info("%s: %d inserted, %d updated, %d skipped, %d failed",
		u.Key, counts.Inserted, counts.Updated, counts.Skipped, counts.Failed)
	return stats, err
}

// copyRecord handles one record. Only map failures are returned.
func (u *CopyUnit) copyRecord(ctx context.Context, m keymap.Map, i int, rec source.Record, opts orchestrator.RunOptions, counts *Counts) error {
	r := u.reporter()
	key, ok := rec.Key(u.KeyField)
	if !ok {
		r.Error("%s: record %d: no %s", u.Key, i, u.KeyField)
		counts.Failed++
		return nil
	}
	dest, mapped, err := m.DestinationKey(ctx, key)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", key, err)
	}
	if mapped && !opts.Update && !opts.Force {
		counts.Skipped++
		return nil
	}

	doc, err := u.Transformer.Transform(rec)
	if err == nil {
		err = u.Validator.ValidateDocument(doc)
	}
	if err != nil {
		r.Error("%s %s: transform: %v", u.Key, key, err)
		counts.Failed++
		return nil
	}

	if mapped && !opts.Force {
		if err := u.Loader.Update(ctx, dest, doc); err != nil {
			r.Error("%s %s: update %s: %v", u.Key, key, dest, err)
			counts.Failed++
			return nil
		}
		r.Debug("%s %s: updated %s", u.Key, key, dest)
		counts.Updated++
		return nil
	}

	id, err := u.Loader.Insert(ctx, doc)
	if err != nil {
		r.Error("%s %s: insert: %v", u.Key, key, err)
		counts.Failed++
		return nil
	}
	if err := m.Save(ctx, key, id); err != nil {
		return fmt.Errorf("save %s -> %s: %w", key, id, err)
	}
	r.Debug("%s %s: inserted %s", u.Key, key, id)
	counts.Inserted++
	return nil
}

// Stats counts the records of the whole source and how many of them are
// already correlated.
func (u *CopyUnit) Stats(ctx context.Context) (orchestrator.Stats, error) {
	if !u.Map.Initialized() {
		if err := u.Map.Init(ctx); err != nil {
			return orchestrator.Stats{}, err
		}
	}
	n, err := u.Source.Init(ctx, source.Window{})
	if err != nil {
		return orchestrator.Stats{}, fmt.Errorf("init source: %w", err)
	}
	defer u.Source.Cleanup()

	keys := make([]string, 0, n)
	for _, rec := range u.Source.All() {
		if k, ok := rec.Key(u.KeyField); ok {
			keys = append(keys, k)
		}
	}
	imported, err := u.Map.CountDestinationKeys(ctx, keys)
	if err != nil {
		return orchestrator.Stats{}, err
	}
	return orchestrator.Stats{Total: n, Imported: imported}, nil
}
