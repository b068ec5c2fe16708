// Package orchestrator resolves a requested migration type, builds its unit
// and runs it, or runs every registered type in order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"

	"github.com/BartekS5/cmigrate/internal/output"
)

var ErrUnknownType = errors.New("unknown migration type")

// FanOutPolicy decides what a failing type does to the rest of an "all" run.
type FanOutPolicy int

const (
	// FanOutAbort stops at the first failing type.
	FanOutAbort FanOutPolicy = iota
	// FanOutContinue runs the remaining types and returns every error.
	FanOutContinue
)

// ParseFanOutPolicy accepts "abort", "continue" or "" (abort).
func ParseFanOutPolicy(s string) (FanOutPolicy, error) {
	switch s {
	case "", "abort":
		return FanOutAbort, nil
	case "continue":
		return FanOutContinue, nil
	default:
		return FanOutAbort, fmt.Errorf("unknown fan-out policy %q", s)
	}
}

// Options is one invocation.
type Options struct {
	RunOptions
	StatusOnly bool
	Tenant     string
}

type Orchestrator struct {
	registry *Registry
	reporter *output.Reporter
	clock    clock.Clock
	delay    time.Duration
	policy   FanOutPolicy
	prompter output.Prompter
}

type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithDelay pauses between types of an "all" run.
func WithDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.delay = d }
}

func WithPolicy(p FanOutPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithPrompter asks for a type when the requested one is unknown.
func WithPrompter(p output.Prompter) Option {
	return func(o *Orchestrator) { o.prompter = p }
}

func New(registry *Registry, reporter *output.Reporter, opts ...Option) *Orchestrator {
	if reporter == nil {
		reporter = output.Discard()
	}
	o := &Orchestrator{registry: registry, reporter: reporter, clock: clock.WallClock}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes name, which is a registered key or All. Anything else lists
// the registry and, with a prompter, asks again; an empty answer ends the
// run without error.
func (o *Orchestrator) Run(ctx context.Context, name string, opts Options) (Stats, error) {
	if name == All {
		return o.fanOut(ctx, opts)
	}
	t, ok := o.registry.Lookup(name)
	if !ok {
		resolved, err := o.resolve(ctx, name, opts.Tenant)
		if err != nil || resolved == "" {
			return Stats{}, err
		}
		if resolved == All {
			return o.fanOut(ctx, opts)
		}
		t, _ = o.registry.Lookup(resolved)
	}
	return o.runType(ctx, t, opts)
}

func (o *Orchestrator) resolve(ctx context.Context, name, tenant string) (string, error) {
	if name != "" {
		o.reporter.Warn("unknown migration type %q", name)
	}
	o.List(ctx, tenant)
	if o.prompter == nil {
		if name == "" {
			return "", nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	for {
		answer, err := o.prompter.Prompt("Migration type to run (empty to quit):")
		if err != nil {
			return "", err
		}
		answer = strings.TrimSpace(answer)
		if answer == "" || answer == All {
			return answer, nil
		}
		if _, ok := o.registry.Lookup(answer); ok {
			return answer, nil
		}
		o.reporter.Warn("unknown migration type %q", answer)
	}
}

// List prints every type with its current counts.
func (o *Orchestrator) List(ctx context.Context, tenant string) {
	rows := [][]string{}
	for _, t := range o.registry.Types() {
		total, imported := "?", "?"
		if s, err := o.stats(ctx, t, tenant); err != nil {
			o.reporter.Error("%s: %v", t.Key, err)
		} else {
			total, imported = strconv.Itoa(s.Total), strconv.Itoa(s.Imported)
		}
		rows = append(rows, []string{t.Key, t.Title, imported + " / " + total})
	}
	o.reporter.Table([]string{"TYPE", "TITLE", "IMPORTED"}, rows)
}

func (o *Orchestrator) stats(ctx context.Context, t Type, tenant string) (Stats, error) {
	unit, err := t.Factory(Args{Key: t.Key, Tenant: tenant}, o.reporter, true)
	if err != nil {
		return Stats{}, err
	}
	return unit.Stats(ctx)
}

// fanOut runs every type without the id and window options, which only make
// sense for a single type.
func (o *Orchestrator) fanOut(ctx context.Context, opts Options) (Stats, error) {
	opts.IDs = nil
	opts.Limit = 0
	opts.Offset = 0

	var (
		total Stats
		errs  []error
	)
	for i, t := range o.registry.Types() {
		if i > 0 && o.delay > 0 {
			select {
			case <-o.clock.After(o.delay):
			case <-ctx.Done():
				return total, errors.Join(append(errs, ctx.Err())...)
			}
		}
		s, err := o.runType(ctx, t, opts)
		total = total.Add(s)
		if err == nil {
			continue
		}
		if o.policy == FanOutAbort {
			return total, err
		}
		o.reporter.Error("%v", err)
		errs = append(errs, err)
	}
	if opts.StatusOnly {
		o.reporter.Info("all: %d of %d imported", total.Imported, total.Total)
	}
	return total, errors.Join(errs...)
}

func (o *Orchestrator) runType(ctx context.Context, t Type, opts Options) (Stats, error) {
	unit, err := t.Factory(Args{Key: t.Key, Tenant: opts.Tenant}, o.reporter, opts.StatusOnly)
	if err != nil {
		return Stats{}, fmt.Errorf("%s: %w", t.Key, err)
	}
	if opts.StatusOnly {
		s, err := unit.Stats(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("%s: %w", t.Key, err)
		}
		o.reporter.Info("%s: %d of %d imported", t.Title, s.Imported, s.Total)
		return s, nil
	}

	o.reporter.Info("migrating %s", t.Title)
	s, err := unit.Run(ctx, opts.RunOptions)
	if err != nil {
		return s, fmt.Errorf("%s: %w", t.Key, err)
	}
	o.reporter.Success("%s: %d records, %d imported", t.Title, s.Total, s.Imported)
	return s, nil
}
